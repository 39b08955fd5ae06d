package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// InMemoryQueueConfig holds configuration for the in-process queue.
type InMemoryQueueConfig struct {
	// WorkerCount determines how many concurrent deliveries run.
	WorkerCount int

	// QueueSize is the buffer size for pending deliveries.
	QueueSize int
}

// DefaultInMemoryQueueConfig returns an InMemoryQueueConfig with
// reasonable defaults.
func DefaultInMemoryQueueConfig() InMemoryQueueConfig {
	return InMemoryQueueConfig{
		WorkerCount: 4,
		QueueSize:   100,
	}
}

// delivery is one scheduled handoff of a task to the processor. attempt
// counts deliveries of this task, starting at 1.
type delivery struct {
	task    Task
	attempt int
}

// InMemoryQueue is the in-process TaskQueue used by single-node
// deployments and tests. It delivers tasks to the registered processor
// through a worker pool, honors schedule times, and reschedules retry
// dispositions with the task's backoff policy. Deliveries do not survive
// a process restart; production deployments substitute a hosted queue
// behind the same interface.
type InMemoryQueue struct {
	processor  Processor
	deliveries chan delivery
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     InMemoryQueueConfig
	logger     *slog.Logger

	mu       sync.Mutex
	closed   bool
	inFlight map[string]struct{}
}

var _ TaskQueue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue delivering to the given processor.
// Call Start to begin processing and Stop to shut down.
func NewInMemoryQueue(processor Processor, config InMemoryQueueConfig, logger *slog.Logger) *InMemoryQueue {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultInMemoryQueueConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &InMemoryQueue{
		processor:  processor,
		deliveries: make(chan delivery, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With(slog.String("component", "inmemory_queue")),
		inFlight:   make(map[string]struct{}),
	}
}

// Start launches the delivery workers.
func (q *InMemoryQueue) Start() {
	for i := 0; i < q.config.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("task queue started", slog.Int("worker_count", q.config.WorkerCount))
}

// Stop rejects new work, cancels scheduled deliveries, and waits for
// in-flight deliveries to finish.
func (q *InMemoryQueue) Stop() {
	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	q.mu.Unlock()
	if alreadyClosed {
		return
	}

	q.cancelFunc()
	q.wg.Wait()
	close(q.deliveries)
	q.logger.Info("task queue stopped")
}

// Enqueue implements TaskQueue. Scheduling happens under the queue
// mutex so a concurrent Stop cannot close the delivery channel between
// the closed check and the send.
func (q *InMemoryQueue) Enqueue(_ context.Context, task Task) (TaskHandle, error) {
	if err := task.Validate(); err != nil {
		return TaskHandle{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return TaskHandle{}, ErrQueueClosed
	}
	if _, exists := q.inFlight[task.Name]; exists {
		return TaskHandle{}, fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
	}

	first := delivery{task: task, attempt: 1}
	if delay := time.Until(task.ScheduleTime); delay > 0 {
		q.inFlight[task.Name] = struct{}{}
		q.scheduleAfter(first, delay)
		return TaskHandle{Name: task.Name}, nil
	}

	// The first immediate delivery must not block admission: a full
	// buffer is backpressure the caller has to see.
	select {
	case q.deliveries <- first:
	default:
		return TaskHandle{}, fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.deliveries))
	}
	q.inFlight[task.Name] = struct{}{}

	q.logger.Debug("task enqueued",
		slog.String("task_name", task.Name),
		slog.Int("queue_len", len(q.deliveries)))

	return TaskHandle{Name: task.Name}, nil
}

// scheduleAfter hands the delivery to the workers once the delay
// elapses. Unlike the initial enqueue, a scheduled redelivery blocks
// until buffer space frees up so retries are never dropped.
func (q *InMemoryQueue) scheduleAfter(d delivery, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case <-q.ctx.Done():
		case q.deliveries <- d:
		}
	}()
}

// release frees a task name for future enqueues.
func (q *InMemoryQueue) release(name string) {
	q.mu.Lock()
	delete(q.inFlight, name)
	q.mu.Unlock()
}

// worker consumes deliveries until shutdown.
func (q *InMemoryQueue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("starting queue worker", slog.Int("worker_id", id))

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("stopping queue worker", slog.Int("worker_id", id))
			return

		case d, ok := <-q.deliveries:
			if !ok {
				return
			}
			q.deliver(d, id)
		}
	}
}

// deliver runs one delivery and acts on the processor's disposition.
func (q *InMemoryQueue) deliver(d delivery, workerID int) {
	log := q.logger.With(
		slog.String("task_name", d.task.Name),
		slog.Int("attempt", d.attempt),
		slog.Int("worker_id", workerID),
	)

	log.Info("delivering task")
	disposition := q.processor.Process(q.ctx, d.task.Name)

	switch disposition.Kind {
	case DispositionSuccess:
		log.Info("task delivery succeeded")
		q.release(d.task.Name)

	case DispositionTerminal:
		log.Warn("task failed permanently", slog.String("error", errText(disposition.Err)))
		q.release(d.task.Name)

	case DispositionRetry:
		delay := d.task.Retry.Backoff(d.attempt)
		log.Warn("task attempt failed, rescheduling",
			slog.String("error", errText(disposition.Err)),
			slog.Duration("delay", delay))
		q.scheduleAfter(delivery{task: d.task, attempt: d.attempt + 1}, delay)

	default:
		log.Error("unknown task disposition, treating as terminal",
			slog.Int("kind", int(disposition.Kind)))
		q.release(d.task.Name)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
