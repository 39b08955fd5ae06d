package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/store"
)

// taskNamePrefix namespaces insight generation tasks in the queue.
const taskNamePrefix = "insight-generate-"

// TaskName returns the idempotent queue task name for a job. A job maps
// to exactly one task name for its whole lifetime, which keeps queue
// dedup and the metadata tracker aligned.
func TaskName(jobID uuid.UUID) string {
	return taskNamePrefix + jobID.String()
}

// Dispatcher enqueues the durable generation task for an admitted job.
type Dispatcher struct {
	queue     TaskQueue
	metaStore store.TaskMetadataStore
	retry     domain.RetryPolicy
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher that enqueues with the given retry
// policy.
func NewDispatcher(q TaskQueue, metaStore store.TaskMetadataStore, retry domain.RetryPolicy, log *slog.Logger) (*Dispatcher, error) {
	if q == nil {
		return nil, errors.New("task queue cannot be nil")
	}
	if metaStore == nil {
		return nil, errors.New("task metadata store cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}

	return &Dispatcher{
		queue:     q,
		metaStore: metaStore,
		retry:     retry,
		logger:    log.With(slog.String("component", "dispatcher")),
	}, nil
}

// Dispatch enqueues the job's task and marks its metadata dispatched.
// The metadata row must already exist; it is created in the admission
// transaction. A duplicate of a still-queued task counts as dispatched,
// so re-dispatch after a partial failure is safe.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.InsightJob) (TaskHandle, error) {
	return d.DispatchAt(ctx, job, time.Time{})
}

// DispatchAt enqueues like Dispatch but holds the first delivery until
// the given time, letting callers stagger load. A zero time delivers
// immediately.
func (d *Dispatcher) DispatchAt(ctx context.Context, job *domain.InsightJob, at time.Time) (TaskHandle, error) {
	name := TaskName(job.ID)
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("task_name", name),
		slog.String("job_id", job.ID.String()),
	)

	handle, err := d.queue.Enqueue(ctx, Task{Name: name, Retry: d.retry, ScheduleTime: at})
	if err != nil {
		if errors.Is(err, ErrDuplicateTask) {
			log.Debug("task already queued, treating dispatch as done")
			return TaskHandle{Name: name}, nil
		}
		return TaskHandle{}, fmt.Errorf("failed to enqueue task %s: %w", name, err)
	}

	// The delivery is already scheduled; the first attempt moves the
	// metadata forward even if this bookkeeping write fails.
	if err := d.metaStore.MarkDispatched(ctx, name); err != nil {
		log.Warn("failed to mark task metadata dispatched", slog.String("error", err.Error()))
	}

	log.Info("job task dispatched")
	return handle, nil
}
