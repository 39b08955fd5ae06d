// Package queue defines the durable push-queue contract the pipeline
// depends on and an in-process implementation of it. Tasks are deduped
// by name, delivered at least once to a registered Processor, and
// redelivered with bounded exponential backoff until the processor
// reports a success or terminal outcome.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
)

// Common errors returned by queue implementations.
var (
	ErrQueueClosed   = errors.New("task queue is closed")
	ErrQueueFull     = errors.New("task queue is full")
	ErrDuplicateTask = errors.New("task with this name is already queued")
)

// Task describes one durable delivery request. The name is the
// deduplication key; deliveries carry the name only and processors load
// their state from the task metadata store.
type Task struct {
	// Name uniquely identifies the task across its whole lifetime.
	Name string

	// Retry bounds redelivery of failed attempts.
	Retry domain.RetryPolicy

	// ScheduleTime delays the first delivery when set in the future.
	// The zero value delivers immediately.
	ScheduleTime time.Time
}

// Validate checks if the Task can be enqueued.
func (t Task) Validate() error {
	if t.Name == "" {
		return domain.ErrEmptyTaskName
	}
	return t.Retry.Validate()
}

// TaskHandle identifies an accepted task.
type TaskHandle struct {
	Name string
}

// TaskQueue is the durable push-queue contract. Implementations must
// reject a second enqueue of a name that is still in flight with
// ErrDuplicateTask.
type TaskQueue interface {
	// Enqueue schedules the task for delivery. Returns ErrDuplicateTask
	// when a task with the same name is still in flight, ErrQueueFull
	// when the implementation cannot accept more work, and
	// ErrQueueClosed after shutdown has begun.
	Enqueue(ctx context.Context, task Task) (TaskHandle, error)
}

// Processor handles task deliveries. Implementations must be idempotent
// under redelivery: the queue guarantees at-least-once, not
// exactly-once.
type Processor interface {
	// Process runs one delivery of the named task and reports what the
	// queue should do next. It must not panic.
	Process(ctx context.Context, taskName string) Disposition
}

// DispositionKind classifies a processor's verdict on one delivery.
type DispositionKind int

// Possible disposition kinds
const (
	// DispositionSuccess ends delivery: the work is done (or was
	// already done by an earlier delivery).
	DispositionSuccess DispositionKind = iota

	// DispositionRetry asks the queue to redeliver after backoff.
	DispositionRetry

	// DispositionTerminal ends delivery without success; the processor
	// has already recorded the failure.
	DispositionTerminal
)

// String returns a log-friendly name for the kind.
func (k DispositionKind) String() string {
	switch k {
	case DispositionSuccess:
		return "success"
	case DispositionRetry:
		return "retry"
	case DispositionTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Disposition is a processor's explicit outcome for one delivery.
type Disposition struct {
	Kind DispositionKind
	Err  error
}

// Success reports a completed delivery.
func Success() Disposition {
	return Disposition{Kind: DispositionSuccess}
}

// Retry reports a failed attempt that should be redelivered.
func Retry(err error) Disposition {
	return Disposition{Kind: DispositionRetry, Err: err}
}

// Terminal reports a failure that must not be redelivered.
func Terminal(err error) Disposition {
	return Disposition{Kind: DispositionTerminal, Err: err}
}
