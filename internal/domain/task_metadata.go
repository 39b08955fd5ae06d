package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the dispatch state of a durable task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for TaskMetadata
var (
	ErrEmptyTaskName      = errors.New("task name cannot be empty")
	ErrEmptyTaskJobID     = errors.New("task job ID cannot be empty")
	ErrEmptyTaskJobType   = errors.New("task job type cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// RetryPolicy bounds how a failed task is retried by the queue.
type RetryPolicy struct {
	MaxAttempts       int `json:"max_attempts"`
	MinBackoffSeconds int `json:"min_backoff_seconds"`
	MaxBackoffSeconds int `json:"max_backoff_seconds"`
}

// Validate checks if the RetryPolicy has valid bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}

	if p.MinBackoffSeconds < 0 || p.MaxBackoffSeconds < p.MinBackoffSeconds {
		return ErrInvalidRetryPolicy
	}

	return nil
}

// MinBackoff returns the lower backoff bound as a duration.
func (p RetryPolicy) MinBackoff() time.Duration {
	return time.Duration(p.MinBackoffSeconds) * time.Second
}

// MaxBackoff returns the upper backoff bound as a duration.
func (p RetryPolicy) MaxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffSeconds) * time.Second
}

// Backoff returns the wait before redelivering a task that has already
// failed the given number of attempts, doubling from the minimum bound
// and capped at the maximum.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	backoff := p.MinBackoff()
	limit := p.MaxBackoff()
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= limit || backoff <= 0 {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

// TaskMetadata tracks one durable task across queue deliveries. The
// task name doubles as the queue-level deduplication key, so there is
// exactly one row per logical task. Terminal rows are immutable.
type TaskMetadata struct {
	TaskName       string      `json:"task_name"`
	JobID          uuid.UUID   `json:"job_id"`
	JobType        string      `json:"job_type"`
	Status         TaskStatus  `json:"status"`
	AttemptCount   int         `json:"attempt_count"`
	Retry          RetryPolicy `json:"retry"`
	FirstAttemptAt *time.Time  `json:"first_attempt_at,omitempty"`
	LastAttemptAt  *time.Time  `json:"last_attempt_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewTaskMetadata creates a pending metadata row for the given task
// name and job. Returns an error if validation fails.
func NewTaskMetadata(taskName string, jobID uuid.UUID, jobType string, retry RetryPolicy) (*TaskMetadata, error) {
	now := time.Now().UTC()
	meta := &TaskMetadata{
		TaskName:  taskName,
		JobID:     jobID,
		JobType:   jobType,
		Status:    TaskStatusPending,
		Retry:     retry,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return meta, nil
}

// Validate checks if the TaskMetadata has valid data.
func (t *TaskMetadata) Validate() error {
	if t.TaskName == "" {
		return ErrEmptyTaskName
	}

	if t.JobID == uuid.Nil {
		return ErrEmptyTaskJobID
	}

	if t.JobType == "" {
		return ErrEmptyTaskJobType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return t.Retry.Validate()
}

// IsTerminal reports whether the status admits no further attempts.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// ExhaustedAttempts reports whether the attempt count has reached the
// retry cap.
func (t *TaskMetadata) ExhaustedAttempts() bool {
	return t.AttemptCount >= t.Retry.MaxAttempts
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusDispatched, TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}
