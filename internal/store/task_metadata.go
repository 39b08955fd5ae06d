package store

import (
	"context"
	"database/sql"

	"github.com/auspexhq/insight-api/internal/domain"
)

// TaskMetadataStore defines the interface for durable task tracking.
// Rows are keyed by task name, which is also the queue's deduplication
// key, so one row exists per logical task no matter how many times the
// queue delivers it.
type TaskMetadataStore interface {
	// Create saves a new metadata row in the pending status.
	// It handles domain validation internally.
	// Returns ErrTaskNameExists if a row with the task name was already
	// recorded.
	Create(ctx context.Context, meta *domain.TaskMetadata) error

	// GetByName retrieves a metadata row by task name.
	// Returns ErrTaskNotFound if no row exists.
	GetByName(ctx context.Context, taskName string) (*domain.TaskMetadata, error)

	// MarkDispatched transitions a pending row to dispatched after the
	// task has been handed to the queue. A row that already advanced
	// past pending is left untouched.
	MarkDispatched(ctx context.Context, taskName string) error

	// RecordAttempt atomically increments the attempt counter, stamps the
	// attempt timestamps, and returns the updated row. Only non-terminal
	// rows are counted.
	// Returns ErrTaskNotFound if no row exists and ErrStatusConflict if
	// the row is already terminal.
	RecordAttempt(ctx context.Context, taskName string) (*domain.TaskMetadata, error)

	// RecordError stores the most recent processing error on a
	// non-terminal row.
	RecordError(ctx context.Context, taskName, message string) error

	// MarkSucceeded transitions a non-terminal row to succeeded.
	// Returns ErrStatusConflict if the row is already terminal.
	MarkSucceeded(ctx context.Context, taskName string) error

	// MarkFailed transitions a non-terminal row to failed, recording the
	// final error. The returned bool is true only for the call that
	// performed the transition, so side effects gated on it (the
	// dead-letter alert) happen exactly once per task.
	MarkFailed(ctx context.Context, taskName, message string) (bool, error)

	// WithTx returns a new TaskMetadataStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskMetadataStore
}
