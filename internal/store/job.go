package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/google/uuid"
)

// JobStore defines the interface for insight job persistence. Write
// operations are the exact state-machine transitions the pipeline
// performs; there is deliberately no free-form Update, so a row can
// only move along queued -> running -> succeeded/failed (and
// failed -> running again on a queue retry).
type JobStore interface {
	// Create saves a new job to the store.
	// It handles domain validation internally.
	// Returns ErrActiveJobExists if the user already has a queued or
	// running job (enforced by a partial unique index, so it holds
	// under concurrent admissions).
	Create(ctx context.Context, job *domain.InsightJob) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error)

	// FindActiveByUser retrieves the user's queued or running job, if any.
	// Returns ErrJobNotFound when the user has no active job.
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*domain.InsightJob, error)

	// CountCreatedSince returns how many jobs the user has created at or
	// after the given instant, regardless of status.
	CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// ClaimForProcessing atomically transitions a queued or failed job to
	// running and returns the updated row. DispatchedAt is set on the
	// first claim only; error fields and CompletedAt are cleared so a
	// retried job looks in-flight again.
	// Returns ErrJobNotFound if the job does not exist and
	// ErrStatusConflict if it is not claimable (already running, or
	// terminal succeeded).
	ClaimForProcessing(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error)

	// MarkSucceeded transitions a running job to succeeded, recording the
	// artifact ID, the final payload (attempt history and metrics), and
	// the completion time.
	// Returns ErrStatusConflict if the job is not currently running.
	MarkSucceeded(ctx context.Context, id, artifactID uuid.UUID, payload domain.JobPayload) error

	// MarkFailed transitions a running job to failed with a machine-readable
	// error code, a human-readable message, and the final payload.
	// Returns ErrStatusConflict if the job is not currently running.
	MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, payload domain.JobPayload) error

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}
