package store

import (
	"context"
	"database/sql"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/google/uuid"
)

// InsightStore defines the interface for insight artifact persistence.
// Artifacts are written once by the worker and read by the API; they
// are never updated.
type InsightStore interface {
	// Create saves a new insight artifact to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, insight *domain.Insight) error

	// GetByID retrieves an artifact by its unique ID.
	// Returns ErrInsightNotFound if the artifact does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Insight, error)

	// GetByJobID retrieves the artifact produced by the given job.
	// Returns ErrInsightNotFound if the job has no artifact.
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.Insight, error)

	// WithTx returns a new InsightStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) InsightStore
}
