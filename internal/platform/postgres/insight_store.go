package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// insightColumns is the scan list shared by all insight queries.
const insightColumns = `id, job_id, user_id, title, summary, insights,
	recommendations, meta, created_at`

// PostgresInsightStore implements the store.InsightStore interface
// using a PostgreSQL database as the storage backend.
type PostgresInsightStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresInsightStore creates a new PostgreSQL implementation of the InsightStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresInsightStore(db store.DBTX, logger *slog.Logger) *PostgresInsightStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresInsightStore{
		db:     db,
		logger: logger.With(slog.String("component", "insight_store")),
	}
}

// Ensure PostgresInsightStore implements store.InsightStore interface
var _ store.InsightStore = (*PostgresInsightStore)(nil)

// scanInsight reads one insight row, including the JSONB columns.
func scanInsight(row rowScanner) (*domain.Insight, error) {
	var insight domain.Insight
	var insights, recommendations, meta []byte

	err := row.Scan(
		&insight.ID,
		&insight.JobID,
		&insight.UserID,
		&insight.Title,
		&insight.Summary,
		&insights,
		&recommendations,
		&meta,
		&insight.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(insights, &insight.Insights); err != nil {
		return nil, fmt.Errorf("%w: malformed insights column: %v", store.ErrInvalidEntity, err)
	}
	if err := json.Unmarshal(recommendations, &insight.Recommendations); err != nil {
		return nil, fmt.Errorf("%w: malformed recommendations column: %v", store.ErrInvalidEntity, err)
	}
	if err := json.Unmarshal(meta, &insight.Meta); err != nil {
		return nil, fmt.Errorf("%w: malformed meta column: %v", store.ErrInvalidEntity, err)
	}

	return &insight, nil
}

// Create implements store.InsightStore.Create
// Returns store.ErrDuplicate if the job already has an artifact and
// store.ErrInvalidEntity if the referenced job does not exist.
func (s *PostgresInsightStore) Create(ctx context.Context, insight *domain.Insight) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := insight.Validate(); err != nil {
		log.Warn("insight validation failed during create",
			slog.String("error", err.Error()),
			slog.String("insight_id", insight.ID.String()))
		return err
	}

	insights, err := json.Marshal(insight.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}
	recommendations, err := json.Marshal(insight.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	meta, err := json.Marshal(insight.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal consensus meta: %w", err)
	}

	query := `
		INSERT INTO insights (id, job_id, user_id, title, summary, insights,
			recommendations, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		insight.ID,
		insight.JobID,
		insight.UserID,
		insight.Title,
		insight.Summary,
		insights,
		recommendations,
		meta,
		insight.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolationCode:
				log.Warn("artifact already exists for job",
					slog.String("job_id", insight.JobID.String()))
				return fmt.Errorf("%w: artifact for job %s", store.ErrDuplicate, insight.JobID)
			case foreignKeyViolationCode:
				return fmt.Errorf("%w: job %s not found", store.ErrInvalidEntity, insight.JobID)
			}
		}

		log.Error("failed to create insight",
			slog.String("error", err.Error()),
			slog.String("insight_id", insight.ID.String()))
		return err
	}

	log.Info("insight created",
		slog.String("insight_id", insight.ID.String()),
		slog.String("job_id", insight.JobID.String()),
		slog.String("user_id", insight.UserID.String()))
	return nil
}

// GetByID implements store.InsightStore.GetByID
// Returns store.ErrInsightNotFound if the artifact does not exist.
func (s *PostgresInsightStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Insight, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + insightColumns + ` FROM insights WHERE id = $1`

	insight, err := scanInsight(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("insight not found", slog.String("insight_id", id.String()))
			return nil, store.ErrInsightNotFound
		}
		log.Error("failed to get insight by ID",
			slog.String("error", err.Error()),
			slog.String("insight_id", id.String()))
		return nil, err
	}

	return insight, nil
}

// GetByJobID implements store.InsightStore.GetByJobID
// Returns store.ErrInsightNotFound if the job has no artifact.
func (s *PostgresInsightStore) GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.Insight, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + insightColumns + ` FROM insights WHERE job_id = $1`

	insight, err := scanInsight(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInsightNotFound
		}
		log.Error("failed to get insight by job ID",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, err
	}

	return insight, nil
}

// WithTx implements store.InsightStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresInsightStore) WithTx(tx *sql.Tx) store.InsightStore {
	return &PostgresInsightStore{
		db:     tx,
		logger: s.logger,
	}
}
