package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
)

// taskColumns is the scan list shared by all task metadata queries.
const taskColumns = `task_name, job_id, job_type, status, attempt_count,
	max_attempts, min_backoff_seconds, max_backoff_seconds,
	first_attempt_at, last_attempt_at, error_message, created_at, updated_at`

// PostgresTaskMetadataStore implements the store.TaskMetadataStore
// interface using a PostgreSQL database as the storage backend.
type PostgresTaskMetadataStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskMetadataStore creates a new PostgreSQL implementation of the TaskMetadataStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskMetadataStore(db store.DBTX, logger *slog.Logger) *PostgresTaskMetadataStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskMetadataStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_metadata_store")),
	}
}

// Ensure PostgresTaskMetadataStore implements store.TaskMetadataStore interface
var _ store.TaskMetadataStore = (*PostgresTaskMetadataStore)(nil)

// scanTaskMetadata reads one task metadata row.
func scanTaskMetadata(row rowScanner) (*domain.TaskMetadata, error) {
	var meta domain.TaskMetadata
	var status string
	var firstAttemptAt, lastAttemptAt sql.NullTime
	var errorMessage sql.NullString

	err := row.Scan(
		&meta.TaskName,
		&meta.JobID,
		&meta.JobType,
		&status,
		&meta.AttemptCount,
		&meta.Retry.MaxAttempts,
		&meta.Retry.MinBackoffSeconds,
		&meta.Retry.MaxBackoffSeconds,
		&firstAttemptAt,
		&lastAttemptAt,
		&errorMessage,
		&meta.CreatedAt,
		&meta.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	meta.Status = domain.TaskStatus(status)
	if firstAttemptAt.Valid {
		t := firstAttemptAt.Time
		meta.FirstAttemptAt = &t
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		meta.LastAttemptAt = &t
	}
	meta.ErrorMessage = errorMessage.String

	return &meta, nil
}

// Create implements store.TaskMetadataStore.Create
// Returns store.ErrTaskNameExists if a row with the task name was
// already recorded.
func (s *PostgresTaskMetadataStore) Create(ctx context.Context, meta *domain.TaskMetadata) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := meta.Validate(); err != nil {
		log.Warn("task metadata validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_name", meta.TaskName))
		return err
	}

	query := `
		INSERT INTO task_metadata (task_name, job_id, job_type, status, attempt_count,
			max_attempts, min_backoff_seconds, max_backoff_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		meta.TaskName,
		meta.JobID,
		meta.JobType,
		meta.Status,
		meta.AttemptCount,
		meta.Retry.MaxAttempts,
		meta.Retry.MinBackoffSeconds,
		meta.Retry.MaxBackoffSeconds,
		meta.CreatedAt,
		meta.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolationCode:
				log.Debug("task metadata already recorded",
					slog.String("task_name", meta.TaskName))
				return fmt.Errorf("%w: %s", store.ErrTaskNameExists, meta.TaskName)
			case foreignKeyViolationCode:
				return fmt.Errorf("%w: job %s not found", store.ErrInvalidEntity, meta.JobID)
			}
		}

		log.Error("failed to create task metadata",
			slog.String("error", err.Error()),
			slog.String("task_name", meta.TaskName))
		return err
	}

	log.Info("task metadata created",
		slog.String("task_name", meta.TaskName),
		slog.String("job_id", meta.JobID.String()))
	return nil
}

// GetByName implements store.TaskMetadataStore.GetByName
// Returns store.ErrTaskNotFound if no row exists.
func (s *PostgresTaskMetadataStore) GetByName(ctx context.Context, taskName string) (*domain.TaskMetadata, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM task_metadata WHERE task_name = $1`

	meta, err := scanTaskMetadata(s.db.QueryRowContext(ctx, query, taskName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task metadata not found", slog.String("task_name", taskName))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task metadata",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return nil, err
	}

	return meta, nil
}

// MarkDispatched implements store.TaskMetadataStore.MarkDispatched
// Rows that already advanced past pending are left untouched.
func (s *PostgresTaskMetadataStore) MarkDispatched(ctx context.Context, taskName string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_metadata
		SET status = $2, updated_at = $3
		WHERE task_name = $1 AND status = $4
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		taskName,
		domain.TaskStatusDispatched,
		time.Now().UTC(),
		domain.TaskStatusPending,
	)
	if err != nil {
		log.Error("failed to mark task dispatched",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.errIfMissing(ctx, taskName)
	}

	log.Debug("task marked dispatched", slog.String("task_name", taskName))
	return nil
}

// RecordAttempt implements store.TaskMetadataStore.RecordAttempt
// The increment is a single conditional UPDATE, so concurrent
// deliveries of the same task each count exactly once.
func (s *PostgresTaskMetadataStore) RecordAttempt(ctx context.Context, taskName string) (*domain.TaskMetadata, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE task_metadata
		SET attempt_count = attempt_count + 1,
		    status = $2,
		    first_attempt_at = COALESCE(first_attempt_at, $3),
		    last_attempt_at = $3,
		    updated_at = $3
		WHERE task_name = $1 AND status IN ($4, $5)
		RETURNING ` + taskColumns

	meta, err := scanTaskMetadata(s.db.QueryRowContext(
		ctx,
		query,
		taskName,
		domain.TaskStatusDispatched,
		now,
		domain.TaskStatusPending,
		domain.TaskStatusDispatched,
	))
	if err == nil {
		log.Info("task attempt recorded",
			slog.String("task_name", taskName),
			slog.Int("attempt_count", meta.AttemptCount))
		return meta, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to record task attempt",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return nil, err
	}

	if missErr := s.errIfMissing(ctx, taskName); missErr != nil {
		return nil, missErr
	}

	log.Debug("task already terminal, attempt not recorded",
		slog.String("task_name", taskName))
	return nil, fmt.Errorf("%w: task %s is terminal", store.ErrStatusConflict, taskName)
}

// RecordError implements store.TaskMetadataStore.RecordError
// Terminal and missing rows are left untouched; recording the error is
// best-effort bookkeeping on the retry path.
func (s *PostgresTaskMetadataStore) RecordError(ctx context.Context, taskName, message string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_metadata
		SET error_message = $2, updated_at = $3
		WHERE task_name = $1 AND status NOT IN ($4, $5)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		taskName,
		message,
		time.Now().UTC(),
		domain.TaskStatusSucceeded,
		domain.TaskStatusFailed,
	)
	if err != nil {
		log.Error("failed to record task error",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return err
	}

	return nil
}

// MarkSucceeded implements store.TaskMetadataStore.MarkSucceeded
// Returns store.ErrStatusConflict if the row is already terminal.
func (s *PostgresTaskMetadataStore) MarkSucceeded(ctx context.Context, taskName string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_metadata
		SET status = $2, updated_at = $3
		WHERE task_name = $1 AND status NOT IN ($2, $4)
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		taskName,
		domain.TaskStatusSucceeded,
		time.Now().UTC(),
		domain.TaskStatusFailed,
	)
	if err != nil {
		log.Error("failed to mark task succeeded",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if missErr := s.errIfMissing(ctx, taskName); missErr != nil {
			return missErr
		}
		return fmt.Errorf("%w: task %s is terminal", store.ErrStatusConflict, taskName)
	}

	log.Info("task marked succeeded", slog.String("task_name", taskName))
	return nil
}

// MarkFailed implements store.TaskMetadataStore.MarkFailed
// The returned bool is true only for the call that performed the
// transition into failed.
func (s *PostgresTaskMetadataStore) MarkFailed(ctx context.Context, taskName, message string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_metadata
		SET status = $2, error_message = $3, updated_at = $4
		WHERE task_name = $1 AND status NOT IN ($2, $5)
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		taskName,
		domain.TaskStatusFailed,
		message,
		time.Now().UTC(),
		domain.TaskStatusSucceeded,
	)
	if err != nil {
		log.Error("failed to mark task failed",
			slog.String("error", err.Error()),
			slog.String("task_name", taskName))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if missErr := s.errIfMissing(ctx, taskName); missErr != nil {
			return false, missErr
		}
		log.Debug("task already terminal, failure transition skipped",
			slog.String("task_name", taskName))
		return false, nil
	}

	log.Info("task marked failed", slog.String("task_name", taskName))
	return true, nil
}

// WithTx implements store.TaskMetadataStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresTaskMetadataStore) WithTx(tx *sql.Tx) store.TaskMetadataStore {
	return &PostgresTaskMetadataStore{
		db:     tx,
		logger: s.logger,
	}
}

// errIfMissing returns ErrTaskNotFound when no row exists for the task
// name, and nil when the row exists (the caller lost a status race).
func (s *PostgresTaskMetadataStore) errIfMissing(ctx context.Context, taskName string) error {
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM task_metadata WHERE task_name = $1)`,
		taskName,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	return nil
}
