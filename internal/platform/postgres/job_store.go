package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// activeJobConstraint is the partial unique index that admits at most
// one queued or running job per user.
const activeJobConstraint = "insight_jobs_one_active_per_user"

// jobColumns is the scan list shared by all job queries.
const jobColumns = `id, requested_by, status, payload, artifact_id,
	error_code, error_message, created_at, dispatched_at, completed_at, updated_at`

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan path.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one job row, including the JSONB payload.
func scanJob(row rowScanner) (*domain.InsightJob, error) {
	var job domain.InsightJob
	var status string
	var payload []byte
	var artifactID uuid.NullUUID
	var errorCode, errorMessage sql.NullString
	var dispatchedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.RequestedBy,
		&status,
		&payload,
		&artifactID,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&dispatchedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	if artifactID.Valid {
		id := artifactID.UUID
		job.ArtifactID = &id
	}
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		job.DispatchedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("%w: malformed job payload: %v", store.ErrInvalidEntity, err)
	}

	// Reject payload shapes this build does not understand.
	if err := job.Payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	return &job, nil
}

// Create implements store.JobStore.Create
// It saves a new job to the database, handling domain validation.
// Returns store.ErrActiveJobExists if the partial unique index rejects
// a second active job for the same user.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.InsightJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO insight_jobs (id, requested_by, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.RequestedBy,
		job.Status,
		payload,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			if pgErr.ConstraintName == activeJobConstraint {
				log.Info("admission rejected, user already has an active job",
					slog.String("job_id", job.ID.String()),
					slog.String("user_id", job.RequestedBy.String()))
				return fmt.Errorf("%w: user %s", store.ErrActiveJobExists, job.RequestedBy)
			}
			return fmt.Errorf("%w: job %s", store.ErrDuplicate, job.ID)
		}

		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("user_id", job.RequestedBy.String()))
		return err
	}

	log.Info("job created successfully",
		slog.String("job_id", job.ID.String()),
		slog.String("user_id", job.RequestedBy.String()),
		slog.String("status", string(job.Status)))
	return nil
}

// GetByID implements store.JobStore.GetByID
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + jobColumns + ` FROM insight_jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("job not found", slog.String("job_id", id.String()))
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, err
	}

	return job, nil
}

// FindActiveByUser implements store.JobStore.FindActiveByUser
// Returns store.ErrJobNotFound when the user has no queued or running job.
func (s *PostgresJobStore) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*domain.InsightJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + jobColumns + `
		FROM insight_jobs
		WHERE requested_by = $1 AND status IN ($2, $3)
		LIMIT 1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, userID, domain.JobStatusQueued, domain.JobStatusRunning))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to find active job",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}

	return job, nil
}

// CountCreatedSince implements store.JobStore.CountCreatedSince
func (s *PostgresJobStore) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*)
		FROM insight_jobs
		WHERE requested_by = $1 AND created_at >= $2
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&count)
	if err != nil {
		log.Error("failed to count jobs for user",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, err
	}

	return count, nil
}

// ClaimForProcessing implements store.JobStore.ClaimForProcessing
// The transition is a single conditional UPDATE, so concurrent workers
// claiming the same job see exactly one winner.
func (s *PostgresJobStore) ClaimForProcessing(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE insight_jobs
		SET status = $2,
		    dispatched_at = COALESCE(dispatched_at, $3),
		    error_code = NULL,
		    error_message = NULL,
		    completed_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(
		ctx,
		query,
		id,
		domain.JobStatusRunning,
		now,
		domain.JobStatusQueued,
		domain.JobStatusFailed,
	))
	if err == nil {
		log.Info("job claimed for processing", slog.String("job_id", id.String()))
		return job, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to claim job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, err
	}

	// Nothing matched: distinguish a missing row from an ineligible status.
	var exists bool
	checkErr := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM insight_jobs WHERE id = $1)`,
		id,
	).Scan(&exists)
	if checkErr != nil {
		log.Error("failed to check job existence after claim miss",
			slog.String("error", checkErr.Error()),
			slog.String("job_id", id.String()))
		return nil, checkErr
	}

	if !exists {
		log.Debug("job not found for claim", slog.String("job_id", id.String()))
		return nil, store.ErrJobNotFound
	}

	log.Debug("job not claimable", slog.String("job_id", id.String()))
	return nil, fmt.Errorf("%w: job %s is not claimable", store.ErrStatusConflict, id)
}

// MarkSucceeded implements store.JobStore.MarkSucceeded
// Returns store.ErrStatusConflict if the job is not currently running.
func (s *PostgresJobStore) MarkSucceeded(ctx context.Context, id, artifactID uuid.UUID, payload domain.JobPayload) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE insight_jobs
		SET status = $2,
		    artifact_id = $3,
		    payload = $4,
		    error_code = NULL,
		    error_message = NULL,
		    completed_at = $5,
		    updated_at = $5
		WHERE id = $1 AND status = $6
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		id,
		domain.JobStatusSucceeded,
		artifactID,
		raw,
		now,
		domain.JobStatusRunning,
	)
	if err != nil {
		log.Error("failed to mark job succeeded",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("job not running, success transition skipped",
			slog.String("job_id", id.String()))
		return fmt.Errorf("%w: job %s is not running", store.ErrStatusConflict, id)
	}

	log.Info("job marked succeeded",
		slog.String("job_id", id.String()),
		slog.String("artifact_id", artifactID.String()))
	return nil
}

// MarkFailed implements store.JobStore.MarkFailed
// Returns store.ErrStatusConflict if the job is not currently running.
func (s *PostgresJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, payload domain.JobPayload) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE insight_jobs
		SET status = $2,
		    error_code = $3,
		    error_message = $4,
		    payload = $5,
		    completed_at = $6,
		    updated_at = $6
		WHERE id = $1 AND status = $7
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		id,
		domain.JobStatusFailed,
		errorCode,
		errorMessage,
		raw,
		now,
		domain.JobStatusRunning,
	)
	if err != nil {
		log.Error("failed to mark job failed",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("job not running, failure transition skipped",
			slog.String("job_id", id.String()))
		return fmt.Errorf("%w: job %s is not running", store.ErrStatusConflict, id)
	}

	log.Info("job marked failed",
		slog.String("job_id", id.String()),
		slog.String("error_code", errorCode))
	return nil
}

// WithTx implements store.JobStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}
