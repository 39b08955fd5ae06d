package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/metrics"
	"github.com/auspexhq/insight-api/internal/queue"
	"github.com/auspexhq/insight-api/internal/store"
)

// quotaWindow is the trailing window the daily job limit is counted
// over.
const quotaWindow = 24 * time.Hour

// TaskDispatcher submits the durable generation task for an admitted
// job. Implemented by queue.Dispatcher.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, job *domain.InsightJob) (queue.TaskHandle, error)
}

// InsightService provides insight job admission and the read paths for
// jobs and artifacts.
type InsightService interface {
	// RequestInsight admits a new generation job for the user and
	// dispatches its task. Returns ErrJobInProgress when the user
	// already has an active job, ErrRateLimited at the daily quota, and
	// ErrDispatchFailed when the job was persisted but enqueueing
	// failed.
	RequestInsight(ctx context.Context, userID uuid.UUID, params domain.InsightParams) (*domain.InsightJob, error)

	// GetJob retrieves one of the user's jobs by ID. Jobs of other
	// users are reported as ErrJobNotFound.
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*domain.InsightJob, error)

	// GetInsight retrieves one of the user's artifacts by ID. Artifacts
	// of other users are reported as ErrInsightNotFound.
	GetInsight(ctx context.Context, userID, insightID uuid.UUID) (*domain.Insight, error)
}

// ServiceError wraps errors from the insight service with the operation
// that hit them.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "request_insight")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insight service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("insight service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError. Known sentinel errors are
// returned directly without wrapping, store-level not-found sentinels
// are mapped to their service-level equivalents.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrJobInProgress) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDispatchFailed) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrInsightNotFound) {
		return err
	}

	if errors.Is(err, store.ErrActiveJobExists) {
		return ErrJobInProgress
	}
	if errors.Is(err, store.ErrJobNotFound) {
		return ErrJobNotFound
	}
	if errors.Is(err, store.ErrInsightNotFound) {
		return ErrInsightNotFound
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// insightServiceImpl implements the InsightService interface
type insightServiceImpl struct {
	jobs       store.JobStore
	tasks      store.TaskMetadataStore
	insights   store.InsightStore
	txRunner   store.TxRunner
	dispatcher TaskDispatcher
	engines    []domain.EngineConfig
	retry      domain.RetryPolicy
	dailyLimit int
	logger     *slog.Logger
}

// InsightServiceParams collects the dependencies of the service.
type InsightServiceParams struct {
	Jobs       store.JobStore
	Tasks      store.TaskMetadataStore
	Insights   store.InsightStore
	TxRunner   store.TxRunner
	Dispatcher TaskDispatcher

	// Engines is the primary/secondary pair snapshotted into every
	// admitted job.
	Engines []domain.EngineConfig
	// Retry bounds queue redelivery for the jobs' tasks.
	Retry domain.RetryPolicy
	// DailyLimit caps jobs per user over the trailing 24 hours.
	DailyLimit int

	Logger *slog.Logger
}

// NewInsightService creates a new InsightService.
// It returns an error if any of the required dependencies are invalid.
func NewInsightService(params InsightServiceParams) (InsightService, error) {
	if params.Jobs == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "job store cannot be nil"}
	}
	if params.Tasks == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "task metadata store cannot be nil"}
	}
	if params.Insights == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "insight store cannot be nil"}
	}
	if params.TxRunner == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "transaction runner cannot be nil"}
	}
	if params.Dispatcher == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "dispatcher cannot be nil"}
	}
	if len(params.Engines) != 2 {
		return nil, &ServiceError{Operation: "create_service", Message: "exactly two engine configs are required"}
	}
	for _, cfg := range params.Engines {
		if err := cfg.Validate(); err != nil {
			return nil, &ServiceError{Operation: "create_service", Message: "invalid engine config", Err: err}
		}
	}
	if err := params.Retry.Validate(); err != nil {
		return nil, &ServiceError{Operation: "create_service", Message: "invalid retry policy", Err: err}
	}
	if params.DailyLimit < 1 {
		return nil, &ServiceError{Operation: "create_service", Message: "daily limit must be at least 1"}
	}

	log := params.Logger
	if log == nil {
		log = slog.Default()
	}

	return &insightServiceImpl{
		jobs:       params.Jobs,
		tasks:      params.Tasks,
		insights:   params.Insights,
		txRunner:   params.TxRunner,
		dispatcher: params.Dispatcher,
		engines:    params.Engines,
		retry:      params.Retry,
		dailyLimit: params.DailyLimit,
		logger:     log.With(slog.String("component", "insight_service")),
	}, nil
}

// RequestInsight admits a job for the user: checks the active-job rule
// and the daily quota, persists the job and its task metadata in one
// transaction, then dispatches the durable task. The fast-path checks
// are advisory; the partial unique index behind jobs.Create is what
// holds the active-job rule under concurrent admissions.
func (s *insightServiceImpl) RequestInsight(ctx context.Context, userID uuid.UUID, params domain.InsightParams) (*domain.InsightJob, error) {
	log := s.logger.With(slog.String("user_id", userID.String()))

	_, err := s.jobs.FindActiveByUser(ctx, userID)
	switch {
	case err == nil:
		metrics.JobsRejected.WithLabelValues("in_progress").Inc()
		return nil, ErrJobInProgress
	case errors.Is(err, store.ErrJobNotFound):
		// No active job; admission continues.
	default:
		log.Error("failed to check for active job", slog.String("error", err.Error()))
		return nil, NewServiceError("request_insight", "failed to check for active job", err)
	}

	since := time.Now().UTC().Add(-quotaWindow)
	count, err := s.jobs.CountCreatedSince(ctx, userID, since)
	if err != nil {
		log.Error("failed to count recent jobs", slog.String("error", err.Error()))
		return nil, NewServiceError("request_insight", "failed to count recent jobs", err)
	}
	if count >= s.dailyLimit {
		log.Info("job rejected by daily quota",
			slog.Int("count", count),
			slog.Int("limit", s.dailyLimit))
		metrics.JobsRejected.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	job, err := domain.NewInsightJob(userID, params, s.engines)
	if err != nil {
		return nil, NewServiceError("request_insight", "invalid insight request", err)
	}

	meta, err := domain.NewTaskMetadata(queue.TaskName(job.ID), job.ID, domain.JobTypeInsightGeneration, s.retry)
	if err != nil {
		return nil, NewServiceError("request_insight", "failed to build task metadata", err)
	}

	err = s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.jobs.WithTx(tx).Create(ctx, job); err != nil {
			return err
		}
		if err := s.tasks.WithTx(tx).Create(ctx, meta); err != nil {
			return fmt.Errorf("failed to create task metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrActiveJobExists) {
			// Lost the admission race to a concurrent request.
			metrics.JobsRejected.WithLabelValues("in_progress").Inc()
			return nil, ErrJobInProgress
		}
		log.Error("failed to persist job",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return nil, NewServiceError("request_insight", "failed to persist job", err)
	}

	log = log.With(slog.String("job_id", job.ID.String()))

	if _, err := s.dispatcher.Dispatch(ctx, job); err != nil {
		// The job row stays queued; surfacing the failure lets the
		// caller retry the request once the duplicate-task dedup makes
		// re-dispatch safe.
		log.Error("failed to dispatch job task", slog.String("error", err.Error()))
		return nil, ErrDispatchFailed
	}

	metrics.JobsAdmitted.Inc()
	log.Info("insight job admitted", slog.String("subject", params.Subject))
	return job, nil
}

// GetJob retrieves a job scoped to the requesting user.
func (s *insightServiceImpl) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*domain.InsightJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		s.logger.Error("failed to retrieve job",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()))
		return nil, NewServiceError("get_job", "failed to retrieve job", err)
	}

	// Foreign jobs read as absent so job IDs cannot be probed.
	if job.RequestedBy != userID {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// GetInsight retrieves an artifact scoped to the requesting user.
func (s *insightServiceImpl) GetInsight(ctx context.Context, userID, insightID uuid.UUID) (*domain.Insight, error) {
	insight, err := s.insights.GetByID(ctx, insightID)
	if err != nil {
		if errors.Is(err, store.ErrInsightNotFound) {
			return nil, ErrInsightNotFound
		}
		s.logger.Error("failed to retrieve insight",
			slog.String("insight_id", insightID.String()),
			slog.String("error", err.Error()))
		return nil, NewServiceError("get_insight", "failed to retrieve insight", err)
	}

	if insight.UserID != userID {
		return nil, ErrInsightNotFound
	}

	return insight, nil
}
