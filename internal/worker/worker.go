// Package worker implements the queue-facing job processor. Each task
// delivery drives one insight job through its state machine: claim,
// orchestrate, persist, and report an explicit disposition back to the
// queue. The processor tolerates duplicate and concurrent deliveries of
// the same task; every collision resolves through a conditional store
// update, never through in-process locking.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auspexhq/insight-api/internal/alerting"
	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/orchestrator"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/platform/metrics"
	"github.com/auspexhq/insight-api/internal/queue"
	"github.com/auspexhq/insight-api/internal/store"
)

// Generator produces one consensus result per processing attempt.
// Implemented by orchestrator.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, params domain.InsightParams, configs []domain.EngineConfig) (*domain.ConsensusResult, error)
}

// CacheInvalidator drops a user's derived views after their job
// completes. Implemented by rediscache.Invalidator.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// InsightProcessor processes insight generation tasks.
type InsightProcessor struct {
	logger    *slog.Logger
	jobs      store.JobStore
	tasks     store.TaskMetadataStore
	insights  store.InsightStore
	txRunner  store.TxRunner
	generator Generator
	alerts    alerting.Sink
	cache     CacheInvalidator
}

var _ queue.Processor = (*InsightProcessor)(nil)

// ProcessorParams collects the dependencies of the processor.
type ProcessorParams struct {
	Logger    *slog.Logger
	Jobs      store.JobStore
	Tasks     store.TaskMetadataStore
	Insights  store.InsightStore
	TxRunner  store.TxRunner
	Generator Generator
	Alerts    alerting.Sink
	Cache     CacheInvalidator
}

// NewInsightProcessor validates the dependencies and creates the
// processor. Cache is optional; everything else is required.
func NewInsightProcessor(params ProcessorParams) (*InsightProcessor, error) {
	if params.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if params.Jobs == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if params.Tasks == nil {
		return nil, errors.New("task metadata store cannot be nil")
	}
	if params.Insights == nil {
		return nil, errors.New("insight store cannot be nil")
	}
	if params.TxRunner == nil {
		return nil, errors.New("transaction runner cannot be nil")
	}
	if params.Generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if params.Alerts == nil {
		return nil, errors.New("alert sink cannot be nil")
	}

	return &InsightProcessor{
		logger:    params.Logger.With(slog.String("component", "insight_processor")),
		jobs:      params.Jobs,
		tasks:     params.Tasks,
		insights:  params.Insights,
		txRunner:  params.TxRunner,
		generator: params.Generator,
		alerts:    params.Alerts,
		cache:     params.Cache,
	}, nil
}

// Process implements queue.Processor. It is safe to invoke more than
// once for the same task: duplicate deliveries resolve to no-op
// successes off the task metadata status or the job claim.
func (p *InsightProcessor) Process(ctx context.Context, taskName string) (d queue.Disposition) {
	log := logger.FromContextOrDefault(ctx, p.logger).With(slog.String("task_name", taskName))

	// Nothing is claimed yet at this level, so a panic here can simply
	// hand the delivery back to the queue.
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered before job claim", slog.Any("panic", r))
			d = queue.Retry(fmt.Errorf("panic: %v", r))
		}
	}()

	meta, err := p.tasks.GetByName(ctx, taskName)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Warn("no metadata for delivered task, skipping")
			return queue.Success()
		}
		log.Error("failed to load task metadata", slog.String("error", err.Error()))
		return queue.Retry(err)
	}

	if meta.Status.IsTerminal() {
		log.Debug("task already terminal, duplicate delivery skipped",
			slog.String("status", string(meta.Status)))
		return queue.Success()
	}

	log = log.With(slog.String("job_id", meta.JobID.String()))
	ctx = logger.WithLogger(ctx, log)

	if meta.ExhaustedAttempts() {
		// A previous delivery burned the final attempt but its terminal
		// transition did not land. Nothing is left to run and the
		// attempt count must not move; finish the dead-letter
		// bookkeeping instead of re-claiming the job.
		msg := meta.ErrorMessage
		if msg == "" {
			msg = "attempt budget exhausted"
		}
		log.Warn("attempts already exhausted, finishing dead-letter transition")
		return p.finishDeadLetter(ctx, log, meta, msg, errors.New(msg))
	}

	job, err := p.jobs.ClaimForProcessing(ctx, meta.JobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrJobNotFound):
			log.Warn("job missing for task, skipping")
			return queue.Success()
		case errors.Is(err, store.ErrStatusConflict):
			log.Info("job not claimable, another delivery owns it")
			return queue.Success()
		default:
			log.Error("failed to claim job", slog.String("error", err.Error()))
			return queue.Retry(err)
		}
	}

	return p.runAttempt(ctx, log, job, meta)
}

// runAttempt owns the job from the moment it is claimed. Every exit
// path moves the job out of running, so a crash in here cannot strand
// it.
func (p *InsightProcessor) runAttempt(ctx context.Context, log *slog.Logger, job *domain.InsightJob, meta *domain.TaskMetadata) (d queue.Disposition) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered during attempt", slog.Any("panic", r))
			d = p.failAttempt(ctx, log, job, meta, start, domain.ErrorCodeInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	counted, err := p.tasks.RecordAttempt(ctx, meta.TaskName)
	switch {
	case err == nil:
		meta = counted
	case errors.Is(err, store.ErrStatusConflict):
		// The task went terminal between the idempotency check and the
		// claim. Put the job back so it is not stranded in running.
		log.Warn("task terminal after claim, rolling the claim back")
		p.releaseClaim(ctx, log, job)
		return queue.Success()
	default:
		log.Error("failed to record attempt", slog.String("error", err.Error()))
		return p.failAttempt(ctx, log, job, meta, start, domain.ErrorCodeInternal, err)
	}

	log = log.With(slog.Int("attempt", meta.AttemptCount))
	ctx = logger.WithLogger(ctx, log)
	log.Info("processing insight job")

	result, err := p.generator.Generate(ctx, job.Payload.Params, job.Payload.Engines)
	if err != nil {
		code := domain.ErrorCodeInternal
		var orchErr *orchestrator.OrchestrationError
		if errors.As(err, &orchErr) {
			code = domain.ErrorCodeProviderFailure
		}
		return p.failAttempt(ctx, log, job, meta, start, code, err)
	}

	return p.completeJob(ctx, log, job, meta, start, result)
}

// completeJob persists the artifact and the job's success transition in
// one transaction, then finishes the bookkeeping that may fail without
// failing the job.
func (p *InsightProcessor) completeJob(ctx context.Context, log *slog.Logger, job *domain.InsightJob, meta *domain.TaskMetadata, start time.Time, result *domain.ConsensusResult) queue.Disposition {
	insight, err := domain.NewInsight(job.ID, job.RequestedBy, *result)
	if err != nil {
		return p.failAttempt(ctx, log, job, meta, start, domain.ErrorCodeInternal,
			fmt.Errorf("failed to build artifact: %w", err))
	}

	job.RecordAttempt(domain.AttemptRecord{
		EngineID:  attemptEngineID(result, job),
		Outcome:   domain.AttemptOutcomeOK,
		LatencyMs: time.Since(start).Milliseconds(),
		At:        time.Now().UTC(),
	})
	job.Payload.Metrics = &domain.JobMetrics{
		RetryCount:   meta.AttemptCount - 1,
		FailoverUsed: result.FailoverUsed,
	}

	err = p.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := p.insights.WithTx(tx).Create(ctx, insight); err != nil {
			return fmt.Errorf("failed to persist artifact: %w", err)
		}
		if err := p.jobs.WithTx(tx).MarkSucceeded(ctx, job.ID, insight.ID, job.Payload); err != nil {
			return fmt.Errorf("failed to mark job succeeded: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrStatusConflict) {
			// A concurrent delivery already persisted this job's result.
			log.Info("result already persisted by another delivery",
				slog.String("error", err.Error()))
			p.finishTask(ctx, log, meta.TaskName)
			return queue.Success()
		}
		return p.failAttempt(ctx, log, job, meta, start, domain.ErrorCodeInternal, err)
	}

	p.finishTask(ctx, log, meta.TaskName)
	p.invalidateCache(ctx, log, job.RequestedBy)

	metrics.JobsProcessed.WithLabelValues("succeeded").Inc()
	if result.FailoverUsed {
		metrics.Failovers.Inc()
	}
	for _, out := range result.Engines {
		metrics.EngineLatency.WithLabelValues(out.EngineID).Observe(float64(out.LatencyMs) / 1000)
	}

	log.Info("insight job succeeded",
		slog.String("artifact_id", insight.ID.String()),
		slog.Bool("failover_used", result.FailoverUsed),
		slog.Float64("confidence_score", result.ConfidenceScore),
		slog.Int("attempt_count", meta.AttemptCount))
	return queue.Success()
}

// failAttempt drives the failure path: the job moves to failed with an
// appended attempt record, the error lands on the task metadata, and
// the disposition tells the queue whether to redeliver. At the attempt
// cap the metadata transition into failed is conditional, so the
// dead-letter alert fires exactly once no matter how deliveries race.
func (p *InsightProcessor) failAttempt(ctx context.Context, log *slog.Logger, job *domain.InsightJob, meta *domain.TaskMetadata, start time.Time, errorCode string, cause error) queue.Disposition {
	msg := cause.Error()

	job.RecordAttempt(domain.AttemptRecord{
		EngineID:     attemptEngineID(nil, job),
		Outcome:      domain.AttemptOutcomeError,
		LatencyMs:    time.Since(start).Milliseconds(),
		ErrorMessage: msg,
		At:           time.Now().UTC(),
	})

	if err := p.jobs.MarkFailed(ctx, job.ID, errorCode, msg, job.Payload); err != nil {
		log.Error("failed to mark job failed", slog.String("error", err.Error()))
	}
	if err := p.tasks.RecordError(ctx, meta.TaskName, msg); err != nil {
		log.Warn("failed to record task error", slog.String("error", err.Error()))
	}

	log.Warn("insight job attempt failed",
		slog.String("error_code", errorCode),
		slog.Int("attempt_count", meta.AttemptCount),
		slog.Int("max_attempts", meta.Retry.MaxAttempts),
		slog.String("error", msg))

	if !meta.ExhaustedAttempts() {
		metrics.TaskRetries.Inc()
		return queue.Retry(cause)
	}

	return p.finishDeadLetter(ctx, log, meta, msg, cause)
}

// finishDeadLetter drives the terminal transition at the attempt cap.
// The conditional update keeps the alert single-shot no matter how
// deliveries race or how often the transition itself has to be retried.
func (p *InsightProcessor) finishDeadLetter(ctx context.Context, log *slog.Logger, meta *domain.TaskMetadata, msg string, cause error) queue.Disposition {
	transitioned, err := p.tasks.MarkFailed(ctx, meta.TaskName, msg)
	if err != nil {
		log.Error("failed to mark task failed", slog.String("error", err.Error()))
		metrics.TaskRetries.Inc()
		return queue.Retry(cause)
	}

	if transitioned {
		metrics.DeadLetters.Inc()
		metrics.JobsProcessed.WithLabelValues("failed").Inc()
		p.notifyDeadLetter(ctx, log, meta, msg)
	}

	return queue.Terminal(cause)
}

// attemptEngineID names the engine an attempt record is attributed to:
// the leading output of the run, falling back to the job's primary
// config when no output survived.
func attemptEngineID(result *domain.ConsensusResult, job *domain.InsightJob) string {
	if result != nil && len(result.Engines) > 0 {
		return result.Engines[0].EngineID
	}
	if len(job.Payload.Engines) > 0 {
		return job.Payload.Engines[0].ID
	}
	return ""
}

// finishTask marks the metadata row succeeded. A failure here only
// costs one redundant no-op delivery later, so it is not propagated.
func (p *InsightProcessor) finishTask(ctx context.Context, log *slog.Logger, taskName string) {
	if err := p.tasks.MarkSucceeded(ctx, taskName); err != nil {
		log.Warn("failed to mark task succeeded", slog.String("error", err.Error()))
	}
}

// invalidateCache drops the user's derived views. Best-effort: the job
// outcome never depends on the cache layer.
func (p *InsightProcessor) invalidateCache(ctx context.Context, log *slog.Logger, userID uuid.UUID) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx, userID); err != nil {
		log.Warn("cache invalidation failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}
}

// releaseClaim returns a claimed job to failed after its task proved
// terminal, so the row does not sit in running forever.
func (p *InsightProcessor) releaseClaim(ctx context.Context, log *slog.Logger, job *domain.InsightJob) {
	if err := p.jobs.MarkFailed(ctx, job.ID, domain.ErrorCodeInternal, "task already terminal at claim time", job.Payload); err != nil {
		log.Error("failed to roll back job claim", slog.String("error", err.Error()))
	}
}

// notifyDeadLetter raises the operator alert for an exhausted task.
func (p *InsightProcessor) notifyDeadLetter(ctx context.Context, log *slog.Logger, meta *domain.TaskMetadata, msg string) {
	event := alerting.Event{
		Kind:    alerting.EventDeadLetter,
		Message: fmt.Sprintf("task %s exhausted its %d attempts", meta.TaskName, meta.Retry.MaxAttempts),
		Fields: map[string]string{
			"task_name": meta.TaskName,
			"job_type":  meta.JobType,
			"error":     msg,
		},
	}
	if err := p.alerts.Notify(ctx, event); err != nil {
		log.Error("dead-letter alert delivery failed", slog.String("error", err.Error()))
	}

	log.Error("task dead-lettered after exhausting attempts",
		slog.Int("max_attempts", meta.Retry.MaxAttempts))
}
