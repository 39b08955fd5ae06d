package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/mocks"
	"github.com/auspexhq/insight-api/internal/queue"
	"github.com/auspexhq/insight-api/internal/store"
)

func newTestServiceLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcher records dispatched jobs and optionally fails.
type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []*domain.InsightJob
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, job *domain.InsightJob) (queue.TaskHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return queue.TaskHandle{}, d.err
	}
	d.jobs = append(d.jobs, job)
	return queue.TaskHandle{Name: queue.TaskName(job.ID)}, nil
}

func (d *fakeDispatcher) dispatched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type serviceEnv struct {
	jobs       *mocks.MockJobStore
	tasks      *mocks.MockTaskMetadataStore
	insights   *mocks.MockInsightStore
	tx         *mocks.MockTxRunner
	dispatcher *fakeDispatcher
	service    InsightService
}

func serviceEngineConfigs() []domain.EngineConfig {
	return []domain.EngineConfig{
		{ID: "gemini-primary", Provider: "gemini", Model: "gemini-2.0-flash", TimeoutSeconds: 30},
		{ID: "openai-secondary", Provider: "openai", Model: "gpt-4o-mini", TimeoutSeconds: 30},
	}
}

func serviceRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{MaxAttempts: 3, MinBackoffSeconds: 1, MaxBackoffSeconds: 10}
}

func newServiceEnv(t *testing.T, dailyLimit int) *serviceEnv {
	t.Helper()

	env := &serviceEnv{
		jobs:       mocks.NewMockJobStore(),
		tasks:      mocks.NewMockTaskMetadataStore(),
		insights:   mocks.NewMockInsightStore(),
		tx:         mocks.NewMockTxRunner(),
		dispatcher: &fakeDispatcher{},
	}

	svc, err := NewInsightService(InsightServiceParams{
		Jobs:       env.jobs,
		Tasks:      env.tasks,
		Insights:   env.insights,
		TxRunner:   env.tx,
		Dispatcher: env.dispatcher,
		Engines:    serviceEngineConfigs(),
		Retry:      serviceRetryPolicy(),
		DailyLimit: dailyLimit,
		Logger:     newTestServiceLogger(),
	})
	require.NoError(t, err)

	env.service = svc
	return env
}

func validParams() domain.InsightParams {
	return domain.InsightParams{
		Subject:   "churn risk across enterprise accounts",
		Timeframe: "last quarter",
	}
}

// seedJobWithStatus stores a job for the user in the given status.
func (e *serviceEnv) seedJobWithStatus(t *testing.T, userID uuid.UUID, status domain.JobStatus) *domain.InsightJob {
	t.Helper()

	job, err := domain.NewInsightJob(userID, validParams(), serviceEngineConfigs())
	require.NoError(t, err)
	job.Status = status
	e.jobs.Seed(job)
	return job
}

func TestNewInsightServiceValidation(t *testing.T) {
	t.Parallel()

	valid := func() InsightServiceParams {
		return InsightServiceParams{
			Jobs:       mocks.NewMockJobStore(),
			Tasks:      mocks.NewMockTaskMetadataStore(),
			Insights:   mocks.NewMockInsightStore(),
			TxRunner:   mocks.NewMockTxRunner(),
			Dispatcher: &fakeDispatcher{},
			Engines:    serviceEngineConfigs(),
			Retry:      serviceRetryPolicy(),
			DailyLimit: 3,
			Logger:     newTestServiceLogger(),
		}
	}

	cases := []struct {
		name    string
		mutate  func(*InsightServiceParams)
		wantErr string
	}{
		{"nil job store", func(p *InsightServiceParams) { p.Jobs = nil }, "job store cannot be nil"},
		{"nil task store", func(p *InsightServiceParams) { p.Tasks = nil }, "task metadata store cannot be nil"},
		{"nil insight store", func(p *InsightServiceParams) { p.Insights = nil }, "insight store cannot be nil"},
		{"nil tx runner", func(p *InsightServiceParams) { p.TxRunner = nil }, "transaction runner cannot be nil"},
		{"nil dispatcher", func(p *InsightServiceParams) { p.Dispatcher = nil }, "dispatcher cannot be nil"},
		{"one engine", func(p *InsightServiceParams) { p.Engines = p.Engines[:1] }, "exactly two engine configs"},
		{"invalid engine", func(p *InsightServiceParams) { p.Engines[0].Model = "" }, "invalid engine config"},
		{"invalid retry", func(p *InsightServiceParams) { p.Retry.MaxAttempts = 0 }, "invalid retry policy"},
		{"zero daily limit", func(p *InsightServiceParams) { p.DailyLimit = 0 }, "daily limit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params := valid()
			tc.mutate(&params)

			_, err := NewInsightService(params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRequestInsightSuccess(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 3)
	userID := uuid.New()

	job, err := env.service.RequestInsight(context.Background(), userID, validParams())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, userID, job.RequestedBy)
	assert.Equal(t, "churn risk across enterprise accounts", job.Payload.Params.Subject)
	require.Len(t, job.Payload.Engines, 2)

	stored := env.jobs.Job(job.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.JobStatusQueued, stored.Status)

	meta := env.tasks.Task(queue.TaskName(job.ID))
	require.NotNil(t, meta)
	assert.Equal(t, domain.TaskStatusPending, meta.Status)
	assert.Equal(t, job.ID, meta.JobID)
	assert.Equal(t, serviceRetryPolicy(), meta.Retry)

	assert.Equal(t, 1, env.dispatcher.dispatched())
	assert.Equal(t, 1, env.tx.Calls())
}

func TestRequestInsightRejectsActiveJob(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status domain.JobStatus
	}{
		{"queued job", domain.JobStatusQueued},
		{"running job", domain.JobStatusRunning},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newServiceEnv(t, 3)
			userID := uuid.New()
			env.seedJobWithStatus(t, userID, tc.status)

			_, err := env.service.RequestInsight(context.Background(), userID, validParams())
			assert.ErrorIs(t, err, ErrJobInProgress)
			assert.Zero(t, env.dispatcher.dispatched())
		})
	}
}

func TestRequestInsightTerminalJobsDoNotBlock(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 3)
	userID := uuid.New()
	env.seedJobWithStatus(t, userID, domain.JobStatusFailed)

	job, err := env.service.RequestInsight(context.Background(), userID, validParams())
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestRequestInsightAdmissionRace(t *testing.T) {
	t.Parallel()

	// The fast-path check misses the concurrent admission; the
	// conditional insert is what rejects it.
	env := newServiceEnv(t, 3)
	userID := uuid.New()
	env.seedJobWithStatus(t, userID, domain.JobStatusQueued)
	env.jobs.FindActiveByUserFn = func(_ context.Context, _ uuid.UUID) (*domain.InsightJob, error) {
		return nil, store.ErrJobNotFound
	}
	env.jobs.CountCreatedSinceFn = func(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
		return 0, nil
	}

	_, err := env.service.RequestInsight(context.Background(), userID, validParams())
	assert.ErrorIs(t, err, ErrJobInProgress)
	assert.Zero(t, env.dispatcher.dispatched())
}

func TestRequestInsightRateLimited(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 2)
	userID := uuid.New()
	env.seedJobWithStatus(t, userID, domain.JobStatusFailed)
	env.seedJobWithStatus(t, userID, domain.JobStatusSucceeded)

	_, err := env.service.RequestInsight(context.Background(), userID, validParams())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, env.dispatcher.dispatched())
}

func TestRequestInsightQuotaIsPerUser(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 1)
	other := uuid.New()
	env.seedJobWithStatus(t, other, domain.JobStatusSucceeded)

	job, err := env.service.RequestInsight(context.Background(), uuid.New(), validParams())
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestRequestInsightInvalidParams(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 3)

	_, err := env.service.RequestInsight(context.Background(), uuid.New(), domain.InsightParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyInsightSubject)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "request_insight", svcErr.Operation)
	assert.Zero(t, env.dispatcher.dispatched())
}

func TestRequestInsightPersistFailure(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 3)
	env.tx.RunInTransactionFn = func(_ context.Context, _ store.TxFn) error {
		return errors.New("connection reset")
	}

	_, err := env.service.RequestInsight(context.Background(), uuid.New(), validParams())
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Zero(t, env.dispatcher.dispatched())
}

func TestRequestInsightDispatchFailure(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, 3)
	env.dispatcher.err = errors.New("queue full")
	userID := uuid.New()

	_, err := env.service.RequestInsight(context.Background(), userID, validParams())
	assert.ErrorIs(t, err, ErrDispatchFailed)

	// The job survives the dispatch failure and stays queued.
	stored, err := env.jobs.FindActiveByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, stored.Status)

	meta := env.tasks.Task(queue.TaskName(stored.ID))
	require.NotNil(t, meta)
	assert.Equal(t, domain.TaskStatusPending, meta.Status)
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	t.Run("owner reads own job", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)
		userID := uuid.New()
		job := env.seedJobWithStatus(t, userID, domain.JobStatusRunning)

		got, err := env.service.GetJob(context.Background(), userID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, domain.JobStatusRunning, got.Status)
	})

	t.Run("foreign job reads as absent", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)
		job := env.seedJobWithStatus(t, uuid.New(), domain.JobStatusRunning)

		_, err := env.service.GetJob(context.Background(), uuid.New(), job.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("missing job", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)

		_, err := env.service.GetJob(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestGetInsight(t *testing.T) {
	t.Parallel()

	newInsight := func(t *testing.T, userID uuid.UUID) *domain.Insight {
		t.Helper()
		insight, err := domain.NewInsight(uuid.New(), userID, domain.ConsensusResult{
			Title:           "Churn risk concentrated in the enterprise tier",
			Summary:         "Renewal risk clusters in stalled accounts.",
			AgreementRatio:  0.8,
			ConfidenceScore: 0.75,
		})
		require.NoError(t, err)
		return insight
	}

	t.Run("owner reads own insight", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)
		userID := uuid.New()
		insight := newInsight(t, userID)
		env.insights.Seed(insight)

		got, err := env.service.GetInsight(context.Background(), userID, insight.ID)
		require.NoError(t, err)
		assert.Equal(t, insight.ID, got.ID)
		assert.Equal(t, insight.Title, got.Title)
	})

	t.Run("foreign insight reads as absent", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)
		insight := newInsight(t, uuid.New())
		env.insights.Seed(insight)

		_, err := env.service.GetInsight(context.Background(), uuid.New(), insight.ID)
		assert.ErrorIs(t, err, ErrInsightNotFound)
	})

	t.Run("missing insight", func(t *testing.T) {
		t.Parallel()

		env := newServiceEnv(t, 3)

		_, err := env.service.GetInsight(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrInsightNotFound)
	})
}
