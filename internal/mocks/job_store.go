package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/store"
)

// MockJobStore implements store.JobStore for testing. The default
// behavior is a map-backed store that models the real transition
// semantics, including the one-active-job-per-user constraint and the
// conditional claim update, so admission and claim races can be
// exercised without a database. All default operations are safe for
// concurrent use.
type MockJobStore struct {
	// Function fields for customizable behavior
	CreateFn             func(ctx context.Context, job *domain.InsightJob) error
	GetByIDFn            func(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error)
	FindActiveByUserFn   func(ctx context.Context, userID uuid.UUID) (*domain.InsightJob, error)
	CountCreatedSinceFn  func(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	ClaimForProcessingFn func(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error)
	MarkSucceededFn      func(ctx context.Context, id, artifactID uuid.UUID, payload domain.JobPayload) error
	MarkFailedFn         func(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, payload domain.JobPayload) error

	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.InsightJob
}

// NewMockJobStore creates a new mock store with initialized defaults.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs: make(map[uuid.UUID]*domain.InsightJob),
	}
}

// Ensure MockJobStore implements store.JobStore interface
var _ store.JobStore = (*MockJobStore)(nil)

// cloneJob copies a job so stored state and returned values cannot
// alias each other, mirroring the value semantics of a real row.
func cloneJob(job *domain.InsightJob) *domain.InsightJob {
	clone := *job
	clone.Payload = cloneJobPayload(job.Payload)
	if job.ArtifactID != nil {
		id := *job.ArtifactID
		clone.ArtifactID = &id
	}
	if job.DispatchedAt != nil {
		t := *job.DispatchedAt
		clone.DispatchedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

func cloneJobPayload(p domain.JobPayload) domain.JobPayload {
	clone := p
	clone.Engines = append([]domain.EngineConfig(nil), p.Engines...)
	clone.Attempts = append([]domain.AttemptRecord(nil), p.Attempts...)
	if p.Metrics != nil {
		m := *p.Metrics
		clone.Metrics = &m
	}
	return clone
}

// Seed stores a job directly, bypassing validation and the active-job
// constraint. Intended for arranging test fixtures.
func (m *MockJobStore) Seed(job *domain.InsightJob) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jobs == nil {
		m.jobs = make(map[uuid.UUID]*domain.InsightJob)
	}
	m.jobs[job.ID] = cloneJob(job)
}

// Job returns the stored state of a job, or nil if absent. Intended
// for asserting on state from tests.
func (m *MockJobStore) Job(id uuid.UUID) *domain.InsightJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

// Create implements the JobStore interface
func (m *MockJobStore) Create(ctx context.Context, job *domain.InsightJob) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}

	if err := job.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jobs == nil {
		m.jobs = make(map[uuid.UUID]*domain.InsightJob)
	}

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s", store.ErrDuplicate, job.ID)
	}
	for _, existing := range m.jobs {
		if existing.RequestedBy == job.RequestedBy && existing.Status.IsActive() {
			return fmt.Errorf("%w: user %s", store.ErrActiveJobExists, job.RequestedBy)
		}
	}

	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID implements the JobStore interface
func (m *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists {
		return nil, store.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// FindActiveByUser implements the JobStore interface
func (m *MockJobStore) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*domain.InsightJob, error) {
	if m.FindActiveByUserFn != nil {
		return m.FindActiveByUserFn(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.RequestedBy == userID && job.Status.IsActive() {
			return cloneJob(job), nil
		}
	}
	return nil, store.ErrJobNotFound
}

// CountCreatedSince implements the JobStore interface
func (m *MockJobStore) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	if m.CountCreatedSinceFn != nil {
		return m.CountCreatedSinceFn(ctx, userID, since)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, job := range m.jobs {
		if job.RequestedBy == userID && !job.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ClaimForProcessing implements the JobStore interface
func (m *MockJobStore) ClaimForProcessing(ctx context.Context, id uuid.UUID) (*domain.InsightJob, error) {
	if m.ClaimForProcessingFn != nil {
		return m.ClaimForProcessingFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists {
		return nil, store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusQueued && job.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("%w: job %s is not claimable", store.ErrStatusConflict, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusRunning
	if job.DispatchedAt == nil {
		job.DispatchedAt = &now
	}
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.UpdatedAt = now

	return cloneJob(job), nil
}

// MarkSucceeded implements the JobStore interface
func (m *MockJobStore) MarkSucceeded(ctx context.Context, id, artifactID uuid.UUID, payload domain.JobPayload) error {
	if m.MarkSucceededFn != nil {
		return m.MarkSucceededFn(ctx, id, artifactID, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists || job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is not running", store.ErrStatusConflict, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusSucceeded
	job.ArtifactID = &artifactID
	job.Payload = cloneJobPayload(payload)
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.CompletedAt = &now
	job.UpdatedAt = now

	return nil
}

// MarkFailed implements the JobStore interface
func (m *MockJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, payload domain.JobPayload) error {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(ctx, id, errorCode, errorMessage, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists || job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is not running", store.ErrStatusConflict, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorCode = errorCode
	job.ErrorMessage = errorMessage
	job.Payload = cloneJobPayload(payload)
	job.CompletedAt = &now
	job.UpdatedAt = now

	return nil
}

// WithTx implements the JobStore interface for transaction support
func (m *MockJobStore) WithTx(tx *sql.Tx) store.JobStore {
	// For mock purposes, just return the same mock
	return m
}
