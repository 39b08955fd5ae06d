package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/store"
)

// MockInsightStore implements store.InsightStore for testing. The
// default behavior is a map-backed store enforcing one artifact per
// job. Safe for concurrent use.
type MockInsightStore struct {
	// Function fields for customizable behavior
	CreateFn     func(ctx context.Context, insight *domain.Insight) error
	GetByIDFn    func(ctx context.Context, id uuid.UUID) (*domain.Insight, error)
	GetByJobIDFn func(ctx context.Context, jobID uuid.UUID) (*domain.Insight, error)

	mu       sync.Mutex
	insights map[uuid.UUID]*domain.Insight
}

// NewMockInsightStore creates a new mock store with initialized defaults.
func NewMockInsightStore() *MockInsightStore {
	return &MockInsightStore{
		insights: make(map[uuid.UUID]*domain.Insight),
	}
}

// Ensure MockInsightStore implements store.InsightStore interface
var _ store.InsightStore = (*MockInsightStore)(nil)

func cloneInsight(insight *domain.Insight) *domain.Insight {
	clone := *insight
	clone.Insights = append([]string(nil), insight.Insights...)
	clone.Recommendations = append([]string(nil), insight.Recommendations...)
	clone.Meta.Disagreements.Insights = append([]string(nil), insight.Meta.Disagreements.Insights...)
	clone.Meta.Disagreements.Recommendations = append([]string(nil), insight.Meta.Disagreements.Recommendations...)
	clone.Meta.Engines = append([]domain.EngineOutput(nil), insight.Meta.Engines...)
	return &clone
}

// Seed stores an artifact directly, bypassing validation. Intended for
// arranging test fixtures.
func (m *MockInsightStore) Seed(insight *domain.Insight) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insights == nil {
		m.insights = make(map[uuid.UUID]*domain.Insight)
	}
	m.insights[insight.ID] = cloneInsight(insight)
}

// Count returns how many artifacts are stored. Intended for asserting
// on state from tests.
func (m *MockInsightStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.insights)
}

// Create implements the InsightStore interface
func (m *MockInsightStore) Create(ctx context.Context, insight *domain.Insight) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, insight)
	}

	if err := insight.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insights == nil {
		m.insights = make(map[uuid.UUID]*domain.Insight)
	}

	for _, existing := range m.insights {
		if existing.JobID == insight.JobID {
			return fmt.Errorf("%w: artifact for job %s", store.ErrDuplicate, insight.JobID)
		}
	}
	if _, exists := m.insights[insight.ID]; exists {
		return fmt.Errorf("%w: insight %s", store.ErrDuplicate, insight.ID)
	}

	m.insights[insight.ID] = cloneInsight(insight)
	return nil
}

// GetByID implements the InsightStore interface
func (m *MockInsightStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Insight, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	insight, exists := m.insights[id]
	if !exists {
		return nil, store.ErrInsightNotFound
	}
	return cloneInsight(insight), nil
}

// GetByJobID implements the InsightStore interface
func (m *MockInsightStore) GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.Insight, error) {
	if m.GetByJobIDFn != nil {
		return m.GetByJobIDFn(ctx, jobID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, insight := range m.insights {
		if insight.JobID == jobID {
			return cloneInsight(insight), nil
		}
	}
	return nil, store.ErrInsightNotFound
}

// WithTx implements the InsightStore interface for transaction support
func (m *MockInsightStore) WithTx(tx *sql.Tx) store.InsightStore {
	// For mock purposes, just return the same mock
	return m
}
