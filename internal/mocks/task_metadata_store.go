package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/store"
)

// MockTaskMetadataStore implements store.TaskMetadataStore for testing.
// The default behavior is a map-backed store keyed by task name that
// models the real conditional transitions: terminal rows are immutable,
// attempt counting only touches non-terminal rows, and MarkFailed
// reports true exactly once. Safe for concurrent use.
type MockTaskMetadataStore struct {
	// Function fields for customizable behavior
	CreateFn         func(ctx context.Context, meta *domain.TaskMetadata) error
	GetByNameFn      func(ctx context.Context, taskName string) (*domain.TaskMetadata, error)
	MarkDispatchedFn func(ctx context.Context, taskName string) error
	RecordAttemptFn  func(ctx context.Context, taskName string) (*domain.TaskMetadata, error)
	RecordErrorFn    func(ctx context.Context, taskName, message string) error
	MarkSucceededFn  func(ctx context.Context, taskName string) error
	MarkFailedFn     func(ctx context.Context, taskName, message string) (bool, error)

	mu    sync.Mutex
	tasks map[string]*domain.TaskMetadata
}

// NewMockTaskMetadataStore creates a new mock store with initialized defaults.
func NewMockTaskMetadataStore() *MockTaskMetadataStore {
	return &MockTaskMetadataStore{
		tasks: make(map[string]*domain.TaskMetadata),
	}
}

// Ensure MockTaskMetadataStore implements store.TaskMetadataStore interface
var _ store.TaskMetadataStore = (*MockTaskMetadataStore)(nil)

func cloneTaskMetadata(meta *domain.TaskMetadata) *domain.TaskMetadata {
	clone := *meta
	if meta.FirstAttemptAt != nil {
		t := *meta.FirstAttemptAt
		clone.FirstAttemptAt = &t
	}
	if meta.LastAttemptAt != nil {
		t := *meta.LastAttemptAt
		clone.LastAttemptAt = &t
	}
	return &clone
}

// Seed stores a metadata row directly, bypassing validation. Intended
// for arranging test fixtures.
func (m *MockTaskMetadataStore) Seed(meta *domain.TaskMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tasks == nil {
		m.tasks = make(map[string]*domain.TaskMetadata)
	}
	m.tasks[meta.TaskName] = cloneTaskMetadata(meta)
}

// Task returns the stored state of a metadata row, or nil if absent.
// Intended for asserting on state from tests.
func (m *MockTaskMetadataStore) Task(taskName string) *domain.TaskMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.tasks[taskName]
	if !ok {
		return nil
	}
	return cloneTaskMetadata(meta)
}

// Create implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) Create(ctx context.Context, meta *domain.TaskMetadata) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, meta)
	}

	if err := meta.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tasks == nil {
		m.tasks = make(map[string]*domain.TaskMetadata)
	}

	if _, exists := m.tasks[meta.TaskName]; exists {
		return fmt.Errorf("%w: %s", store.ErrTaskNameExists, meta.TaskName)
	}

	m.tasks[meta.TaskName] = cloneTaskMetadata(meta)
	return nil
}

// GetByName implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) GetByName(ctx context.Context, taskName string) (*domain.TaskMetadata, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, taskName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	return cloneTaskMetadata(meta), nil
}

// MarkDispatched implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) MarkDispatched(ctx context.Context, taskName string) error {
	if m.MarkDispatchedFn != nil {
		return m.MarkDispatchedFn(ctx, taskName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists {
		return store.ErrTaskNotFound
	}
	if meta.Status != domain.TaskStatusPending {
		// Already advanced; nothing to do.
		return nil
	}

	meta.Status = domain.TaskStatusDispatched
	meta.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordAttempt implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) RecordAttempt(ctx context.Context, taskName string) (*domain.TaskMetadata, error) {
	if m.RecordAttemptFn != nil {
		return m.RecordAttemptFn(ctx, taskName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	if meta.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s is terminal", store.ErrStatusConflict, taskName)
	}

	now := time.Now().UTC()
	meta.AttemptCount++
	meta.Status = domain.TaskStatusDispatched
	if meta.FirstAttemptAt == nil {
		meta.FirstAttemptAt = &now
	}
	meta.LastAttemptAt = &now
	meta.UpdatedAt = now

	return cloneTaskMetadata(meta), nil
}

// RecordError implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) RecordError(ctx context.Context, taskName, message string) error {
	if m.RecordErrorFn != nil {
		return m.RecordErrorFn(ctx, taskName, message)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists || meta.Status.IsTerminal() {
		// Best-effort bookkeeping; nothing to record on.
		return nil
	}

	meta.ErrorMessage = message
	meta.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSucceeded implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) MarkSucceeded(ctx context.Context, taskName string) error {
	if m.MarkSucceededFn != nil {
		return m.MarkSucceededFn(ctx, taskName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists {
		return store.ErrTaskNotFound
	}
	if meta.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is terminal", store.ErrStatusConflict, taskName)
	}

	meta.Status = domain.TaskStatusSucceeded
	meta.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed implements the TaskMetadataStore interface
func (m *MockTaskMetadataStore) MarkFailed(ctx context.Context, taskName, message string) (bool, error) {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(ctx, taskName, message)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.tasks[taskName]
	if !exists {
		return false, store.ErrTaskNotFound
	}
	if meta.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	meta.Status = domain.TaskStatusFailed
	meta.ErrorMessage = message
	meta.UpdatedAt = now
	return true, nil
}

// WithTx implements the TaskMetadataStore interface for transaction support
func (m *MockTaskMetadataStore) WithTx(tx *sql.Tx) store.TaskMetadataStore {
	// For mock purposes, just return the same mock
	return m
}
