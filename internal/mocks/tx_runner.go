package mocks

import (
	"context"
	"sync"

	"github.com/auspexhq/insight-api/internal/store"
)

// MockTxRunner implements store.TxRunner for testing. The default
// behavior invokes the function with a nil transaction, which pairs
// with the mock stores' WithTx returning themselves, so transactional
// flows run against in-memory state.
type MockTxRunner struct {
	// RunInTransactionFn overrides the default behavior when set.
	RunInTransactionFn func(ctx context.Context, fn store.TxFn) error

	// BeginErr, when set, is returned without invoking the function,
	// simulating a transaction that could not be started.
	BeginErr error

	mu    sync.Mutex
	calls int
}

// Ensure MockTxRunner implements store.TxRunner interface
var _ store.TxRunner = (*MockTxRunner)(nil)

// NewMockTxRunner creates a new MockTxRunner with default pass-through
// behavior.
func NewMockTxRunner() *MockTxRunner {
	return &MockTxRunner{}
}

// RunInTransaction implements the TxRunner interface
func (m *MockTxRunner) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	if m.RunInTransactionFn != nil {
		return m.RunInTransactionFn(ctx, fn)
	}

	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.BeginErr != nil {
		return m.BeginErr
	}

	return fn(ctx, nil)
}

// Calls returns how many transactions were requested.
func (m *MockTxRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
