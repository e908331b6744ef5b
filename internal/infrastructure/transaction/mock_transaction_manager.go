package transaction

import (
	"context"
	"sync/atomic"
)

// MockTransactionManager runs fn directly; used with the in-memory repositories
type MockTransactionManager struct {
	calls atomic.Int64
}

// NewMockTransactionManager creates a new mock transaction manager
func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

// InTransaction executes fn with the caller's context
func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	m.calls.Add(1)
	return fn(ctx)
}

// Calls reports how many times InTransaction ran
func (m *MockTransactionManager) Calls() int64 {
	return m.calls.Load()
}
