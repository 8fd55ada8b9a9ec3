package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-shop-core/internal/infrastructure/store"
)

// MockStore wraps a MemoryStore and lets tests fail or observe transactions
type MockStore struct {
	*store.MemoryStore

	mu sync.Mutex

	// For tracking calls in tests
	TxCalls int
	// TxErrs are returned, in order, by the next WithinTx calls instead of
	// running the transaction. A nil entry runs the transaction normally.
	TxErrs []error
	// BeforeTx runs before each transaction body
	BeforeTx func(ctx context.Context)
	// WrapTx, if set, decorates the Tx handed to the transaction body so
	// tests can fail individual operations mid-transaction
	WrapTx func(tx store.Tx) store.Tx
}

// NewMockStore creates a new MockStore over an empty MemoryStore
func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: store.NewMemoryStore()}
}

// WithinTx records the call and either returns the next injected error or
// delegates to the MemoryStore
func (m *MockStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	m.TxCalls++
	var injected error
	if len(m.TxErrs) > 0 {
		injected = m.TxErrs[0]
		m.TxErrs = m.TxErrs[1:]
	}
	before := m.BeforeTx
	wrap := m.WrapTx
	m.mu.Unlock()

	if injected != nil {
		return injected
	}
	if before != nil {
		before(ctx)
	}
	if wrap == nil {
		return m.MemoryStore.WithinTx(ctx, fn)
	}
	return m.MemoryStore.WithinTx(ctx, func(tx store.Tx) error {
		return fn(wrap(tx))
	})
}

// FailTx queues errors for the next transactions
func (m *MockStore) FailTx(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TxErrs = append(m.TxErrs, errs...)
}

// Calls returns the number of WithinTx calls so far
func (m *MockStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TxCalls
}

// Reset clears recorded calls and injected errors
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TxCalls = 0
	m.TxErrs = nil
	m.BeforeTx = nil
	m.WrapTx = nil
}
