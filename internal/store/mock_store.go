// ABOUTME: Mock Backend implementation for testing
// ABOUTME: Allows tests to run without touching disk and to inject I/O failures

package store

import (
	"context"
	"sync"
)

// MockBackend is an in-memory Backend implementation for testing.
type MockBackend struct {
	mu      sync.RWMutex
	data    map[string][]byte
	saves   int
	SaveErr error // returned by every Save when non-nil
	LoadErr error // returned by every Load when non-nil
	closed  bool
}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		data: make(map[string][]byte),
	}
}

// Load implements Backend.
func (m *MockBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Make a copy to avoid external modification
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Save implements Backend.
func (m *MockBackend) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.saves++
	return nil
}

// Raw returns the stored bytes for key without decoding.
func (m *MockBackend) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Saves returns how many successful Save calls have happened.
func (m *MockBackend) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close implements Backend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MockBackend) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
