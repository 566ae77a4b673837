package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the credential for the lifetime of the process and counts
// calls so tests can check the gate uses each operation once.
type MemoryStore struct {
	mu     sync.Mutex
	value  string
	ok     bool
	Loads  int
	Stores int
	Clears int
}

// NewMemoryStore returns a store preloaded with value when it is non-empty.
func NewMemoryStore(value string) *MemoryStore {
	return &MemoryStore{value: value, ok: value != ""}
}

func (m *MemoryStore) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads++
	return m.value, m.ok, nil
}

func (m *MemoryStore) Store(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stores++
	m.value, m.ok = value, true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Clears++
	m.value, m.ok = "", false
	return nil
}

// Value returns the stored credential.
func (m *MemoryStore) Value() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.ok
}
