package storage

import (
	"errors"
	"sync"
)

var (
	// ErrKeyNotFound is returned when an identity has no stored score
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store is closed")
)

// Store defines the persistence contract for the trust table.
// All implementations must be thread-safe for concurrent access,
// but read-modify-write sequences are the caller's responsibility.
type Store interface {
	// Get returns the stored score for key
	// Returns ErrKeyNotFound if the key doesn't exist
	Get(key string) (int, error)

	// Put stores the score for key, overwriting any previous value
	Put(key string, score int) error

	// List returns a snapshot of every stored key and score
	List() (map[string]int, error)

	// Close releases the backend; further calls return ErrClosed
	Close() error
}

// MemoryStore implements Store with an in-memory map.
// Scores are lost on restart; used for tests and the "memory" backend.
type MemoryStore struct {
	data   map[string]int
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]int),
	}
}

// Get retrieves the score for key
func (m *MemoryStore) Get(key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	score, exists := m.data[key]
	if !exists {
		return 0, ErrKeyNotFound
	}
	return score, nil
}

// Put stores the score for key
func (m *MemoryStore) Put(key string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.data[key] = score
	return nil
}

// List returns a copy of all scores
func (m *MemoryStore) List() (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]int, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

// Close marks the store closed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
