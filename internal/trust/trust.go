// Package trust implements the worker reputation table: a bounded integer
// score per worker identity that grows on successful dispatches and shrinks
// on failed ones.
//
// Scores live in a storage.Store. Manager adds the scoring rules and a
// single mutex around every read-modify-write, which is enough to keep the
// table consistent when many dispatch goroutines report at once.
package trust

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dreamware/distsort/internal/storage"
)

// ErrStoreUnavailable wraps any backend failure other than a missing key.
var ErrStoreUnavailable = errors.New("trust store unavailable")

// Config holds the score bounds.
type Config struct {
	Floor   int // Lowest score a worker can drop to
	Ceiling int // Highest score a worker can reach
	Default int // Score of a worker never seen before
}

// DefaultConfig returns the 1..3 range with unseen workers at 1.
func DefaultConfig() Config {
	return Config{Floor: 1, Ceiling: 3, Default: 1}
}

// Validate checks the bounds are coherent.
func (c Config) Validate() error {
	if c.Floor > c.Ceiling {
		return fmt.Errorf("trust floor %d above ceiling %d", c.Floor, c.Ceiling)
	}
	if c.Default < c.Floor || c.Default > c.Ceiling {
		return fmt.Errorf("trust default %d outside [%d, %d]", c.Default, c.Floor, c.Ceiling)
	}
	return nil
}

// Manager applies the scoring rules on top of a Store.
// Thread-safe: every operation holds the manager's mutex.
type Manager struct {
	store storage.Store
	cfg   Config
	mu    sync.Mutex
}

// NewManager wraps store with the bounds in cfg.
func NewManager(store storage.Store, cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{store: store, cfg: cfg}, nil
}

// Config returns the bounds in use.
func (m *Manager) Config() Config {
	return m.cfg
}

// Get returns the score for identity, or the default when it has none.
// On a backend failure the default is returned together with an error
// wrapping ErrStoreUnavailable.
func (m *Manager) Get(identity string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(identity)
}

func (m *Manager) get(identity string) (int, error) {
	score, err := m.store.Get(identity)
	switch {
	case err == nil:
		return score, nil
	case errors.Is(err, storage.ErrKeyNotFound):
		return m.cfg.Default, nil
	default:
		return m.cfg.Default, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, identity, err)
	}
}

// Initialize creates a default entry for identity if it has none.
func (m *Manager) Initialize(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.store.Get(identity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		return fmt.Errorf("%w: initialize %s: %v", ErrStoreUnavailable, identity, err)
	}
	if err := m.store.Put(identity, m.cfg.Default); err != nil {
		return fmt.Errorf("%w: initialize %s: %v", ErrStoreUnavailable, identity, err)
	}
	return nil
}

// Update raises the score by one on success and lowers it by one on
// failure, never leaving [Floor, Ceiling]. It returns the new score.
func (m *Manager) Update(identity string, success bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.get(identity)
	if err != nil {
		return current, err
	}

	next := current
	if success && current < m.cfg.Ceiling {
		next = current + 1
	} else if !success && current > m.cfg.Floor {
		next = current - 1
	}

	if err := m.store.Put(identity, next); err != nil {
		return current, fmt.Errorf("%w: update %s: %v", ErrStoreUnavailable, identity, err)
	}
	return next, nil
}

// All returns a snapshot of every stored score.
func (m *Manager) All() (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scores, err := m.store.List()
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStoreUnavailable, err)
	}
	return scores, nil
}
