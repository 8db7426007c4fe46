// Package coordinator implements the coordinator side of a distributed sort.
// See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/distsort/internal/cluster"
)

var (
	// ErrAcceptTimeout means fewer workers than expected connected before the
	// accept timeout. It is returned together with the workers that did
	// connect and is not fatal to the run.
	ErrAcceptTimeout = errors.New("timeout waiting for workers")

	// ErrDispatch wraps every failure of a single worker's send/receive cycle.
	ErrDispatch = errors.New("worker dispatch failed")

	// ErrUnsortedResult means a worker returned values that are not ascending.
	ErrUnsortedResult = errors.New("worker returned unsorted chunk")

	// ErrEmptyResultSet means no sorted chunk was collected.
	ErrEmptyResultSet = errors.New("no data sorted")

	// ErrInvalidDataset means the dataset cannot be sorted, e.g. it holds NaN.
	ErrInvalidDataset = errors.New("invalid dataset")
)

// State is the coordinator's position in a run.
type State string

const (
	StateIdle        State = "idle"
	StateAccepting   State = "accepting"
	StateDispatching State = "dispatching"
	StateCollecting  State = "collecting"
	StateMerging     State = "merging"
	StateDone        State = "done"
)

// TrustStore is the reputation table the coordinator reads and updates.
// *trust.Manager satisfies it.
type TrustStore interface {
	Get(identity string) (int, error)
	Initialize(identity string) error
	Update(identity string, success bool) (int, error)
}

// Config holds the coordinator's timing knobs.
type Config struct {
	// Identify derives a worker's trust identity from its address.
	// nil uses cluster.HostIdentity.
	Identify cluster.IdentityFunc

	// AcceptTimeout bounds the whole accept phase.
	AcceptTimeout time.Duration

	// AcceptPoll bounds a single Accept call, so progress can be logged
	// and the overall timeout checked.
	AcceptPoll time.Duration

	// IOTimeout bounds writing a chunk to a worker.
	IOTimeout time.Duration

	// ResultTimeout bounds waiting for a worker's sorted chunk.
	// Zero waits indefinitely.
	ResultTimeout time.Duration

	// MaxFrameSize caps the size of a result frame. Zero means
	// cluster.DefaultMaxFrameSize.
	MaxFrameSize int
}

// DefaultConfig returns the standard timings: one minute to gather workers,
// polled every ten seconds.
func DefaultConfig() Config {
	return Config{
		AcceptTimeout: 60 * time.Second,
		AcceptPoll:    10 * time.Second,
		IOTimeout:     15 * time.Second,
		ResultTimeout: 10 * time.Minute,
		MaxFrameSize:  cluster.DefaultMaxFrameSize,
	}
}

// Validate rejects unusable timings.
func (c Config) Validate() error {
	if c.AcceptTimeout <= 0 {
		return fmt.Errorf("accept timeout must be positive, got %v", c.AcceptTimeout)
	}
	if c.AcceptPoll <= 0 {
		return fmt.Errorf("accept poll must be positive, got %v", c.AcceptPoll)
	}
	if c.IOTimeout < 0 || c.ResultTimeout < 0 {
		return fmt.Errorf("io timeouts must not be negative")
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max frame size must not be negative, got %d", c.MaxFrameSize)
	}
	return nil
}

// Coordinator runs one distributed sort over the workers that connect to
// its listener.
//
// Thread-safety: the worker set, chunk pool, tracker and trust store are
// shared with the registration and dispatch goroutines and synchronize
// internally. Run itself must not be called concurrently.
type Coordinator struct {
	listener net.Listener
	trust    TrustStore
	workers  *WorkerSet
	pool     *ChunkPool
	tracker  *DispatchTracker
	runID    string
	cfg      Config
	state    State
	mu       sync.RWMutex // Protects state
}

// New creates a coordinator that accepts workers on listener and scores
// them with store. The caller keeps ownership of listener.
func New(listener net.Listener, store TrustStore, cfg Config) (*Coordinator, error) {
	if listener == nil {
		return nil, errors.New("listener is required")
	}
	if store == nil {
		return nil, errors.New("trust store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Identify == nil {
		cfg.Identify = cluster.HostIdentity
	}
	return &Coordinator{
		listener: listener,
		trust:    store,
		workers:  NewWorkerSet(),
		pool:     NewChunkPool(),
		tracker:  NewDispatchTracker(),
		runID:    uuid.NewString(),
		cfg:      cfg,
		state:    StateIdle,
	}, nil
}

// RunID identifies this coordinator's run in logs and summaries.
func (c *Coordinator) RunID() string {
	return c.runID
}

// State returns the current run state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Tracker exposes the per-worker dispatch records.
func (c *Coordinator) Tracker() *DispatchTracker {
	return c.tracker
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		logf("run %s: %s -> %s", c.runID, prev, s)
	}
}
