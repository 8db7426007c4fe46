// Package worker implements the worker agent: connect to the coordinator,
// receive one chunk, sort it locally and send it back.
//
// An Agent handles exactly one chunk per Run and does not ask for more.
// Connection attempts are wrapped in a cluster.RetryPolicy: a refused
// connection backs off linearly (step, 2*step, ...), any other failure
// waits a fixed step, and both count towards the same attempt ceiling.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/dataset"
	"github.com/dreamware/distsort/internal/sorter"
)

var (
	// ErrConnectionRefused means nothing was listening at the coordinator
	// address.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrIdleTimeout means the coordinator sent nothing for more read
	// timeouts in a row than Config.MaxIdleTimeouts allows.
	ErrIdleTimeout = errors.New("too many read timeouts")

	// ErrNotConnected is returned by operations that need an open connection.
	ErrNotConnected = errors.New("not connected")
)

// State is the agent's position in a run.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateReceiving  State = "receiving"
	StateSorting    State = "sorting"
	StateSending    State = "sending"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// DialFunc opens a connection to the coordinator.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config holds the agent's connection settings.
type Config struct {
	// Addr is the coordinator's host:port.
	Addr string

	// Dial opens connections. nil uses a net.Dialer bounded by IOTimeout.
	Dial DialFunc

	// Sleep waits between attempts. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// ProofDir receives copies of the received and sorted chunk when set.
	ProofDir string

	// Hostname is embedded in proof file names. Empty uses os.Hostname.
	Hostname string

	// IOTimeout is the socket timeout for connecting and for every read
	// and write.
	IOTimeout time.Duration

	// BackoffStep is the base delay between attempts.
	BackoffStep time.Duration

	// MaxAttempts is the attempt ceiling for a run.
	MaxAttempts int

	// MaxIdleTimeouts caps read timeouts while waiting for a chunk.
	// Zero keeps waiting indefinitely.
	MaxIdleTimeouts int

	// MaxFrameSize caps the chunk frame. Zero means
	// cluster.DefaultMaxFrameSize.
	MaxFrameSize int
}

// DefaultConfig returns the standard settings for addr: 15 second socket
// timeout, 3 attempts and a 5 second backoff step.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		IOTimeout:    15 * time.Second,
		BackoffStep:  5 * time.Second,
		MaxAttempts:  3,
		MaxFrameSize: cluster.DefaultMaxFrameSize,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("coordinator address is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.IOTimeout < 0 || c.BackoffStep < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MaxIdleTimeouts < 0 || c.MaxFrameSize < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Report describes a finished run.
type Report struct {
	ReceivedProof string        // Path of the received-chunk proof, if written
	SortedProof   string        // Path of the sorted-chunk proof, if written
	SortElapsed   time.Duration // Time spent in the local sort
	Received      int           // Values received
	Attempts      int           // Connection attempts used
}

// Agent is a worker agent. It is single threaded: its methods must not be
// called concurrently, except State.
type Agent struct {
	cfg   Config
	conn  net.Conn
	now   func() time.Time
	state State
	mu    sync.RWMutex // Protects state
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dial == nil {
		d := &net.Dialer{Timeout: cfg.IOTimeout}
		cfg.Dial = d.DialContext
	}
	if cfg.Hostname == "" {
		cfg.Hostname = hostname()
	}
	return &Agent{cfg: cfg, now: time.Now, state: StateIdle}, nil
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Connect opens the connection to the coordinator. A refused connection
// is reported as ErrConnectionRefused.
func (a *Agent) Connect(ctx context.Context) error {
	a.setState(StateConnecting)
	logf("connecting to server at %s...", a.cfg.Addr)

	conn, err := a.cfg.Dial(ctx, "tcp", a.cfg.Addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
		}
		return fmt.Errorf("connect %s: %w", a.cfg.Addr, err)
	}
	a.conn = conn
	logf("connected to server")
	return nil
}

// Close closes the connection, if any.
func (a *Agent) Close() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

// ReceiveChunk reads the chunk sent by the coordinator. Read timeouts are
// logged and the read continues with a fresh deadline, up to
// MaxIdleTimeouts times.
func (a *Agent) ReceiveChunk() ([]float64, error) {
	if a.conn == nil {
		return nil, ErrNotConnected
	}
	a.setState(StateReceiving)
	a.armReadDeadline()

	timeouts := 0
	onTimeout := func(err error) bool {
		timeouts++
		if a.cfg.MaxIdleTimeouts > 0 && timeouts >= a.cfg.MaxIdleTimeouts {
			return false
		}
		logf("warning: socket timeout while receiving data. retrying...")
		a.armReadDeadline()
		return true
	}

	values, err := cluster.ReceiveChunk(a.conn, a.cfg.MaxFrameSize, onTimeout)
	if err != nil {
		if a.cfg.MaxIdleTimeouts > 0 && timeouts >= a.cfg.MaxIdleTimeouts {
			return nil, fmt.Errorf("%w: %d: %w", ErrIdleTimeout, timeouts, err)
		}
		return nil, fmt.Errorf("receive chunk: %w", err)
	}
	logf("received chunk from server of size %d", len(values))
	return values, nil
}

// SortLocally returns chunk sorted ascending. chunk is not modified.
func (a *Agent) SortLocally(chunk []float64) []float64 {
	a.setState(StateSorting)
	return sorter.MergeSort(chunk)
}

// SendResult sends the sorted chunk back to the coordinator.
func (a *Agent) SendResult(sorted []float64) error {
	if a.conn == nil {
		return ErrNotConnected
	}
	a.setState(StateSending)
	if a.cfg.IOTimeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.cfg.IOTimeout))
	}
	if err := cluster.SendChunk(a.conn, sorted); err != nil {
		return fmt.Errorf("send result: %w", err)
	}
	logf("sent sorted chunk of %d values to server", len(sorted))
	return nil
}

// Run performs one complete cycle with retries and returns once the sorted
// chunk was sent. When every attempt failed the error wraps
// cluster.ErrRetriesExhausted.
func (a *Agent) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	policy := cluster.RetryPolicy{
		MaxAttempts: a.cfg.MaxAttempts,
		Backoff:     a.backoff,
		Retryable:   retryable,
		Sleep:       a.cfg.Sleep,
	}

	err := policy.Do(ctx, func(attempt int) error {
		report.Attempts = attempt
		return a.runOnce(ctx, report)
	})
	if err != nil {
		a.setState(StateFailed)
		logf("worker failed: %v", err)
		return report, err
	}

	a.setState(StateDone)
	logf("worker completed task")
	if report.ReceivedProof != "" {
		logf("proof files: %s, %s", report.ReceivedProof, report.SortedProof)
	}
	return report, nil
}

func (a *Agent) runOnce(ctx context.Context, report *Report) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}
	defer a.Close()

	chunk, err := a.ReceiveChunk()
	if err != nil {
		return err
	}
	report.Received = len(chunk)
	report.ReceivedProof = a.saveProof(false, chunk)

	start := time.Now()
	sorted := a.SortLocally(chunk)
	report.SortElapsed = time.Since(start)
	logf("sorted chunk in %.2f seconds", report.SortElapsed.Seconds())
	report.SortedProof = a.saveProof(true, sorted)

	return a.SendResult(sorted)
}

// backoff waits step*attempt after a refused connection and step after
// anything else.
func (a *Agent) backoff(attempt int, err error) time.Duration {
	if errors.Is(err, ErrConnectionRefused) {
		return cluster.LinearBackoff(a.cfg.BackoffStep)(attempt, err)
	}
	return cluster.ConstantBackoff(a.cfg.BackoffStep)(attempt, err)
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// saveProof writes a proof file when ProofDir is set. Failures are logged
// and never fail the run.
func (a *Agent) saveProof(sorted bool, values []float64) string {
	if a.cfg.ProofDir == "" {
		return ""
	}
	path, err := dataset.WriteProof(a.cfg.ProofDir, sorted, a.cfg.Hostname, a.now(), values)
	if err != nil {
		logf("warning: saving proof file failed: %v", err)
		return ""
	}
	logf("saved chunk to %s", path)
	return path
}

func (a *Agent) armReadDeadline() {
	if a.cfg.IOTimeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(a.cfg.IOTimeout))
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker"
	}
	return h
}

func logf(format string, args ...any) {
	log.Printf("worker: "+format, args...)
}
