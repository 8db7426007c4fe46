// Package coordinator implements the coordinator side of a distributed sort.
// This file implements per-worker dispatch status tracking.
package coordinator

import (
	"sync"
	"time"
)

// DispatchStatus is the stage a worker's dispatch has reached.
type DispatchStatus string

const (
	// StatusPending means the worker has a chunk but nothing was sent yet
	StatusPending DispatchStatus = "pending"
	// StatusSending means the chunk is being written to the worker
	StatusSending DispatchStatus = "sending"
	// StatusAwaiting means the chunk was sent and the result is awaited
	StatusAwaiting DispatchStatus = "awaiting"
	// StatusSucceeded means the sorted chunk was collected
	StatusSucceeded DispatchStatus = "succeeded"
	// StatusFailed means the dispatch failed and the chunk was dropped
	StatusFailed DispatchStatus = "failed"
)

// WorkerDispatch records the progress of one worker's dispatch.
// Thread-safe: Protected by DispatchTracker's mutex when accessed.
type WorkerDispatch struct {
	Started   time.Time      // When the dispatch began
	Finished  time.Time      // When it succeeded or failed (zero while running)
	Addr      string         // Worker connection address
	Identity  string         // Worker trust identity
	Status    DispatchStatus // Current stage
	LastError string         // Failure reason, empty unless failed
	Elements  int            // Size of the chunk assigned to the worker
}

// Elapsed returns how long the dispatch took, or has taken so far.
func (d WorkerDispatch) Elapsed() time.Duration {
	if d.Finished.IsZero() {
		return time.Since(d.Started)
	}
	return d.Finished.Sub(d.Started)
}

// DispatchTracker keeps a WorkerDispatch per worker address for one run.
// Thread-safe: All methods are safe for concurrent access.
type DispatchTracker struct {
	records map[string]*WorkerDispatch // Dispatch state per worker address
	now     func() time.Time           // Clock, replaceable in tests
	mu      sync.RWMutex               // Protects records
}

// NewDispatchTracker creates an empty tracker.
func NewDispatchTracker() *DispatchTracker {
	return &DispatchTracker{
		records: make(map[string]*WorkerDispatch),
		now:     time.Now,
	}
}

// Begin registers a dispatch of elements values to the worker at addr.
// Calling Begin again for the same address resets its record.
func (t *DispatchTracker) Begin(addr, identity string, elements int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[addr] = &WorkerDispatch{
		Addr:     addr,
		Identity: identity,
		Status:   StatusPending,
		Elements: elements,
		Started:  t.now(),
	}
}

// Mark moves the dispatch at addr to status. Unknown addresses are ignored.
func (t *DispatchTracker) Mark(addr string, status DispatchStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[addr]; ok {
		rec.Status = status
	}
}

// Succeed marks the dispatch at addr as collected.
func (t *DispatchTracker) Succeed(addr string) {
	t.finish(addr, StatusSucceeded, nil)
}

// Fail marks the dispatch at addr as failed with err.
func (t *DispatchTracker) Fail(addr string, err error) {
	t.finish(addr, StatusFailed, err)
}

func (t *DispatchTracker) finish(addr string, status DispatchStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok {
		return
	}
	rec.Status = status
	rec.Finished = t.now()
	if err != nil {
		rec.LastError = err.Error()
	}
}

// Get returns a copy of the record for addr, or nil if none exists.
func (t *DispatchTracker) Get(addr string) *WorkerDispatch {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[addr]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// All returns copies of every record keyed by worker address.
func (t *DispatchTracker) All() map[string]WorkerDispatch {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]WorkerDispatch, len(t.records))
	for addr, rec := range t.records {
		out[addr] = *rec
	}
	return out
}

// Counts returns how many dispatches succeeded and failed.
func (t *DispatchTracker) Counts() (succeeded, failed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, rec := range t.records {
		switch rec.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, failed
}

// LostElements sums the chunk sizes of failed dispatches. Those values are
// missing from the merged output.
func (t *DispatchTracker) LostElements() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lost := 0
	for _, rec := range t.records {
		if rec.Status == StatusFailed {
			lost += rec.Elements
		}
	}
	return lost
}
