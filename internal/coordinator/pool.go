// Package coordinator implements the coordinator side of a distributed sort.
// See doc.go for complete package documentation.
package coordinator

import (
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/distsort/internal/cluster"
)

// WorkerSet is the set of workers connected during the accept phase.
//
// Registration goroutines append to it concurrently while the accept loop
// keeps running, so every mutation takes the lock. Snapshot returns a copy
// so that dispatch can iterate without holding it.
type WorkerSet struct {
	workers []*cluster.WorkerConn
	mu      sync.RWMutex
}

// NewWorkerSet creates an empty worker set.
func NewWorkerSet() *WorkerSet {
	return &WorkerSet{}
}

// Add appends w unless a worker with the same address is already present.
// Returns false for duplicates.
func (s *WorkerSet) Add(w *cluster.WorkerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.IndexFunc(s.workers, func(o *cluster.WorkerConn) bool { return o.Addr == w.Addr }) >= 0 {
		return false
	}
	s.workers = append(s.workers, w)
	return true
}

// Len returns the number of connected workers.
func (s *WorkerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workers)
}

// Snapshot returns the workers in connection order.
func (s *WorkerSet) Snapshot() []*cluster.WorkerConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.workers)
}

// Identities returns the distinct worker identities in connection order.
func (s *WorkerSet) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, w := range s.workers {
		if !slices.Contains(ids, w.Identity) {
			ids = append(ids, w.Identity)
		}
	}
	return ids
}

// CloseAll closes every connection. Errors are ignored; the connections
// are being abandoned.
func (s *WorkerSet) CloseAll() {
	for _, w := range s.Snapshot() {
		_ = w.Close()
	}
}

// SortedChunk is one worker's sorted result.
type SortedChunk struct {
	Identity string    // Worker identity that produced the chunk
	Addr     string    // Connection the chunk arrived on
	Values   []float64 // Ascending values
}

// ChunkPool collects sorted chunks from the dispatch goroutines.
// Arrival order is whatever order the workers finish in.
type ChunkPool struct {
	chunks []SortedChunk
	mu     sync.Mutex
}

// NewChunkPool creates an empty pool.
func NewChunkPool() *ChunkPool {
	return &ChunkPool{}
}

// Add appends a sorted chunk.
func (p *ChunkPool) Add(c SortedChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, c)
}

// Len returns the number of collected chunks.
func (p *ChunkPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

// Snapshot returns the collected chunks.
func (p *ChunkPool) Snapshot() []SortedChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.chunks)
}
