// Package coordinator implements the coordinator side of a distributed sort.
// This file implements the per-worker dispatch and collect cycle.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/shard"
)

// assignment binds one chunk to the connection that will sort it.
type assignment struct {
	worker *cluster.WorkerConn
	chunk  shard.Chunk
}

// assign pairs each chunk with the first unused worker of the same
// identity. Workers left without a chunk are returned separately.
func assign(workers []*cluster.WorkerConn, chunks []shard.Chunk) ([]assignment, []*cluster.WorkerConn) {
	used := make([]bool, len(workers))
	out := make([]assignment, 0, len(chunks))

	for _, ch := range chunks {
		for i, w := range workers {
			if used[i] || w.Identity != ch.Identity {
				continue
			}
			used[i] = true
			out = append(out, assignment{worker: w, chunk: ch})
			break
		}
	}

	var idle []*cluster.WorkerConn
	for i, w := range workers {
		if !used[i] {
			idle = append(idle, w)
		}
	}
	return out, idle
}

// DispatchAndCollect sends every chunk to its worker and gathers the sorted
// results, one goroutine per worker. It returns after every dispatch has
// finished.
//
// A failed dispatch only affects its own worker: the failure is logged,
// the worker's trust score drops and its chunk is left out of the result.
// Workers that got no chunk are closed without dispatch. Every worker
// connection is closed by the time this returns.
func (c *Coordinator) DispatchAndCollect(workers []*cluster.WorkerConn, chunks []shard.Chunk) []SortedChunk {
	c.setState(StateDispatching)

	assignments, idle := assign(workers, chunks)
	for _, w := range idle {
		logf("warning: no data chunk for worker %s", w.Addr)
		_ = w.Close()
	}

	var wg sync.WaitGroup
	for _, a := range assignments {
		c.tracker.Begin(a.worker.Addr, a.worker.Identity, a.chunk.Len())
		wg.Add(1)
		go func(a assignment) {
			defer wg.Done()
			c.dispatch(a)
		}(a)
	}

	c.setState(StateCollecting)
	wg.Wait()
	logf("collected %d of %d sorted chunks", c.pool.Len(), len(assignments))
	return c.pool.Snapshot()
}

// dispatch runs one worker's cycle. Panics are turned into a dispatch
// failure for this worker only.
func (c *Coordinator) dispatch(a assignment) {
	defer a.worker.Close()
	defer func() {
		if r := recover(); r != nil {
			c.fail(a, fmt.Errorf("%w: %s: panic: %v", ErrDispatch, a.worker.Addr, r))
		}
	}()

	sorted, err := c.exchange(a)
	if err != nil {
		c.fail(a, err)
		return
	}

	c.pool.Add(SortedChunk{
		Identity: a.worker.Identity,
		Addr:     a.worker.Addr,
		Values:   sorted,
	})
	c.tracker.Succeed(a.worker.Addr)

	score, err := c.trust.Update(a.worker.Identity, true)
	if err != nil {
		logf("warning: trust update for %s failed: %v", a.worker.Identity, err)
	}
	logf("received sorted chunk of %d values from %s (trust %d)", len(sorted), a.worker.Addr, score)
}

// exchange sends the chunk and reads back the sorted chunk.
func (c *Coordinator) exchange(a assignment) ([]float64, error) {
	conn := a.worker.Conn
	addr := a.worker.Addr

	c.tracker.Mark(addr, StatusSending)
	if c.cfg.IOTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
	if err := cluster.SendChunk(conn, a.chunk.Values); err != nil {
		return nil, fmt.Errorf("%w: send to %s: %w", ErrDispatch, addr, err)
	}
	logf("sent %d values to %s", a.chunk.Len(), addr)

	c.tracker.Mark(addr, StatusAwaiting)
	if c.cfg.ResultTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ResultTimeout))
	}
	sorted, err := cluster.ReceiveChunk(conn, c.cfg.MaxFrameSize, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: receive from %s: %w", ErrDispatch, addr, err)
	}

	if len(sorted) != a.chunk.Len() {
		return nil, fmt.Errorf("%w: %s: %w: sent %d values, got %d back",
			ErrDispatch, addr, cluster.ErrPayloadDecode, a.chunk.Len(), len(sorted))
	}
	if !slices.IsSorted(sorted) {
		return nil, fmt.Errorf("%w: %s: %w", ErrDispatch, addr, ErrUnsortedResult)
	}
	return sorted, nil
}

// fail records a failed dispatch and lowers the worker's trust score.
func (c *Coordinator) fail(a assignment, err error) {
	if cluster.IsFramingError(err) {
		logf("protocol framing error from worker %s: %v", a.worker.Addr, err)
	} else {
		logf("error handling worker %s: %v", a.worker.Addr, err)
	}
	c.tracker.Fail(a.worker.Addr, err)

	score, terr := c.trust.Update(a.worker.Identity, false)
	if terr != nil {
		logf("warning: trust update for %s failed: %v", a.worker.Identity, terr)
		return
	}
	logf("worker %s failed, trust for %s now %d", a.worker.Addr, a.worker.Identity, score)
}
