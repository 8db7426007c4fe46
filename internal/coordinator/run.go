// Package coordinator implements the coordinator side of a distributed sort.
// This file ties the phases of a run together.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/shard"
	"github.com/dreamware/distsort/internal/sorter"
)

// RunSummary describes a finished run.
type RunSummary struct {
	Start        time.Time     // Dispatch start, after partitioning
	End          time.Time     // Merge end
	RunID        string        // Coordinator run identifier
	Elements     int           // Values in the merged output
	Workers      int           // Workers that connected
	Succeeded    int           // Dispatches that returned a sorted chunk
	Failed       int           // Dispatches that failed
	LostElements int           // Values dropped with failed dispatches
	Elapsed      time.Duration // End - Start
}

// Result is the outcome of Run.
type Result struct {
	Sorted  []float64
	Summary RunSummary
}

// MergeAll merges the pool's sorted chunks into one ascending sequence.
// It returns ErrEmptyResultSet when the pool is empty.
func MergeAll(pool []SortedChunk) ([]float64, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyResultSet
	}
	runs := make([][]float64, len(pool))
	for i, c := range pool {
		runs[i] = c.Values
	}
	return sorter.KWayMerge(runs), nil
}

// Scores looks up the trust score of each distinct worker identity. A
// failing lookup is logged and the worker gets a score of 1.
func (c *Coordinator) Scores(workers []*cluster.WorkerConn) map[string]int {
	scores := make(map[string]int, len(workers))
	for _, w := range workers {
		if _, seen := scores[w.Identity]; seen {
			continue
		}
		score, err := c.trust.Get(w.Identity)
		if err != nil {
			logf("warning: trust lookup for %s failed, using 1: %v", w.Identity, err)
			score = 1
		}
		scores[w.Identity] = score
	}
	return scores
}

// Run performs a complete sort of dataset: accept up to expected workers,
// partition by trust, dispatch and collect, then merge.
//
// Fewer workers than expected is not an error. The returned error is
// ErrEmptyResultSet when nothing was sorted, or the accept error when the
// listener failed; in both cases Result still carries the summary. A
// dataset holding NaN is rejected with ErrInvalidDataset before any worker
// is accepted.
func (c *Coordinator) Run(ctx context.Context, dataset []float64, expected int) (*Result, error) {
	if i := cluster.IndexNaN(dataset); i >= 0 {
		return nil, fmt.Errorf("%w: %w at index %d", ErrInvalidDataset, cluster.ErrNaN, i)
	}

	workers, err := c.AcceptWorkers(ctx, expected)
	if err != nil && !errors.Is(err, ErrAcceptTimeout) {
		c.workers.CloseAll()
		c.setState(StateDone)
		return &Result{Summary: RunSummary{RunID: c.runID, Workers: len(workers)}}, err
	}
	logf("%d workers connected. dividing chunks...", len(workers))

	scores := c.Scores(workers)
	chunks := shard.Partition(dataset, scores)
	logf("chunk sizes %v for trust scores %v", shard.Sizes(chunks), scores)

	start := time.Now()
	logf("starting timing measurement at %s", start.Format("15:04:05"))

	pool := c.DispatchAndCollect(workers, chunks)

	c.setState(StateMerging)
	sorted, mergeErr := MergeAll(pool)
	end := time.Now()

	succeeded, failed := c.tracker.Counts()
	summary := RunSummary{
		RunID:        c.runID,
		Elements:     len(sorted),
		Workers:      len(workers),
		Succeeded:    succeeded,
		Failed:       failed,
		LostElements: c.tracker.LostElements(),
		Start:        start,
		End:          end,
		Elapsed:      end.Sub(start),
	}
	c.setState(StateDone)

	if mergeErr != nil {
		logf("warning: no data sorted. check for worker connection issues")
		return &Result{Summary: summary}, mergeErr
	}
	if summary.LostElements > 0 {
		logf("warning: %d values from %d failed workers are missing from the result",
			summary.LostElements, summary.Failed)
	}
	logf("sorting complete. %d elements sorted in %.2f seconds", summary.Elements, summary.Elapsed.Seconds())
	return &Result{Sorted: sorted, Summary: summary}, nil
}
