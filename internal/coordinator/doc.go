// Package coordinator implements the central side of a distributed external
// sort: it gathers worker agents over TCP, splits the dataset among them in
// proportion to their trust scores, collects the sorted chunks concurrently
// and merges them into one ascending sequence.
//
// # Overview
//
// A Coordinator owns a single run. Workers connect to its listener, are
// registered in the trust store and receive exactly one chunk each. Results
// are collected in parallel; a worker that fails is logged, penalized and
// its chunk is dropped from the output rather than re-sent elsewhere.
//
// # Run Phases
//
//	┌──────────┐   ┌───────────┐   ┌─────────────┐   ┌────────────┐   ┌─────────┐
//	│ accepting│──▶│ partition │──▶│ dispatching │──▶│ collecting │──▶│ merging │
//	└──────────┘   └───────────┘   └─────────────┘   └────────────┘   └─────────┘
//	 until N or      by trust        one goroutine     wait for all      k-way
//	 timeout         score           per worker        dispatches        merge
//
// The run state is observable through State and moves
// idle → accepting → dispatching → collecting → merging → done.
//
// # Core Components
//
// WorkerSet: workers connected in the accept phase
//   - Deduplicated by remote address
//   - Closed in bulk if a run aborts
//
// ChunkPool: sorted chunks returned by workers
//   - Appended by dispatch goroutines
//   - Snapshotted once every dispatch has finished
//
// DispatchTracker: per-worker dispatch records
//   - Status: pending, sending, awaiting, succeeded, failed
//   - Start and finish times, last error, element count
//   - Feeds Succeeded, Failed and LostElements of the RunSummary
//
// TrustStore: reputation table, normally a *trust.Manager
//   - Initialize on connect, Get before partitioning
//   - Update(true) on a sorted result, Update(false) on any failure
//
// # Failure Handling
//
// Every error that concerns a single worker stays with that worker:
//
//   - Connection reset, timeout or EOF while sending or receiving
//   - A malformed or oversized result frame
//   - A result of the wrong length or not in ascending order
//   - A panic inside the dispatch goroutine
//
// Each one fails the dispatch, lowers the worker's trust by one and leaves
// the rest of the run untouched. Trust store errors are logged and never
// abort a run; lookups fall back to a score of 1.
//
// Fewer workers than expected is not fatal either: AcceptWorkers returns
// the workers that made it together with an ErrAcceptTimeout error and Run
// proceeds with them. Only when no chunk is collected does Run fail, with
// ErrEmptyResultSet. A dataset containing NaN is refused up front with
// ErrInvalidDataset, before any worker is accepted.
//
// # Example Usage
//
//	ln, _ := net.Listen("tcp", ":5000")
//	defer ln.Close()
//
//	c, err := coordinator.New(ln, trustManager, coordinator.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := c.Run(ctx, dataset, 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Summary.Elements, res.Summary.Elapsed)
//
// # Thread Safety
//
// Run must not be called concurrently on the same Coordinator. Everything it
// shares with its goroutines (worker set, chunk pool, tracker, trust store)
// synchronizes internally.
package coordinator
