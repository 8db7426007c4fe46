// Package shard splits a dataset into trust-weighted contiguous chunks, one
// per worker identity.
//
// # Overview
//
// A chunk is the unit of work handed to a worker agent. Chunks are contiguous
// slices of the dataset; together they cover it exactly once. Their sizes
// follow the workers' trust scores, so a worker with score 3 receives roughly
// three times as many values as a worker with score 1.
//
// # Algorithm
//
//  1. Scores <= 0 are treated as 1.
//  2. Identities are ordered lexicographically, so the assignment does not
//     depend on the order in which workers connected.
//  3. Each identity receives max(1, floor(N * score / total)) values starting
//     at the cursor.
//  4. Any suffix left over by integer rounding is appended to the last chunk.
//
// When the dataset has fewer values than there are identities, the floor of
// one over-allocates and the cursor runs past the end. Those slices are
// truncated to the dataset bounds, so trailing identities may get an empty
// chunk. Nothing panics.
//
// # Example
//
//	chunks := shard.Partition([]float64{5, 1, 4, 2}, map[string]int{"A": 1, "B": 1})
//	// chunks[0] = {A [5 1]}, chunks[1] = {B [4 2]}
//
// Identical inputs always give identical chunk boundaries.
package shard
