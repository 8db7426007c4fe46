// Package sorter holds the two sorting primitives of a run: the stable merge
// sort a worker applies to its chunk, and the k-way merge the coordinator
// applies to the collected sorted chunks.
package sorter

import (
	"container/heap"
)

// MergeSort returns a sorted copy of values using a top-down merge sort.
// Ties keep left-half elements ahead of right-half ones, so the sort is
// stable. values is not modified.
func MergeSort(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if len(out) < 2 {
		return out
	}
	scratch := make([]float64, len(out))
	mergeSort(out, scratch)
	return out
}

// mergeSort sorts a in place using scratch (same length) as merge space.
func mergeSort(a, scratch []float64) {
	if len(a) < 2 {
		return
	}
	mid := len(a) / 2
	mergeSort(a[:mid], scratch[:mid])
	mergeSort(a[mid:], scratch[mid:])

	copy(scratch, a)
	left, right := scratch[:mid], scratch[mid:]
	i, j, k := 0, 0, 0
	for i < len(left) && j < len(right) {
		if left[i] <= right[j] {
			a[k] = left[i]
			i++
		} else {
			a[k] = right[j]
			j++
		}
		k++
	}
	k += copy(a[k:], left[i:])
	copy(a[k:], right[j:])
}

// cursor points at the next unread value of one sorted run.
type cursor struct {
	run []float64
	pos int
}

// runHeap orders cursors by their current value.
type runHeap []*cursor

func (h runHeap) Len() int           { return len(h) }
func (h runHeap) Less(i, j int) bool { return h[i].run[h[i].pos] < h[j].run[h[j].pos] }
func (h runHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// KWayMerge merges individually sorted runs into one ascending sequence.
// The output length is the sum of the run lengths. Runs are not modified
// and their order in the argument does not affect the result.
func KWayMerge(runs [][]float64) []float64 {
	total := 0
	h := make(runHeap, 0, len(runs))
	for _, r := range runs {
		total += len(r)
		if len(r) > 0 {
			h = append(h, &cursor{run: r})
		}
	}
	out := make([]float64, 0, total)
	if len(h) == 1 {
		return append(out, h[0].run...)
	}
	heap.Init(&h)

	for h.Len() > 0 {
		c := h[0]
		out = append(out, c.run[c.pos])
		c.pos++
		if c.pos == len(c.run) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}
