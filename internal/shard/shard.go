package shard

import (
	"golang.org/x/exp/slices"
)

// Chunk is a contiguous slice of the dataset assigned to one worker identity.
type Chunk struct {
	Identity string    // Worker identity the chunk belongs to
	Values   []float64 // Copy of the assigned dataset values
	Offset   int       // Position of Values[0] in the dataset
}

// Len returns the number of values in the chunk.
func (c Chunk) Len() int {
	return len(c.Values)
}

// Identities returns the keys of scores in lexicographic order.
func Identities(scores map[string]int) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Partition assigns contiguous, trust-weighted chunks of dataset to the
// identities in scores. The result is ordered by identity. The dataset is
// not modified; each chunk holds its own copy of the values.
func Partition(dataset []float64, scores map[string]int) []Chunk {
	if len(scores) == 0 {
		return nil
	}

	ids := Identities(scores)
	weights := make([]int, len(ids))
	total := 0
	for i, id := range ids {
		weights[i] = max(scores[id], 1)
		total += weights[i]
	}

	n := len(dataset)
	chunks := make([]Chunk, 0, len(ids))
	cursor := 0
	for i, id := range ids {
		length := max(int(int64(n)*int64(weights[i])/int64(total)), 1)
		lo := min(cursor, n)
		hi := min(cursor+length, n)
		chunks = append(chunks, Chunk{
			Identity: id,
			Values:   slices.Clone(dataset[lo:hi]),
			Offset:   lo,
		})
		cursor += length
	}

	// Rounding shortfall goes to the last identity
	if cursor < n {
		last := &chunks[len(chunks)-1]
		last.Values = append(last.Values, dataset[cursor:]...)
	}

	return chunks
}

// Sizes returns the chunk length per identity.
func Sizes(chunks []Chunk) map[string]int {
	sizes := make(map[string]int, len(chunks))
	for _, c := range chunks {
		sizes[c.Identity] = c.Len()
	}
	return sizes
}
