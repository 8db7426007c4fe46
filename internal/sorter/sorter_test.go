package sorter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

func randomValues(rng *rand.Rand, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		// Small range so duplicates show up
		values[i] = float64(rng.Intn(50)) - 25
	}
	return values
}

func TestMergeSort(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect []float64
	}{
		{name: "nil", input: nil, expect: []float64{}},
		{name: "empty", input: []float64{}, expect: []float64{}},
		{name: "single", input: []float64{1.5}, expect: []float64{1.5}},
		{name: "pair", input: []float64{5.0, 1.0}, expect: []float64{1.0, 5.0}},
		{name: "duplicates", input: []float64{3, 1, 3, 2, 1}, expect: []float64{1, 1, 2, 3, 3}},
		{name: "already sorted", input: []float64{-2, 0, 4}, expect: []float64{-2, 0, 4}},
		{name: "reversed", input: []float64{9, 7, 5, 3}, expect: []float64{3, 5, 7, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, MergeSort(tt.input))
		})
	}
}

func TestMergeSortIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 300; n += 7 {
		input := randomValues(rng, n)
		original := slices.Clone(input)

		got := MergeSort(input)

		assert.Equal(t, original, input, "input must not be modified")
		require.True(t, slices.IsSorted(got), "n=%d not sorted: %v", n, got)

		want := slices.Clone(input)
		slices.Sort(want)
		assert.Equal(t, want, got)
	}
}

func TestKWayMerge(t *testing.T) {
	t.Run("scenario", func(t *testing.T) {
		got := KWayMerge([][]float64{{2.0, 4.0}, {1.0, 5.0}})
		assert.Equal(t, []float64{1.0, 2.0, 4.0, 5.0}, got)
	})

	t.Run("no runs", func(t *testing.T) {
		assert.Empty(t, KWayMerge(nil))
	})

	t.Run("empty runs are skipped", func(t *testing.T) {
		got := KWayMerge([][]float64{{}, {3}, nil, {1, 2}})
		assert.Equal(t, []float64{1, 2, 3}, got)
	})

	t.Run("single run is copied", func(t *testing.T) {
		run := []float64{1, 2}
		got := KWayMerge([][]float64{run})
		got[0] = 99
		assert.Equal(t, []float64{1, 2}, run)
	})

	t.Run("random runs in any order", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		var runs [][]float64
		var all []float64
		for i := 0; i < 9; i++ {
			run := MergeSort(randomValues(rng, rng.Intn(200)))
			runs = append(runs, run)
			all = append(all, run...)
		}
		rng.Shuffle(len(runs), func(i, j int) { runs[i], runs[j] = runs[j], runs[i] })

		got := KWayMerge(runs)
		slices.Sort(all)
		assert.Len(t, got, len(all))
		assert.Equal(t, all, got)
	})
}
