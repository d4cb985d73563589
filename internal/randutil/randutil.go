// Package randutil holds the sampling and ranking helpers shared by the
// evolutionary operators.
package randutil

import (
	"math"
	"math/rand"
	"sort"
)

// Normal draws a standard normal value
func Normal(rng *rand.Rand) float64 {
	return rng.NormFloat64()
}

// Uniform draws a value in [lo, hi)
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Permutation returns a random permutation of [0, n)
func Permutation(rng *rand.Rand, n int) []int {
	return rng.Perm(n)
}

// Reorder returns xs rearranged so that out[i] = xs[idx[i]]
func Reorder[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

// Key maps non-finite values below every finite value so they always lose
// comparisons and sort last.
func Key(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.Inf(-1)
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RankDescending returns the indices of values sorted by descending value.
// Ties keep index order; non-finite values come last.
func RankDescending(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return Key(values[idx[a]]) > Key(values[idx[b]])
	})
	return idx
}

// Inverse returns the inverse of a permutation: out[perm[i]] = i
func Inverse(perm []int) []int {
	out := make([]int, len(perm))
	for i, p := range perm {
		out[p] = i
	}
	return out
}

// Argmax returns the index of the first maximum. NaN never wins.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if Key(values[i]) > Key(values[best]) {
			best = i
		}
	}
	return best
}
