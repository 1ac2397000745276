// Package distance implements the string metrics used to compare trace
// profiles: plain and time-weighted Damerau-Levenshtein distance, and
// Jaro-Winkler similarity.
//
// Profiles are strings over a single-byte alphabet, so every function
// indexes bytes.
package distance

import (
	"math"

	"github.com/xrash/smetrics"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// Jaro-Winkler parameters.
const (
	jwBoostThreshold = 0.7
	jwPrefixSize     = 4
)

// JaroWinkler returns the Jaro-Winkler similarity of two profiles in [0,1].
func JaroWinkler(a, b string) float64 {
	return smetrics.JaroWinkler(a, b, jwBoostThreshold, jwPrefixSize)
}

// DamerauLevenshtein returns the unrestricted Damerau-Levenshtein distance
// between two profiles (insertions, deletions, substitutions and
// transpositions of adjacent symbols, all of cost 1).
func DamerauLevenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	inf := la + lb
	h := make([][]int, la+2)
	for i := range h {
		h[i] = make([]int, lb+2)
	}
	h[0][0] = inf
	for i := 0; i <= la; i++ {
		h[i+1][0] = inf
		h[i+1][1] = i
	}
	for j := 0; j <= lb; j++ {
		h[0][j+1] = inf
		h[1][j+1] = j
	}

	// last row where each symbol was seen in a
	var da [256]int
	for i := 1; i <= la; i++ {
		db := 0
		for j := 1; j <= lb; j++ {
			i1 := da[b[j-1]]
			j1 := db
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
				db = j
			}
			h[i+1][j+1] = min(
				h[i][j]+cost,
				h[i+1][j]+1,
				h[i][j+1]+1,
				h[i1][j1]+(i-i1-1)+1+(j-j1-1),
			)
		}
		da[a[i-1]] = i
	}
	return h[la+1][lb+1]
}

// Weighted returns the time-weighted Damerau-Levenshtein distance between
// two profiles with their per-event durations.
//
// Substituting a symbol by a different one costs 1. Keeping the same
// symbol costs |t2[j]-t1[i]| / M where M is the largest duration of either
// trace, so identical activities with very different timing still pay a
// partial cost. Transpositions are restricted to adjacent pairs and cost the
// substitution cost of the current cell.
//
// When every duration of both traces is zero the timings are identical and
// matching symbols cost nothing.
func Weighted(s1, s2 string, t1, t2 []float64) (float64, error) {
	m, n := len(s1), len(s2)
	if len(t1) != m || len(t2) != n {
		return 0, tserrors.New(tserrors.CodeTimingMismatch, "profile and timing lengths differ").
			WithContext("profile_a", m).
			WithContext("timing_a", len(t1)).
			WithContext("profile_b", n).
			WithContext("timing_b", len(t2))
	}

	maxSize, err := maxDuration(t1, t2)
	if err != nil {
		return 0, err
	}

	// d[i+1][j+1] holds the cost for prefixes s1[:i+1], s2[:j+1]; row and
	// column 0 stand for index -1.
	d := make([][]float64, m+1)
	for i := range d {
		d[i] = make([]float64, n+1)
		d[i][0] = float64(i)
	}
	for j := 0; j <= n; j++ {
		d[0][j] = float64(j)
	}

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			cost := 1.0
			if s1[i] == s2[j] {
				cost = 0
				if maxSize > 0 {
					cost = math.Abs(t2[j]-t1[i]) / maxSize
				}
			}
			d[i+1][j+1] = min(
				d[i][j+1]+1, // deletion
				d[i+1][j]+1, // insertion
				d[i][j]+cost,
			)
			if i > 0 && j > 0 && s1[i] == s2[j-1] && s1[i-1] == s2[j] {
				d[i+1][j+1] = min(d[i+1][j+1], d[i-1][j-1]+cost)
			}
		}
	}
	return d[m][n], nil
}

func maxDuration(t1, t2 []float64) (float64, error) {
	var m float64
	for _, ts := range [][]float64{t1, t2} {
		for _, t := range ts {
			if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
				return 0, tserrors.New(tserrors.CodeInvalidTiming, "durations must be finite and non-negative").
					WithContext("value", t)
			}
			if t > m {
				m = t
			}
		}
	}
	return m, nil
}

// Similarity converts a distance between two profiles into a similarity in
// [0,1]: 1 - dist/max(len(a), len(b)).
func Similarity(dist float64, a, b string) float64 {
	length := max(len(a), len(b))
	if length == 0 {
		return 1
	}
	sim := 1 - dist/float64(length)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}
