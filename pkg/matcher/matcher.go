// Package matcher pairs every simulated trace with its nearest unmatched
// real trace.
//
// Matching is greedy: simulated traces are visited in input order and each
// one takes the best candidate still in the pool. Earlier choices are never
// revisited, so the assignment is not a global optimum. Ties go to the
// first candidate in pool order. Each strategy scans the whole remaining
// pool for every simulated trace (quadratic in the number of traces).
package matcher

import (
	"math"

	"github.com/logflow/tracesim/pkg/distance"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/trace"
)

// Score is the outcome of matching one simulated trace.
type Score struct {
	// CaseID of the simulated trace.
	CaseID string

	// Value is a similarity in [0,1] for the Jaro-Winkler and
	// Damerau-Levenshtein strategies, and an absolute cycle-time error in
	// seconds for MAE.
	Value float64

	// Set by the Damerau-Levenshtein strategy only.
	SimProfile string
	LogProfile string
	SimTBTW    []float64
	LogTBTW    []float64
}

// Strategy names a matching strategy.
type Strategy string

const (
	StrategyJaroWinkler        Strategy = "jw"
	StrategyDamerauLevenshtein Strategy = "dl"
	StrategyMAE                Strategy = "mae"
)

// Pool is the set of real traces that can still be matched. Slots are
// flagged unavailable when consumed; indices never shift.
type Pool struct {
	traces    []trace.Record
	available []bool
	remaining int
}

// NewPool copies records into a fresh pool.
func NewPool(records []trace.Record) *Pool {
	p := &Pool{
		traces:    make([]trace.Record, len(records)),
		available: make([]bool, len(records)),
		remaining: len(records),
	}
	for i, r := range records {
		p.traces[i] = r.Clone()
		p.available[i] = true
	}
	return p
}

// Remaining returns the number of unmatched traces.
func (p *Pool) Remaining() int {
	return p.remaining
}

// Matched returns the indices of consumed slots in pool order.
func (p *Pool) Matched() []int {
	var out []int
	for i, ok := range p.available {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

// take marks slot i as consumed and returns its trace.
func (p *Pool) take(i int) trace.Record {
	p.available[i] = false
	p.remaining--
	return p.traces[i]
}

// nearest returns the available slot with the smallest plain
// Damerau-Levenshtein distance to profile; the first minimum wins.
func (p *Pool) nearest(profile string) (int, int) {
	idx, minDist := -1, 0
	for i, ok := range p.available {
		if !ok {
			continue
		}
		d := distance.DamerauLevenshtein(profile, p.traces[i].Profile)
		if idx < 0 || d < minDist {
			idx, minDist = i, d
		}
	}
	return idx, minDist
}

func (p *Pool) checkSize(sim []trace.Record) error {
	if p.remaining < len(sim) {
		return tserrors.SizeMismatch("real trace pool smaller than simulated set", len(sim), p.remaining)
	}
	return nil
}

// JaroWinkler matches by maximum Jaro-Winkler similarity of profiles and
// reports that similarity.
func JaroWinkler(real, sim []trace.Record) ([]Score, error) {
	return NewPool(real).JaroWinkler(sim)
}

// JaroWinkler consumes one pool slot per simulated trace, see the
// package-level JaroWinkler.
func (p *Pool) JaroWinkler(sim []trace.Record) ([]Score, error) {
	if err := p.checkSize(sim); err != nil {
		return nil, err
	}
	scores := make([]Score, 0, len(sim))
	for _, s := range sim {
		// Start from 0 so that a pool with no similarity at all gives up
		// its first available slot.
		idx, maxSim := -1, 0.0
		for i, ok := range p.available {
			if !ok {
				continue
			}
			if idx < 0 {
				idx = i
			}
			if v := distance.JaroWinkler(s.Profile, p.traces[i].Profile); maxSim < v {
				idx, maxSim = i, v
			}
		}
		p.take(idx)
		scores = append(scores, Score{CaseID: s.CaseID, Value: maxSim})
	}
	return scores, nil
}

// DamerauLevenshtein matches by minimum plain Damerau-Levenshtein distance
// and reports 1 - distance/max(len) together with both matched traces.
func DamerauLevenshtein(real, sim []trace.Record) ([]Score, error) {
	return NewPool(real).DamerauLevenshtein(sim)
}

// DamerauLevenshtein consumes one pool slot per simulated trace, see the
// package-level DamerauLevenshtein.
func (p *Pool) DamerauLevenshtein(sim []trace.Record) ([]Score, error) {
	if err := p.checkSize(sim); err != nil {
		return nil, err
	}
	scores := make([]Score, 0, len(sim))
	for _, s := range sim {
		idx, dist := p.nearest(s.Profile)
		match := p.take(idx)
		scores = append(scores, Score{
			CaseID:     s.CaseID,
			Value:      distance.Similarity(float64(dist), s.Profile, match.Profile),
			SimProfile: s.Profile,
			LogProfile: match.Profile,
			SimTBTW:    append([]float64(nil), s.TBTWList...),
			LogTBTW:    match.TBTWList,
		})
	}
	return scores, nil
}

// MAE matches like DamerauLevenshtein and reports the absolute difference of
// the two traces' total elapsed times.
func MAE(real, sim []trace.Record) ([]Score, error) {
	return NewPool(real).MAE(sim)
}

// MAE consumes one pool slot per simulated trace, see the package-level
// MAE.
func (p *Pool) MAE(sim []trace.Record) ([]Score, error) {
	if err := p.checkSize(sim); err != nil {
		return nil, err
	}
	scores := make([]Score, 0, len(sim))
	for _, s := range sim {
		idx, _ := p.nearest(s.Profile)
		match := p.take(idx)
		scores = append(scores, Score{
			CaseID: s.CaseID,
			Value:  math.Abs(match.TBTW - s.TBTW),
		})
	}
	return scores, nil
}

// Match runs the named strategy.
func Match(strategy Strategy, real, sim []trace.Record) ([]Score, error) {
	switch strategy {
	case StrategyJaroWinkler:
		return JaroWinkler(real, sim)
	case StrategyDamerauLevenshtein:
		return DamerauLevenshtein(real, sim)
	case StrategyMAE:
		return MAE(real, sim)
	default:
		return nil, tserrors.New(tserrors.CodeInvalidConfig, "unknown matching strategy").
			WithContext("strategy", string(strategy))
	}
}
