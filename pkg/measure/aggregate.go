package measure

import (
	"sort"

	"github.com/logflow/tracesim/pkg/distance"
	"github.com/logflow/tracesim/pkg/matcher"
)

// RunScore is one score tagged with the run it came from.
type RunScore struct {
	Run   int
	Score float64
}

// RunMean is the mean score of one run.
type RunMean struct {
	Run   int
	Mean  float64
	Count int
}

// Summary holds per-run means and the mean over runs.
type Summary struct {
	Runs    []RunMean
	Overall float64
}

// RunMeans groups scores by run number and averages each group. The overall
// mean is the mean of the run means, so every run weighs the same whatever
// its number of scores. Input order does not matter.
func RunMeans(scores []RunScore) Summary {
	sorted := append([]RunScore(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Run < sorted[j].Run })

	var s Summary
	for i := 0; i < len(sorted); {
		j := i
		var sum float64
		for j < len(sorted) && sorted[j].Run == sorted[i].Run {
			sum += sorted[j].Score
			j++
		}
		s.Runs = append(s.Runs, RunMean{
			Run:   sorted[i].Run,
			Mean:  sum / float64(j-i),
			Count: j - i,
		})
		i = j
	}

	if len(s.Runs) > 0 {
		var total float64
		for _, r := range s.Runs {
			total += r.Mean
		}
		s.Overall = total / float64(len(s.Runs))
	}
	return s
}

// Tag attaches a run number to every score value.
func Tag(run int, scores []matcher.Score) []RunScore {
	out := make([]RunScore, len(scores))
	for i, s := range scores {
		out[i] = RunScore{Run: run, Score: s.Value}
	}
	return out
}

// Mean returns the arithmetic mean of score values, 0 for no scores.
func Mean(scores []matcher.Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Value
	}
	return sum / float64(len(scores))
}

// MeanAbsoluteError returns the mean of the absolute errors produced by
// matcher.MAE.
func MeanAbsoluteError(scores []matcher.Score) float64 {
	return Mean(scores)
}

// DLTimeMean returns the mean time-aware similarity of Damerau-Levenshtein
// matches: 1 - Weighted(...)/max(len) per matched pair.
func DLTimeMean(dl []matcher.Score) (float64, error) {
	if len(dl) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range dl {
		d, err := distance.Weighted(r.SimProfile, r.LogProfile, r.SimTBTW, r.LogTBTW)
		if err != nil {
			return 0, err
		}
		sum += distance.Similarity(d, r.SimProfile, r.LogProfile)
	}
	return sum / float64(len(dl)), nil
}
