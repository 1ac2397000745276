package measure

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/tracesim/internal/model"
	"github.com/logflow/tracesim/pkg/alias"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/matcher"
	"github.com/logflow/tracesim/pkg/trace"
)

// synthLog builds n cases of the activity sequence acts, each case starting
// one hour after the previous one, every step taking step seconds.
func synthLog(prefix string, n int, acts string, step float64) []model.RawEvent {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []model.RawEvent
	for c := 0; c < n; c++ {
		start := base.Add(time.Duration(c) * time.Hour)
		for i, a := range acts {
			at := start.Add(time.Duration(float64(i)*step) * time.Second)
			tbtw := step
			if i == 0 {
				tbtw = 0
			}
			out = append(out, model.RawEvent{
				CaseID:   fmt.Sprintf("%s%03d", prefix, c),
				Activity: string(a),
				Start:    at,
				End:      at,
				TBTW:     tbtw,
			})
		}
	}
	return out
}

func records(n int) []trace.Record {
	out := make([]trace.Record, n)
	for i := range out {
		out[i] = trace.Record{CaseID: fmt.Sprint(i)}
	}
	return out
}

func TestTrimRamp(t *testing.T) {
	out, err := TrimRamp(records(10), 0.2)
	require.NoError(t, err)
	require.Len(t, out, 6)
	assert.Equal(t, "2", out[0].CaseID)
	assert.Equal(t, "7", out[5].CaseID)

	out, err = TrimRamp(records(3), 0.1)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	// 5 * 0.1 = 0.5 rounds to 0
	out, err = TrimRamp(records(5), 0.1)
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestTrimRamp_Errors(t *testing.T) {
	for _, perc := range []float64{-0.1, 0.5, 0.7} {
		_, err := TrimRamp(records(10), perc)
		assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidRamp), "perc %v", perc)
	}
	_, err := TrimRamp(records(2), 0.4)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidRamp))
	assert.True(t, tserrors.IsFatal(err))
}

func TestSampleReal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out, err := SampleReal(records(10), 4, rng)
	require.NoError(t, err)
	require.Len(t, out, 4)

	seen := map[string]bool{}
	for _, r := range out {
		assert.False(t, seen[r.CaseID])
		seen[r.CaseID] = true
	}

	_, err = SampleReal(records(2), 3, rng)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeSizeMismatch))
}

func TestRunMeans(t *testing.T) {
	s := RunMeans([]RunScore{{1, 0.2}, {1, 0.4}, {1, 0.6}})
	require.Len(t, s.Runs, 1)
	assert.InDelta(t, 0.4, s.Runs[0].Mean, 1e-12)
	assert.Equal(t, 3, s.Runs[0].Count)
	assert.InDelta(t, 0.4, s.Overall, 1e-12)

	s = RunMeans([]RunScore{{2, 0.8}, {1, 0.4}})
	require.Len(t, s.Runs, 2)
	assert.Equal(t, 1, s.Runs[0].Run)
	assert.Equal(t, 2, s.Runs[1].Run)
	assert.InDelta(t, 0.6, s.Overall, 1e-12)

	// every run weighs the same
	s = RunMeans([]RunScore{{1, 1}, {1, 1}, {1, 1}, {2, 0}})
	assert.InDelta(t, 0.5, s.Overall, 1e-12)

	assert.Empty(t, RunMeans(nil).Runs)
}

func TestTagAndMean(t *testing.T) {
	scores := []matcher.Score{{Value: 1}, {Value: 3}}
	tagged := Tag(4, scores)
	assert.Equal(t, []RunScore{{4, 1}, {4, 3}}, tagged)
	assert.Equal(t, 2.0, Mean(scores))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestDLTimeMean(t *testing.T) {
	v, err := DLTimeMean([]matcher.Score{
		{SimProfile: "ab", LogProfile: "ab", SimTBTW: []float64{1, 2}, LogTBTW: []float64{1, 2}},
		{SimProfile: "ab", LogProfile: "ba", SimTBTW: []float64{1, 2}, LogTBTW: []float64{2, 1}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v, 1e-12)
}

func TestGenMeasurement_IdenticalLogs(t *testing.T) {
	realLog := synthLog("r", 20, "ABCD", 60)
	simLog := synthLog("s", 20, "ABCD", 60)

	res, err := GenMeasurement(context.Background(), realLog, simLog, DefaultOptions(3))
	require.NoError(t, err)

	assert.Equal(t, 12, res.SimTraces)
	assert.Equal(t, 12, res.RealTraces)
	require.Len(t, res.JW, 12)
	require.Len(t, res.DL, 12)
	require.Len(t, res.MAE, 12)

	m := res.Summary()
	assert.InDelta(t, 1.0, m.JaroWinkler, 1e-12)
	assert.InDelta(t, 1.0, m.DL, 1e-12)
	assert.InDelta(t, 0.0, m.MAE, 1e-12)
	assert.InDelta(t, 1.0, m.DLTime, 1e-12)
}

func TestGenMeasurement_SeedReproducible(t *testing.T) {
	realLog := append(synthLog("r", 15, "ABCD", 60), synthLog("q", 15, "ACBE", 90)...)
	simLog := synthLog("s", 10, "ABDE", 75)

	opts := DefaultOptions(11)
	opts.Features = alias.Features{"activity"}
	a, err := GenMeasurement(context.Background(), realLog, simLog, opts)
	require.NoError(t, err)

	opts = DefaultOptions(11)
	b, err := GenMeasurement(context.Background(), realLog, simLog, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Summary(), b.Summary())
	m := a.Summary()
	assert.Less(t, m.DL, 1.0)
	assert.Greater(t, m.MAE, 0.0)
}

func TestGenMeasurement_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	realLog := synthLog("r", 5, "AB", 10)
	simLog := synthLog("s", 5, "AB", 10)

	opts := DefaultOptions(1)
	opts.RampIOPerc = 0.5
	_, err := GenMeasurement(ctx, realLog, simLog, opts)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidRamp))

	opts = DefaultOptions(1)
	opts.Alphabet = "X"
	_, err = GenMeasurement(ctx, realLog, simLog, opts)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeAlphabetExhausted))

	opts = DefaultOptions(1)
	opts.Features = alias.Features{"activity", "resource", "x"}
	_, err = GenMeasurement(ctx, realLog, simLog, opts)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	opts = DefaultOptions(1)
	opts.Features = alias.Features{"actvity"}
	_, err = GenMeasurement(ctx, realLog, simLog, opts)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidFeatures))

	_, err = GenMeasurement(ctx, synthLog("r", 5, "AB", 0), synthLog("s", 5, "AB", 0), DefaultOptions(1))
	assert.True(t, tserrors.IsCode(err, tserrors.CodeZeroTiming))

	_, err = GenMeasurement(ctx, nil, simLog, DefaultOptions(1))
	assert.True(t, tserrors.IsCode(err, tserrors.CodeEmptyLog))

	// 10 sim traces trimmed to 6, only 3 real traces
	_, err = GenMeasurement(ctx, synthLog("r", 3, "AB", 10), synthLog("s", 10, "AB", 10), DefaultOptions(1))
	assert.True(t, tserrors.IsCode(err, tserrors.CodeSizeMismatch))
}

func TestGenMeasurement_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := GenMeasurement(ctx, synthLog("r", 5, "AB", 10), synthLog("s", 5, "AB", 10), DefaultOptions(1))
	assert.True(t, tserrors.IsCode(err, tserrors.CodeContextCanceled))
}
