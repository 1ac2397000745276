// Package measure scores how well a simulated event log reproduces the
// behaviour of a real one.
package measure

import (
	"context"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/logflow/tracesim/internal/model"
	"github.com/logflow/tracesim/pkg/alias"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/matcher"
	"github.com/logflow/tracesim/pkg/telemetry"
	"github.com/logflow/tracesim/pkg/trace"
)

// DefaultRampIOPerc is the share of leading and trailing simulated traces
// dropped as warm-up/cool-down.
const DefaultRampIOPerc = 0.2

// Options configure one measurement.
type Options struct {
	// Features names the one or two attributes that form a symbol.
	Features alias.Features

	// RampIOPerc must lie in [0, 0.5).
	RampIOPerc float64

	// Rand drives symbol assignment and sampling of real traces. Required.
	Rand *rand.Rand

	// Alphabet overrides alias.DefaultAlphabet.
	Alphabet string

	// DeterministicAlias assigns symbols in sorted key order instead of a
	// random permutation.
	DeterministicAlias bool
}

// DefaultOptions returns options with the default ramp and a seeded source.
func DefaultOptions(seed int64) Options {
	return Options{
		Features:   alias.Features{"activity"},
		RampIOPerc: DefaultRampIOPerc,
		Rand:       rand.New(rand.NewSource(seed)),
	}
}

// Result holds the matched scores of one measurement.
type Result struct {
	JW     []matcher.Score
	DL     []matcher.Score
	MAE    []matcher.Score
	DLTime float64

	// RealTraces and SimTraces count the traces that took part in matching.
	RealTraces int
	SimTraces  int
}

// Metrics are the four numeric summaries of a measurement.
type Metrics struct {
	JaroWinkler float64 `json:"jw"`
	DL          float64 `json:"dl"`
	MAE         float64 `json:"mae"`
	DLTime      float64 `json:"dl_time"`
}

// Summary reduces the score lists to their means.
func (r *Result) Summary() Metrics {
	return Metrics{
		JaroWinkler: Mean(r.JW),
		DL:          Mean(r.DL),
		MAE:         MeanAbsoluteError(r.MAE),
		DLTime:      r.DLTime,
	}
}

func (o Options) validate() error {
	if err := o.Features.Validate(); err != nil {
		return err
	}
	if o.RampIOPerc < 0 || o.RampIOPerc >= 0.5 || math.IsNaN(o.RampIOPerc) {
		return tserrors.New(tserrors.CodeInvalidRamp, "ramp percentage must lie in [0, 0.5)").
			WithContext("ramp_io_perc", o.RampIOPerc)
	}
	if o.Rand == nil {
		return tserrors.New(tserrors.CodeInvalidConfig, "a random source is required")
	}
	if o.Alphabet != "" {
		return alias.ValidateAlphabet(o.Alphabet)
	}
	return nil
}

// GenMeasurement compares a simulated log against a real one:
//
//  1. builds one alias table over both logs,
//  2. reformats both logs into trace records,
//  3. trims the ramp-up and ramp-down traces of the simulated log,
//  4. samples as many real traces as simulated traces remain,
//  5. matches them with every strategy.
//
// All configuration errors are reported before matching starts.
func GenMeasurement(ctx context.Context, realEvents, simEvents []model.RawEvent, opts Options) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "measure.GenMeasurement")
	defer span.End()

	res, err := genMeasurement(ctx, realEvents, simEvents, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("tracesim.traces", res.SimTraces),
		attribute.Float64("tracesim.dl_time", res.DLTime),
	)
	return res, nil
}

func genMeasurement(ctx context.Context, realEvents, simEvents []model.RawEvent, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(realEvents) == 0 || len(simEvents) == 0 {
		return nil, tserrors.New(tserrors.CodeEmptyLog, "both logs must contain events").
			WithContext("real", len(realEvents)).
			WithContext("sim", len(simEvents))
	}
	if allZeroTiming(realEvents) && allZeroTiming(simEvents) {
		return nil, tserrors.New(tserrors.CodeZeroTiming, "every inter-event duration is zero; time weighting is undefined")
	}

	all := make([]model.RawEvent, 0, len(realEvents)+len(simEvents))
	all = append(all, realEvents...)
	all = append(all, simEvents...)

	aliasOpts := alias.Options{Alphabet: opts.Alphabet}
	if !opts.DeterministicAlias {
		aliasOpts.Rand = opts.Rand
	}
	tbl, err := alias.Build(all, opts.Features, aliasOpts)
	if err != nil {
		return nil, err
	}

	realTraces, err := trace.Reformat(realEvents, tbl)
	if err != nil {
		return nil, err
	}
	simTraces, err := trace.Reformat(simEvents, tbl)
	if err != nil {
		return nil, err
	}

	simTraces, err = TrimRamp(simTraces, opts.RampIOPerc)
	if err != nil {
		return nil, err
	}
	sample, err := SampleReal(realTraces, len(simTraces), opts.Rand)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("symbols", tbl.Len()).
		Int("real", len(realTraces)).
		Int("sim", len(simTraces)).
		Msg("matching traces")

	if err := ctx.Err(); err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeContextCanceled, "measurement canceled")
	}

	res := &Result{RealTraces: len(sample), SimTraces: len(simTraces)}
	if res.JW, err = matcher.JaroWinkler(sample, simTraces); err != nil {
		return nil, err
	}
	if res.DL, err = matcher.DamerauLevenshtein(sample, simTraces); err != nil {
		return nil, err
	}
	if res.MAE, err = matcher.MAE(sample, simTraces); err != nil {
		return nil, err
	}
	if res.DLTime, err = DLTimeMean(res.DL); err != nil {
		return nil, err
	}
	return res, nil
}

func allZeroTiming(events []model.RawEvent) bool {
	for i := range events {
		if events[i].TBTW != 0 {
			return false
		}
	}
	return true
}

// TrimRamp drops round(len*perc) traces from both ends of the simulated
// traces. Rounding is half-to-even.
func TrimRamp(sim []trace.Record, perc float64) ([]trace.Record, error) {
	if perc < 0 || perc >= 0.5 || math.IsNaN(perc) {
		return nil, tserrors.New(tserrors.CodeInvalidRamp, "ramp percentage must lie in [0, 0.5)").
			WithContext("ramp_io_perc", perc)
	}
	n := int(math.RoundToEven(float64(len(sim)) * perc))
	if 2*n >= len(sim) {
		return nil, tserrors.New(tserrors.CodeInvalidRamp, "ramp trimming leaves no simulated traces").
			WithContext("traces", len(sim)).
			WithContext("trimmed_each_end", n)
	}
	return sim[n : len(sim)-n], nil
}

// SampleReal draws n real traces without replacement.
func SampleReal(real []trace.Record, n int, rng *rand.Rand) ([]trace.Record, error) {
	if n > len(real) {
		return nil, tserrors.SizeMismatch("real log has fewer traces than the trimmed simulated log", n, len(real))
	}
	perm := rng.Perm(len(real))
	out := make([]trace.Record, n)
	for i := 0; i < n; i++ {
		out[i] = real[perm[i]]
	}
	return out, nil
}
