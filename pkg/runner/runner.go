// Package runner measures many simulated logs against one real log in
// parallel and aggregates the per-run summaries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/tracesim/internal/model"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/resultstore"
	"github.com/logflow/tracesim/pkg/telemetry"
)

// Job is one run: a simulated log measured with its own seed.
type Job struct {
	Run     int
	SimPath string
	Seed    int64
}

// Jobs numbers runs from 1. A single simulated log with runs > 1 is
// measured runs times; otherwise each path is one run. Run i is seeded
// with seed+i.
func Jobs(simPaths []string, runs int, seed int64) []Job {
	if len(simPaths) == 1 && runs > 1 {
		paths := make([]string, runs)
		for i := range paths {
			paths[i] = simPaths[0]
		}
		simPaths = paths
	}
	jobs := make([]Job, len(simPaths))
	for i, p := range simPaths {
		run := i + 1
		jobs[i] = Job{Run: run, SimPath: p, Seed: seed + int64(run)}
	}
	return jobs
}

// BatchID derives a stable id from the inputs, so re-running the same batch
// finds the runs stored before.
func BatchID(realPath string, jobs []Job) string {
	var b strings.Builder
	b.WriteString(realPath)
	for _, j := range jobs {
		fmt.Fprintf(&b, "\x00%d:%s:%d", j.Run, j.SimPath, j.Seed)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.String())).String()
}

// LoadFunc reads a simulated log.
type LoadFunc func(ctx context.Context, path string) ([]model.RawEvent, error)

// Progress is advanced once per finished or skipped run.
type Progress interface {
	Add(n int) error
}

// Runner executes jobs with at most Workers measurements in flight.
type Runner struct {
	Workers int
	Store   resultstore.Store
	// Progress may be nil.
	Progress Progress
	Load     LoadFunc

	// Options is copied per run; its Rand is replaced by one seeded from
	// the job.
	Options measure.Options

	// BatchID defaults to a random UUID.
	BatchID string
}

// Report is the outcome of a batch.
type Report struct {
	BatchID string
	Results []*resultstore.RunResult
	Skipped int

	// Failed holds the errors of runs that did not finish; their entries
	// in Results are nil.
	Failed []error

	Summary Summary
}

// Run measures every job against realEvents. realEvents is shared by all
// workers and never modified. A run that fails with a non-fatal error is
// reported in Report.Failed and the batch goes on; fatal errors (bad
// configuration, cancellation) stop the batch.
func (r *Runner) Run(ctx context.Context, realEvents []model.RawEvent, jobs []Job) (*Report, error) {
	if r.Load == nil {
		return nil, tserrors.New(tserrors.CodeInvalidConfig, "runner needs a log loader")
	}
	store := r.Store
	if store == nil {
		store = resultstore.NopStore{}
	}
	batchID := r.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "runner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tracesim.batch_id", batchID),
		attribute.Int("tracesim.runs", len(jobs)),
	)

	results := make([]*resultstore.RunResult, len(jobs))
	skipped := make([]bool, len(jobs))
	var (
		mu     sync.Mutex
		failed tserrors.MultiError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return tserrors.Wrap(err, tserrors.CodeContextCanceled, "batch canceled")
			}

			prev, err := store.Load(gctx, batchID, job.Run)
			switch {
			case err == nil:
				log.Debug().Str("batch", batchID).Int("run", job.Run).Msg("run already stored, skipping")
				results[i], skipped[i] = prev, true
				r.advance()
				return nil
			case !errors.Is(err, resultstore.ErrNotFound):
				return err
			}

			res, err := r.runOne(gctx, batchID, realEvents, job)
			if err == nil {
				err = store.Save(gctx, res)
			}
			if err != nil {
				if tserrors.IsFatal(err) || gctx.Err() != nil {
					return err
				}
				log.Warn().Err(err).Int("run", job.Run).Str("sim", job.SimPath).Msg("run failed")
				mu.Lock()
				failed.Add(err)
				mu.Unlock()
				r.advance()
				return nil
			}
			results[i] = res
			r.advance()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(failed.Errors) == len(jobs) && len(jobs) > 0 {
		err := failed.Combined()
		span.RecordError(err)
		span.SetStatus(codes.Error, "every run failed")
		return nil, err
	}

	rep := &Report{BatchID: batchID, Results: results, Failed: failed.Errors}
	for _, s := range skipped {
		if s {
			rep.Skipped++
		}
	}
	rep.Summary = Summarize(results)
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, batchID string, realEvents []model.RawEvent, job Job) (*resultstore.RunResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "runner.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("tracesim.run", job.Run),
		attribute.String("tracesim.sim_path", job.SimPath),
	)

	simEvents, err := r.Load(ctx, job.SimPath)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	opts := r.Options
	opts.Rand = rand.New(rand.NewSource(job.Seed))

	res, err := measure.GenMeasurement(ctx, realEvents, simEvents, opts)
	if err != nil {
		span.RecordError(err)
		return nil, tserrors.Wrap(err, tserrors.GetCode(err), "run failed").
			WithContext("run", job.Run).
			WithContext("sim", job.SimPath)
	}

	m := res.Summary()
	log.Debug().
		Int("run", job.Run).
		Int("traces", res.SimTraces).
		Float64("jw", m.JaroWinkler).
		Float64("dl", m.DL).
		Msg("run finished")

	return &resultstore.RunResult{
		BatchID:    batchID,
		Run:        job.Run,
		SimPath:    job.SimPath,
		Seed:       job.Seed,
		JWMean:     m.JaroWinkler,
		DLMean:     m.DL,
		MAE:        m.MAE,
		DLTime:     m.DLTime,
		Traces:     res.SimTraces,
		FinishedAt: time.Now().UTC(),
	}, nil
}

func (r *Runner) workers() int {
	if r.Workers < 1 {
		return 1
	}
	return r.Workers
}

func (r *Runner) advance() {
	if r.Progress != nil {
		_ = r.Progress.Add(1)
	}
}

// Summary aggregates run results per metric.
type Summary struct {
	JaroWinkler measure.Summary
	DL          measure.Summary
	MAE         measure.Summary
	DLTime      measure.Summary
}

// Summarize feeds every metric of the given runs to measure.RunMeans. Nil
// entries are ignored.
func Summarize(results []*resultstore.RunResult) Summary {
	var jw, dl, mae, dlt []measure.RunScore
	for _, r := range results {
		if r == nil {
			continue
		}
		jw = append(jw, measure.RunScore{Run: r.Run, Score: r.JWMean})
		dl = append(dl, measure.RunScore{Run: r.Run, Score: r.DLMean})
		mae = append(mae, measure.RunScore{Run: r.Run, Score: r.MAE})
		dlt = append(dlt, measure.RunScore{Run: r.Run, Score: r.DLTime})
	}
	return Summary{
		JaroWinkler: measure.RunMeans(jw),
		DL:          measure.RunMeans(dl),
		MAE:         measure.RunMeans(mae),
		DLTime:      measure.RunMeans(dlt),
	}
}
