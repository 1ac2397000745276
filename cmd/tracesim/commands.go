package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/tracesim/internal/model"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/resultstore"
	"github.com/logflow/tracesim/pkg/runner"
	"github.com/logflow/tracesim/pkg/tui"
	"github.com/logflow/tracesim/pkg/watch"
	"github.com/logflow/tracesim/pkg/writer"
)

// Command flags
var (
	realPath   string
	simPath    string
	scoresPath string
	runsFlag   int
	workersArg int
	storeFlag  string
	batchFlag  string
	noProgress bool
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Compare one simulated log with a real log",
	Long: `Compare one simulated log with a real log and print the four summaries.

Examples:
  tracesim measure --real real.csv --sim sim.csv
  tracesim measure --real real.xes --sim s3://bucket/sims/run-1.csv --scores scores.parquet
  tracesim measure --real real.csv --sim sim.csv --features activity,resource --ramp 0.1`,
	RunE: runMeasure,
}

var batchCmd = &cobra.Command{
	Use:   "batch [sim-log-or-glob]...",
	Short: "Measure many simulated logs in parallel",
	Long: `Measure every simulated log against the same real log, one run per log,
and summarize the runs. With a single simulated log, --runs repeats it with
a different seed per run. Finished runs are stored and skipped when the same
batch is run again.

Examples:
  tracesim batch --real real.csv 'sims/*.csv'
  tracesim batch --real real.csv sim.csv --runs 10 --workers 4
  tracesim batch --real real.csv s3://bucket/sims/ --store redis`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Re-aggregate stored run results",
	Long:  `Print per-run means and the mean over runs of one stored batch, or of every batch.`,
	RunE:  runSummarize,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]...",
	Short: "Measure every simulated log that appears in a directory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func init() {
	measureCmd.Flags().StringVar(&realPath, "real", "", "Real event log (path, '-', or s3://)")
	measureCmd.Flags().StringVar(&simPath, "sim", "", "Simulated event log (path, '-', or s3://)")
	measureCmd.Flags().StringVar(&scoresPath, "scores", "", "Export every score to a .parquet or .xlsx file (path or s3://)")
	measureCmd.MarkFlagRequired("real")
	measureCmd.MarkFlagRequired("sim")

	batchCmd.Flags().StringVar(&realPath, "real", "", "Real event log (path, '-', or s3://)")
	batchCmd.Flags().IntVar(&runsFlag, "runs", 0, "Repetitions of a single simulated log")
	batchCmd.Flags().IntVar(&workersArg, "workers", 0, "Parallel runs (default: GOMAXPROCS)")
	batchCmd.Flags().StringVar(&storeFlag, "store", "", "Result store (none, file, redis)")
	batchCmd.Flags().StringVar(&batchFlag, "batch", "", "Batch id (default: derived from the inputs)")
	batchCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
	batchCmd.MarkFlagRequired("real")

	summarizeCmd.Flags().StringVar(&batchFlag, "batch", "", "Batch id (default: every stored batch)")
	summarizeCmd.Flags().StringVar(&storeFlag, "store", "", "Result store (file, redis)")

	watchCmd.Flags().StringVar(&realPath, "real", "", "Real event log (path or s3://)")
	watchCmd.MarkFlagRequired("real")
}

func runMeasure(cmd *cobra.Command, args []string) error {
	if realPath == simPath && realPath == "-" {
		return tserrors.New(tserrors.CodeInvalidConfig, "only one log can be read from stdin")
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	opts, err := loadOptions(ctx, cfg, realPath, simPath, scoresPath)
	if err != nil {
		return err
	}

	var realEvents, simEvents []model.RawEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		realEvents, err = loadLog(gctx, realPath, opts)
		return err
	})
	g.Go(func() (err error) {
		simEvents, err = loadLog(gctx, simPath, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	mopts := measureOptions(cfg)
	mopts.Rand = seeded(cfg.Measure.Seed)

	start := time.Now()
	res, err := measure.GenMeasurement(ctx, realEvents, simEvents, mopts)
	if err != nil {
		return err
	}

	tui.PrintMeasure(cmd.OutOrStdout(), &tui.MeasureReport{
		RealPath: realPath,
		SimPath:  simPath,
		Metrics:  res.Summary(),
		Traces:   res.SimTraces,
		Duration: time.Since(start),
	})

	if scoresPath == "" {
		return nil
	}
	wcfg := writer.DefaultConfig()
	wcfg.Compression = writer.ParseCompression(cfg.Output.Compression)
	var up writer.Uploader
	if opts.Remote != nil {
		client, err := getS3Client(ctx, cfg)
		if err != nil {
			return err
		}
		up = client
	}
	return writer.Export(ctx, scoresPath, res, wcfg, up)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("runs") {
		cfg.Runs.Count = runsFlag
	}
	if cmd.Flags().Changed("workers") {
		cfg.Runs.Workers = workersArg
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = storeFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sims, err := expandSims(ctx, cfg, args)
	if err != nil {
		return err
	}
	opts, err := loadOptions(ctx, cfg, append([]string{realPath}, sims...)...)
	if err != nil {
		return err
	}
	realEvents, err := loadLog(ctx, realPath, opts)
	if err != nil {
		return err
	}

	store, err := resultstore.New(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	jobs := runner.Jobs(sims, cfg.Runs.Count, cfg.Measure.Seed)
	batchID := batchFlag
	if batchID == "" {
		batchID = runner.BatchID(realPath, jobs)
	}

	r := &runner.Runner{
		Workers: workerCount(cfg),
		Store:   store,
		Load: func(ctx context.Context, path string) ([]model.RawEvent, error) {
			return loadLog(ctx, path, opts)
		},
		Options: measureOptions(cfg),
		BatchID: batchID,
	}
	if !noProgress {
		bar := tui.ShowProgress(cmd.ErrOrStderr(), len(jobs), "measuring")
		defer bar.Finish()
		r.Progress = bar
	}

	log.Info().Str("batch", batchID).Int("runs", len(jobs)).Int("workers", r.Workers).Msg("batch started")
	rep, err := r.Run(ctx, realEvents, jobs)
	if err != nil {
		return err
	}
	if rep.Skipped > 0 {
		log.Info().Int("skipped", rep.Skipped).Msg("runs already stored")
	}
	if len(rep.Failed) > 0 {
		log.Warn().Int("failed", len(rep.Failed)).Msg("some runs did not finish")
	}

	tui.PrintBatch(cmd.OutOrStdout(), rep.BatchID, rep.Results, rep.Summary)
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = storeFlag
	}
	if cfg.Store.Backend == "none" {
		return tserrors.New(tserrors.CodeInvalidConfig, "summarize needs a file or redis result store")
	}
	ctx := cmd.Context()

	store, err := resultstore.New(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	batches := []string{batchFlag}
	if batchFlag == "" {
		if batches, err = store.Batches(ctx); err != nil {
			return err
		}
	}

	var found int
	for _, id := range batches {
		results, err := store.List(ctx, id)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			continue
		}
		found++
		tui.PrintBatch(cmd.OutOrStdout(), id, results, runner.Summarize(results))
	}
	if found == 0 {
		return tserrors.New(tserrors.CodeStoreFailed, "no stored runs").
			WithContext("batch", batchFlag)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	opts, err := loadOptions(ctx, cfg, realPath)
	if err != nil {
		return err
	}
	realEvents, err := loadLog(ctx, realPath, opts)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	realAbs, _ := filepath.Abs(realPath)
	w.Accept = func(path string) bool {
		return path != realAbs && watch.SupportedLog(path)
	}
	w.OnChange = func(ctx context.Context, path string) error {
		simEvents, err := loadLog(ctx, path, opts)
		if err != nil {
			return err
		}
		mopts := measureOptions(cfg)
		mopts.Rand = seeded(cfg.Measure.Seed)
		start := time.Now()
		res, err := measure.GenMeasurement(ctx, realEvents, simEvents, mopts)
		if err != nil {
			return err
		}
		tui.PrintMeasure(cmd.OutOrStdout(), &tui.MeasureReport{
			RealPath: realPath,
			SimPath:  path,
			Metrics:  res.Summary(),
			Traces:   res.SimTraces,
			Duration: time.Since(start),
		})
		return nil
	}
	w.OnError = func(path string, err error) {
		log.Error().Err(err).Str("path", path).Msg("measurement failed")
	}

	for _, dir := range args {
		if err := w.WatchDir(dir); err != nil {
			return err
		}
	}
	log.Info().Strs("dirs", args).Msg("watching for simulated logs")
	return w.Run(ctx)
}

func runConfig(cmd *cobra.Command, args []string) error {
	data, err := cfgManager.Marshal()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range cfgManager.GetPaths() {
		fmt.Fprintf(out, "# loaded: %s\n", p)
	}
	_, err = out.Write(data)
	return err
}
