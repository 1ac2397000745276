// tracesim measures how closely simulated event logs reproduce a real
// process event log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/logflow/tracesim/pkg/config"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/logging"
	"github.com/logflow/tracesim/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	logFormat  string
)

// Measurement and reader overrides, applied only when set.
var (
	featuresFlag     []string
	rampFlag         float64
	seedFlag         int64
	alphabetFlag     string
	deterministicArg bool

	caseIDColumn    string
	activityColumn  string
	resourceColumn  string
	startColumn     string
	endColumn       string
	tbtwColumn      string
	timestampFormat string
	delimiterFlag   string
	engineFlag      string
)

// cfg is the effective configuration, loaded before any command runs.
var (
	cfg               *config.Config
	cfgManager        *config.Manager
	telemetryShutdown func(context.Context) error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if verbose {
			fmt.Fprint(os.Stderr, tserrors.Stack(err))
		}
		if tserrors.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tracesim",
	Short: "tracesim - measure simulated event logs against a real one",
	Long: `tracesim compares simulated process event logs with a real log.

Both logs are reduced to traces of symbols, every simulated trace is matched
with its nearest real trace, and four similarity summaries are reported:
Jaro-Winkler, Damerau-Levenshtein, time-weighted Damerau-Levenshtein and the
mean absolute cycle-time error.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown == nil {
			return nil
		}
		return telemetryShutdown(context.Background())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default: ./.tracesim.yaml, ~/.tracesim/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console, json)")

	pf.StringSliceVar(&featuresFlag, "features", nil, "Attributes forming a symbol (one or two, e.g. activity,resource)")
	pf.Float64Var(&rampFlag, "ramp", 0, "Share of simulated traces trimmed at each end, in [0, 0.5)")
	pf.Int64Var(&seedFlag, "seed", 0, "Random seed")
	pf.StringVar(&alphabetFlag, "alphabet", "", "Symbol alphabet (default: printable ASCII)")
	pf.BoolVar(&deterministicArg, "deterministic-alias", false, "Assign symbols in sorted order instead of randomly")

	pf.StringVar(&caseIDColumn, "case-id", "", "Case id column")
	pf.StringVar(&activityColumn, "activity", "", "Activity column")
	pf.StringVar(&resourceColumn, "resource", "", "Resource column")
	pf.StringVar(&startColumn, "start", "", "Start timestamp column")
	pf.StringVar(&endColumn, "end", "", "End timestamp column")
	pf.StringVar(&tbtwColumn, "tbtw", "", "Column holding the time between events in seconds (default: derived)")
	pf.StringVar(&timestampFormat, "timestamp-format", "", "Timestamp format (Go time layout)")
	pf.StringVar(&delimiterFlag, "delimiter", "", "CSV field delimiter")
	pf.StringVar(&engineFlag, "engine", "", "Reader engine for CSV (native, duckdb)")

	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the configuration, applies flag overrides and starts logging
// and telemetry.
func setup(cmd *cobra.Command, args []string) error {
	cfgManager = config.NewManager()
	if err := cfgManager.Load(configFile); err != nil {
		return err
	}
	cfg = cfgManager.Get()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	otlp := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
	otlp.Endpoint = cfg.Telemetry.Endpoint
	otlp.InsecureTLS = cfg.Telemetry.Insecure
	otlp.SamplingRatio = cfg.Telemetry.SamplingRatio
	otlp.ServiceVersion = version
	shutdown, err := telemetry.Setup(cmd.Context(), cfg.Telemetry.Enabled, otlp)
	if err != nil {
		return err
	}
	telemetryShutdown = shutdown

	log.Debug().Strs("config_paths", cfgManager.GetPaths()).Msg("configuration loaded")
	return nil
}

// applyFlags overrides c with every flag the user set explicitly.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if verbose {
		c.Log.Level = "debug"
	}
	if changed("log-format") {
		c.Log.Format = logFormat
	}

	if changed("features") {
		c.Measure.Features = featuresFlag
	}
	if changed("ramp") {
		c.Measure.RampIOPerc = rampFlag
	}
	if changed("seed") {
		c.Measure.Seed = seedFlag
	}
	if changed("alphabet") {
		c.Measure.Alphabet = alphabetFlag
	}
	if changed("deterministic-alias") {
		c.Measure.DeterministicAlias = deterministicArg
	}

	columns := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"case-id", &c.Reader.CaseIDColumn, caseIDColumn},
		{"activity", &c.Reader.ActivityColumn, activityColumn},
		{"resource", &c.Reader.ResourceColumn, resourceColumn},
		{"start", &c.Reader.StartColumn, startColumn},
		{"end", &c.Reader.EndColumn, endColumn},
		{"tbtw", &c.Reader.TBTWColumn, tbtwColumn},
		{"timestamp-format", &c.Reader.TimestampFormat, timestampFormat},
		{"delimiter", &c.Reader.Delimiter, delimiterFlag},
		{"engine", &c.Reader.Engine, engineFlag},
	}
	for _, s := range columns {
		if changed(s.flag) {
			*s.dst = s.val
		}
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Warn().Msg("interrupted, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func workerCount(c *config.Config) int {
	if c.Runs.Workers > 0 {
		return c.Runs.Workers
	}
	return runtime.GOMAXPROCS(0)
}
