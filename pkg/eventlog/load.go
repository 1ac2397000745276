package eventlog

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/tracesim/internal/model"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/parser"
	"github.com/logflow/tracesim/pkg/storage/s3"
)

// Engines
const (
	EngineNative = "native"
	EngineDuckDB = "duckdb"
)

// Options control how a log is loaded.
type Options struct {
	Parser parser.Config

	// Engine selects DuckDB for CSV input. Parquet always uses DuckDB.
	Engine string

	// Remote opens s3:// paths. May be nil.
	Remote ObjectOpener
}

// DefaultOptions returns native loading with the default columns.
func DefaultOptions() Options {
	return Options{
		Parser: parser.DefaultConfig(),
		Engine: EngineNative,
	}
}

// Load reads every event of the log at path. When the log carries no tbtw
// column, TBTW is derived from the timestamps (see DeriveTBTW).
func Load(ctx context.Context, path string, opts Options) ([]model.RawEvent, error) {
	format := parser.DetectFormat(path)
	if format == parser.FormatUnknown {
		return nil, tserrors.New(tserrors.CodeInvalidFormat, "cannot infer log format from file name").
			WithContext("path", path)
	}

	out := make(chan *model.RawEvent, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(out)
		if format == parser.FormatParquet || (format == parser.FormatCSV && opts.Engine == EngineDuckDB) {
			return readDuckDB(gctx, path, format, opts, out)
		}
		return readNative(gctx, path, format, opts, out)
	})

	var events []model.RawEvent
	for ev := range out {
		events = append(events, *ev)
	}
	if err := g.Wait(); err != nil {
		return nil, classify(err, path)
	}
	if len(events) == 0 {
		return nil, tserrors.New(tserrors.CodeEmptyLog, "log contains no events").
			WithContext("path", path)
	}

	if opts.Parser.TBTWColumn == "" {
		DeriveTBTW(events)
	}
	log.Debug().Str("path", path).Str("format", format.String()).Int("events", len(events)).Msg("loaded event log")
	return events, nil
}

func readNative(ctx context.Context, path string, format parser.Format, opts Options, out chan<- *model.RawEvent) error {
	p, err := parser.NewParser(format, opts.Parser)
	if err != nil {
		return err
	}
	r, cleanup, err := Open(ctx, path, opts.Remote)
	if err != nil {
		return err
	}
	defer cleanup()
	return p.Parse(ctx, r, out)
}

func readDuckDB(ctx context.Context, path string, format parser.Format, opts Options, out chan<- *model.RawEvent) error {
	local := path
	if path == Stdin || s3.IsURI(path) || IsGzipFile(path) {
		tmp, remove, err := spool(ctx, path, opts.Remote)
		if err != nil {
			return err
		}
		defer remove()
		local = tmp
	}

	src, err := NewDuckDBSource()
	if err != nil {
		return err
	}
	defer src.Close()

	cfg := opts.Parser
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return src.Read(ctx, local, format, cfg, out)
}

// classify maps loader failures onto error codes.
func classify(err error, path string) error {
	var tsErr *tserrors.TraceSimError
	switch {
	case errors.As(err, &tsErr):
		return err
	case errors.Is(err, parser.ErrMissingColumn):
		return tserrors.Wrap(err, tserrors.CodeMissingColumn, "required column not found").WithContext("path", path)
	case errors.Is(err, parser.ErrInvalidTimestamp):
		return tserrors.Wrap(err, tserrors.CodeInvalidTimestamp, "invalid timestamp").WithContext("path", path)
	case errors.Is(err, parser.ErrContextCanceled), errors.Is(err, context.Canceled):
		return tserrors.Wrap(err, tserrors.CodeContextCanceled, "loading canceled").WithContext("path", path)
	default:
		return tserrors.Wrap(err, tserrors.CodeInvalidFormat, "cannot read event log").WithContext("path", path)
	}
}

// DeriveTBTW sets the TBTW of every event in place: per case, with events
// stable-sorted by start time, the first event gets 0 and every later one
// the seconds between the previous event's end and its own start, floored
// at 0 for overlapping events. The order of events is not changed.
func DeriveTBTW(events []model.RawEvent) {
	byCase := make(map[string][]int)
	for i := range events {
		byCase[events[i].CaseID] = append(byCase[events[i].CaseID], i)
	}
	for _, idx := range byCase {
		sort.SliceStable(idx, func(a, b int) bool {
			return events[idx[a]].Start.Before(events[idx[b]].Start)
		})
		for k, i := range idx {
			if k == 0 {
				events[i].TBTW = 0
				continue
			}
			gap := events[i].Start.Sub(events[idx[k-1]].End).Seconds()
			events[i].TBTW = max(0, gap)
		}
	}
}
