package main

import (
	"context"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/logflow/tracesim/internal/model"
	"github.com/logflow/tracesim/pkg/alias"
	"github.com/logflow/tracesim/pkg/config"
	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/eventlog"
	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/parser"
	"github.com/logflow/tracesim/pkg/storage/s3"
	"github.com/logflow/tracesim/pkg/watch"
)

// s3Client is created on first use.
var s3Client *s3.Client

func anyS3(paths ...string) bool {
	for _, p := range paths {
		if s3.IsURI(p) {
			return true
		}
	}
	return false
}

func getS3Client(ctx context.Context, c *config.Config) (*s3.Client, error) {
	if s3Client != nil {
		return s3Client, nil
	}
	sc := s3.DefaultConfig(c.S3.Region)
	sc.Endpoint = c.S3.Endpoint
	sc.UsePathStyle = c.S3.UsePathStyle
	sc.AccessKeyID = c.S3.AccessKeyID
	sc.SecretAccessKey = c.S3.SecretAccessKey
	client, err := s3.NewClient(ctx, sc)
	if err != nil {
		return nil, err
	}
	s3Client = client
	return client, nil
}

func parserConfig(c *config.Config) parser.Config {
	pc := parser.DefaultConfig()
	r := c.Reader
	pc.CaseIDColumn = r.CaseIDColumn
	pc.ActivityColumn = r.ActivityColumn
	pc.ResourceColumn = r.ResourceColumn
	pc.StartColumn = r.StartColumn
	pc.EndColumn = r.EndColumn
	pc.TBTWColumn = r.TBTWColumn
	if r.TimestampFormat != "" {
		pc.TimestampFormat = r.TimestampFormat
	}
	pc.Delimiter = r.Delimiter[0]
	return pc
}

// loadOptions builds reader options; an S3 client is attached when any of
// paths needs one.
func loadOptions(ctx context.Context, c *config.Config, paths ...string) (eventlog.Options, error) {
	opts := eventlog.Options{
		Parser: parserConfig(c),
		Engine: c.Reader.Engine,
	}
	if anyS3(paths...) {
		client, err := getS3Client(ctx, c)
		if err != nil {
			return opts, err
		}
		opts.Remote = client
	}
	return opts, nil
}

// measureOptions leaves Rand to the caller.
func measureOptions(c *config.Config) measure.Options {
	return measure.Options{
		Features:           alias.Features(c.Measure.Features),
		RampIOPerc:         c.Measure.RampIOPerc,
		Alphabet:           c.Measure.Alphabet,
		DeterministicAlias: c.Measure.DeterministicAlias,
	}
}

func seeded(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func loadLog(ctx context.Context, path string, opts eventlog.Options) ([]model.RawEvent, error) {
	start := time.Now()
	events, err := eventlog.Load(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("path", path).
		Int("events", len(events)).
		Dur("elapsed", time.Since(start)).
		Msg("log loaded")
	return events, nil
}

// expandSims resolves simulated log arguments: local globs are expanded,
// s3:// prefixes ending in "/" are listed, anything else is kept as is.
// Only files with a known log format survive expansion.
func expandSims(ctx context.Context, c *config.Config, args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		switch {
		case s3.IsURI(arg) && strings.HasSuffix(arg, "/"):
			client, err := getS3Client(ctx, c)
			if err != nil {
				return nil, err
			}
			objects, err := client.List(ctx, arg)
			if err != nil {
				return nil, err
			}
			for _, o := range objects {
				if watch.SupportedLog(o.URI) {
					out = append(out, o.URI)
				}
			}
		case s3.IsURI(arg) || arg == eventlog.Stdin:
			out = append(out, arg)
		default:
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, tserrors.Wrap(err, tserrors.CodeInvalidConfig, "bad glob pattern").
					WithContext("pattern", arg)
			}
			if matches == nil {
				return nil, tserrors.FileNotFound(arg)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if watch.SupportedLog(m) {
					out = append(out, m)
				}
			}
		}
	}
	if len(out) == 0 {
		return nil, tserrors.New(tserrors.CodeFileNotFound, "no simulated logs found").
			WithContext("args", args)
	}
	return out, nil
}
