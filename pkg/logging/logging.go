// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/logflow/tracesim/pkg/config"
	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// Setup installs a global logger writing to stderr.
func Setup(cfg config.LogConfig) error {
	return SetupWriter(os.Stderr, cfg)
}

// SetupWriter installs a global logger writing to w.
func SetupWriter(w io.Writer, cfg config.LogConfig) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	case "json":
	default:
		return tserrors.New(tserrors.CodeInvalidConfig, "unknown log format").
			WithContext("format", cfg.Format)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// ParseLevel maps a level name to a zerolog level; empty means info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, tserrors.Wrap(err, tserrors.CodeInvalidConfig, "unknown log level").
			WithContext("level", name)
	}
	return level, nil
}
