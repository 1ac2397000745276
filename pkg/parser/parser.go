// Package parser reads event logs (CSV, XES, XLSX) into raw events.
package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/tracesim/internal/model"
)

// Parser defines the interface for parsing event logs.
// Implementations must not retain references to the output channel after
// returning.
type Parser interface {
	// Parse reads from r and sends parsed events to out.
	// It should respect context cancellation.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.RawEvent) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from a file name. A trailing .gz is
// ignored.
func DetectFormat(path string) Format {
	path = strings.TrimSuffix(strings.ToLower(path), ".gz")
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Config holds common parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// Column names. Start is required; End falls back to Start. Resource
	// and TBTW are optional. Each name falls back to the well-known XES and
	// CSV spellings when absent from the header.
	CaseIDColumn   string
	ActivityColumn string
	ResourceColumn string
	StartColumn    string
	EndColumn      string
	TBTWColumn     string

	// TimestampFormat is tried after the built-in layouts (Go time layout).
	TimestampFormat string

	// Delimiter is the field delimiter for CSV (default: comma).
	Delimiter byte
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:      64 * 1024,
		CaseIDColumn:    "caseid",
		ActivityColumn:  "task",
		ResourceColumn:  "role",
		StartColumn:     "start_timestamp",
		EndColumn:       "end_timestamp",
		TimestampFormat: "2006-01-02T15:04:05.000000",
		Delimiter:       ',',
	}
}

// NewParser creates a parser for the given format. Parquet is read through
// DuckDB by the eventlog package and has no streaming parser.
func NewParser(format Format, cfg Config) (Parser, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatXES:
		return NewXESParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
