// Package writer exports per-trace scores as Parquet or an XLSX report.
package writer

import (
	"context"

	"github.com/logflow/tracesim/pkg/matcher"
	"github.com/logflow/tracesim/pkg/measure"
)

// ScoreRecord is one matched simulated trace under one metric.
type ScoreRecord struct {
	Metric string
	CaseID string
	Value  float64

	// Empty except for Damerau-Levenshtein records.
	SimProfile string
	LogProfile string
}

// Metric names used in exported records.
const (
	MetricJaroWinkler = "jw"
	MetricDL          = "dl"
	MetricMAE         = "mae"
)

// Records flattens a measurement into score records, metric by metric in
// matching order.
func Records(res *measure.Result) []ScoreRecord {
	out := make([]ScoreRecord, 0, len(res.JW)+len(res.DL)+len(res.MAE))
	out = appendScores(out, MetricJaroWinkler, res.JW)
	out = appendScores(out, MetricDL, res.DL)
	out = appendScores(out, MetricMAE, res.MAE)
	return out
}

func appendScores(out []ScoreRecord, metric string, scores []matcher.Score) []ScoreRecord {
	for _, s := range scores {
		out = append(out, ScoreRecord{
			Metric:     metric,
			CaseID:     s.CaseID,
			Value:      s.Value,
			SimProfile: s.SimProfile,
			LogProfile: s.LogProfile,
		})
	}
	return out
}

// ScoreWriter writes score records to an output format.
type ScoreWriter interface {
	// Write appends records.
	Write(ctx context.Context, records []ScoreRecord) error

	// Close flushes buffered data and finalizes the output.
	Close() error
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of records per Arrow record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}
