package writer

import (
	"context"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// ParquetScoreWriter writes score records to Parquet using Apache Arrow.
type ParquetScoreWriter struct {
	cfg Config

	schema *arrow.Schema
	writer *pqarrow.FileWriter

	metricBuilder     *array.StringBuilder
	caseIDBuilder     *array.StringBuilder
	valueBuilder      *array.Float64Builder
	simProfileBuilder *array.StringBuilder
	logProfileBuilder *array.StringBuilder

	mu          sync.Mutex
	rowCount    int
	rowsWritten int64
	closed      bool
}

// ScoreSchema returns the Arrow schema of exported scores.
func ScoreSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "metric", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "case_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "sim_profile", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "log_profile", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func codecFor(c CompressionType) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// NewParquetScoreWriter creates a Parquet writer over output.
func NewParquetScoreWriter(output io.Writer, cfg Config) (*ParquetScoreWriter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	allocator := memory.NewGoAllocator()
	schema := ScoreSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codecFor(cfg.Compression)),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to create parquet writer")
	}

	return &ParquetScoreWriter{
		cfg:               cfg,
		schema:            schema,
		writer:            fw,
		metricBuilder:     array.NewStringBuilder(allocator),
		caseIDBuilder:     array.NewStringBuilder(allocator),
		valueBuilder:      array.NewFloat64Builder(allocator),
		simProfileBuilder: array.NewStringBuilder(allocator),
		logProfileBuilder: array.NewStringBuilder(allocator),
	}, nil
}

// Write implements ScoreWriter.
func (w *ParquetScoreWriter) Write(ctx context.Context, records []ScoreRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return tserrors.Wrap(err, tserrors.CodeContextCanceled, "score export canceled")
			}
		}
		w.append(&records[i])
		w.rowCount++
		if w.rowCount >= w.cfg.BatchSize {
			if err := w.flushBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *ParquetScoreWriter) append(r *ScoreRecord) {
	w.metricBuilder.Append(r.Metric)
	w.caseIDBuilder.Append(r.CaseID)
	w.valueBuilder.Append(r.Value)
	appendOptional(w.simProfileBuilder, r.SimProfile)
	appendOptional(w.logProfileBuilder, r.LogProfile)
}

func appendOptional(b *array.StringBuilder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.Append(s)
}

// flushBatch writes the buffered rows as one record batch.
func (w *ParquetScoreWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	cols := []arrow.Array{
		w.metricBuilder.NewArray(),
		w.caseIDBuilder.NewArray(),
		w.valueBuilder.NewArray(),
		w.simProfileBuilder.NewArray(),
		w.logProfileBuilder.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecord(w.schema, cols, int64(w.rowCount))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to write record batch")
	}
	w.rowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Close flushes remaining rows and writes the Parquet footer.
func (w *ParquetScoreWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to close parquet writer")
	}

	w.metricBuilder.Release()
	w.caseIDBuilder.Release()
	w.valueBuilder.Release()
	w.simProfileBuilder.Release()
	w.logProfileBuilder.Release()

	w.closed = true
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetScoreWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsWritten
}
