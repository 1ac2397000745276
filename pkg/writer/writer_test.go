package writer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/matcher"
	"github.com/logflow/tracesim/pkg/measure"
)

func sampleResult() *measure.Result {
	return &measure.Result{
		JW: []matcher.Score{{CaseID: "s1", Value: 1}, {CaseID: "s2", Value: 0.9}},
		DL: []matcher.Score{
			{CaseID: "s1", Value: 1, SimProfile: "ab", LogProfile: "ab"},
			{CaseID: "s2", Value: 0.5, SimProfile: "ab", LogProfile: "ba"},
		},
		MAE:       []matcher.Score{{CaseID: "s1", Value: 3}, {CaseID: "s2", Value: 5}},
		DLTime:    0.7,
		SimTraces: 2,
	}
}

func TestRecords(t *testing.T) {
	recs := Records(sampleResult())
	require.Len(t, recs, 6)
	assert.Equal(t, ScoreRecord{Metric: MetricJaroWinkler, CaseID: "s1", Value: 1}, recs[0])
	assert.Equal(t, ScoreRecord{Metric: MetricDL, CaseID: "s2", Value: 0.5, SimProfile: "ab", LogProfile: "ba"}, recs[3])
	assert.Equal(t, MetricMAE, recs[5].Metric)
}

func TestParquetScoreWriter_RoundTrip(t *testing.T) {
	for _, codec := range []CompressionType{CompressionNone, CompressionSnappy, CompressionZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewParquetScoreWriter(&buf, Config{BatchSize: 4, Compression: codec})
			require.NoError(t, err)
			require.NoError(t, w.Write(context.Background(), Records(sampleResult())))
			require.NoError(t, w.Close())
			assert.Equal(t, int64(6), w.RowsWritten())

			mem := memory.NewGoAllocator()
			tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
				parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
			require.NoError(t, err)
			defer tbl.Release()

			assert.Equal(t, int64(6), tbl.NumRows())
			require.Equal(t, int64(5), tbl.NumCols())
			assert.Equal(t, "metric", tbl.Schema().Field(0).Name)
			assert.Equal(t, "log_profile", tbl.Schema().Field(4).Name)

			var values []float64
			for _, chunk := range tbl.Column(2).Data().Chunks() {
				values = append(values, chunk.(*array.Float64).Float64Values()...)
			}
			assert.Equal(t, []float64{1, 0.9, 1, 0.5, 3, 5}, values)

			var nulls int
			for _, chunk := range tbl.Column(3).Data().Chunks() {
				nulls += chunk.NullN()
			}
			assert.Equal(t, 4, nulls)
		})
	}
}

func TestParquetScoreWriter_CloseTwice(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewParquetScoreWriter(&buf, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestXLSXReport(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewXLSXReport(&buf)
	require.NoError(t, err)
	require.NoError(t, r.SetSummary(measure.Metrics{JaroWinkler: 0.95, DL: 0.75, MAE: 4, DLTime: 0.7}))
	require.NoError(t, r.Write(context.Background(), Records(sampleResult())))
	require.NoError(t, r.Close())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, "jw", "dl", "mae"}, f.GetSheetList())

	rows, err := f.GetRows("dl")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"case_id", "value", "sim_profile", "log_profile"}, rows[0])
	assert.Equal(t, []string{"s2", "0.5", "ab", "ba"}, rows[2])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 5)
	assert.Equal(t, []string{"dl_time", "0.7"}, summary[4])
}

type memUploader struct {
	uri         string
	contentType string
	body        []byte
}

func (m *memUploader) Upload(_ context.Context, uri string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.uri, m.contentType, m.body = uri, contentType, data
	return nil
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "scores.parquet")
	require.NoError(t, Export(ctx, path, sampleResult(), DefaultConfig(), nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))

	path = filepath.Join(dir, "scores.xlsx")
	require.NoError(t, Export(ctx, path, sampleResult(), DefaultConfig(), nil))
	assert.FileExists(t, path)

	up := &memUploader{}
	require.NoError(t, Export(ctx, "s3://bucket/out/scores.xlsx", sampleResult(), DefaultConfig(), up))
	assert.Equal(t, "s3://bucket/out/scores.xlsx", up.uri)
	assert.Equal(t, contentTypeXLSX, up.contentType)
	assert.Equal(t, "PK", string(up.body[:2]))

	err = Export(ctx, "s3://bucket/scores.parquet", sampleResult(), DefaultConfig(), nil)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidConfig))

	err = Export(ctx, filepath.Join(dir, "scores.csv"), sampleResult(), DefaultConfig(), nil)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidConfig))
}

func TestParseCompression(t *testing.T) {
	for _, c := range []CompressionType{CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd, CompressionLZ4} {
		assert.Equal(t, c, ParseCompression(c.String()))
	}
	assert.Equal(t, CompressionNone, ParseCompression("brotli"))
}
