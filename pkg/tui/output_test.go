package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/resultstore"
	"github.com/logflow/tracesim/pkg/runner"
)

func TestPrintMeasure(t *testing.T) {
	var buf bytes.Buffer
	PrintMeasure(&buf, &MeasureReport{
		RealPath: "real.csv",
		SimPath:  "sim.csv",
		Metrics:  measure.Metrics{JaroWinkler: 0.95, DL: 0.875, MAE: 90, DLTime: 0.5},
		Traces:   12,
		Duration: 250 * time.Millisecond,
	})
	out := buf.String()
	for _, want := range []string{"real.csv", "sim.csv", "0.9500", "0.8750", "0.5000", "1m30s", "250ms"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintBatch(t *testing.T) {
	results := []*resultstore.RunResult{
		{Run: 1, SimPath: "a.csv", JWMean: 0.8, DLMean: 0.7, MAE: 10, DLTime: 0.6},
		{Run: 2, SimPath: "b.csv", JWMean: 0.6, DLMean: 0.5, MAE: 20, DLTime: 0.4},
	}
	var buf bytes.Buffer
	PrintBatch(&buf, "batch-1", results, runner.Summarize(results))
	out := buf.String()
	for _, want := range []string{"batch-1", "a.csv", "b.csv", "0.7000", "15.0s"} {
		assert.Contains(t, out, want)
	}
}

func TestShowProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := ShowProgress(&buf, 3, "runs")
	for i := 0; i < 3; i++ {
		require.NoError(t, bar.Add(1))
	}
	assert.True(t, bar.IsFinished())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "12.0s", formatSeconds(12))
	assert.Equal(t, "1m30s", formatSeconds(90))
}
