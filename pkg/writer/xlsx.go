package writer

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/measure"
)

// SummarySheet is the first sheet of an XLSX report.
const SummarySheet = "Summary"

var scoreHeader = []interface{}{"case_id", "value", "sim_profile", "log_profile"}

// XLSXReport collects scores into a workbook with one sheet per metric and
// a summary sheet. Nothing is written until Close.
type XLSXReport struct {
	output io.Writer
	file   *excelize.File
	rows   map[string]int
}

// NewXLSXReport starts an empty workbook.
func NewXLSXReport(output io.Writer) (*XLSXReport, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to create workbook")
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &[]interface{}{"metric", "value"}); err != nil {
		f.Close()
		return nil, tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to create workbook")
	}
	return &XLSXReport{output: output, file: f, rows: make(map[string]int)}, nil
}

// Write implements ScoreWriter.
func (r *XLSXReport) Write(ctx context.Context, records []ScoreRecord) error {
	for i := range records {
		if err := ctx.Err(); err != nil {
			return tserrors.Wrap(err, tserrors.CodeContextCanceled, "score export canceled")
		}
		rec := &records[i]
		row, err := r.nextRow(rec.Metric)
		if err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{rec.CaseID, rec.Value, rec.SimProfile, rec.LogProfile}
		if err := r.file.SetSheetRow(rec.Metric, cell, &values); err != nil {
			return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to write score row").
				WithContext("metric", rec.Metric)
		}
	}
	return nil
}

// nextRow creates the metric sheet with its header on first use.
func (r *XLSXReport) nextRow(metric string) (int, error) {
	n, ok := r.rows[metric]
	if !ok {
		if _, err := r.file.NewSheet(metric); err != nil {
			return 0, tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to add sheet").
				WithContext("metric", metric)
		}
		if err := r.file.SetSheetRow(metric, "A1", &scoreHeader); err != nil {
			return 0, tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to write header")
		}
		n = 1
	}
	n++
	r.rows[metric] = n
	return n, nil
}

// SetSummary fills the summary sheet.
func (r *XLSXReport) SetSummary(m measure.Metrics) error {
	rows := [][]interface{}{
		{"jaro_winkler", m.JaroWinkler},
		{"damerau_levenshtein", m.DL},
		{"mae_seconds", m.MAE},
		{"dl_time", m.DLTime},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := r.file.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to write summary")
		}
	}
	return nil
}

// Close writes the workbook to the output.
func (r *XLSXReport) Close() error {
	defer r.file.Close()
	if err := r.file.Write(r.output); err != nil {
		return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to write workbook")
	}
	return nil
}
