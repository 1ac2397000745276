package parser

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/tracesim/internal/model"
)

// XLSXParser parses the first sheet of an Excel workbook.
type XLSXParser struct {
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg}
}

// Parse reads the first sheet and sends parsed events to out. Workbooks
// need random access, so non-file readers are buffered in memory.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.RawEvent) error {
	var (
		xlFile *excelize.File
		err    error
	)
	if f, ok := r.(*os.File); ok {
		xlFile, err = excelize.OpenFile(f.Name())
	} else {
		xlFile, err = excelize.OpenReader(r)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidXLSX, err)
	}
	defer xlFile.Close()

	sheets := xlFile.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("%w: no sheets", ErrInvalidXLSX)
	}

	rows, err := xlFile.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidXLSX, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return fmt.Errorf("%w: sheet %q is empty", ErrInvalidXLSX, sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidXLSX, err)
	}
	cols, err := ResolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	rowNum := 1
	for rows.Next() {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		rowNum++
		// Raw values turn date cells into serial numbers instead of
		// locale-formatted strings.
		fields, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrInvalidXLSX, rowNum, err)
		}
		if blank(fields) {
			continue
		}

		event, err := cols.Event(fields, rowNum)
		if err != nil {
			return err
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return ErrContextCanceled
		}
	}

	return rows.Error()
}

func blank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
