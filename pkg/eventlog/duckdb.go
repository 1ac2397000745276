package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/tracesim/internal/model"
	"github.com/logflow/tracesim/pkg/parser"
)

// DuckDBSource reads Parquet and CSV logs through an in-memory DuckDB.
// Every column is cast to text so rows go through the same column mapping
// and timestamp parsing as the native parsers.
type DuckDBSource struct {
	db *sql.DB
}

// NewDuckDBSource opens an in-memory DuckDB.
func NewDuckDBSource() (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DuckDBSource{db: db}, nil
}

// Close closes the DuckDB connection.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// scanExpr returns the table function reading path.
func scanExpr(path string, format parser.Format, delimiter byte) string {
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if format == parser.FormatParquet {
		return fmt.Sprintf("read_parquet(%s)", quoted)
	}
	delim := strings.ReplaceAll(string(delimiter), "'", "''")
	return fmt.Sprintf("read_csv_auto(%s, header=true, delim='%s', all_varchar=true)", quoted, delim)
}

// ColumnInfo holds column metadata.
type ColumnInfo struct {
	Name string
	Type string
}

// Describe returns the columns of the log at path.
func (s *DuckDBSource) Describe(ctx context.Context, path string, format parser.Format, delimiter byte) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+scanExpr(path, format, delimiter))
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var name, dtype string
		var null, key, dflt, extra interface{}
		if err := rows.Scan(&name, &dtype, &null, &key, &dflt, &extra); err != nil {
			return nil, err
		}
		columns = append(columns, ColumnInfo{Name: name, Type: dtype})
	}
	return columns, rows.Err()
}

// Read streams the rows of the log at path to out.
func (s *DuckDBSource) Read(ctx context.Context, path string, format parser.Format, cfg parser.Config, out chan<- *model.RawEvent) error {
	columns, err := s.Describe(ctx, path, format, cfg.Delimiter)
	if err != nil {
		return err
	}
	header := make([]string, len(columns))
	selects := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
		selects[i] = fmt.Sprintf(`CAST("%s" AS VARCHAR)`, strings.ReplaceAll(c.Name, `"`, `""`))
	}
	cols, err := parser.ResolveColumns(header, cfg)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), scanExpr(path, format, cfg.Delimiter))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("duckdb query failed: %w", err)
	}
	defer rows.Close()

	values := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	fields := make([]string, len(columns))

	rowNum := 1
	for rows.Next() {
		rowNum++
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		for i, v := range values {
			fields[i] = v.String
		}
		event, err := cols.Event(fields, rowNum)
		if err != nil {
			return err
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return parser.ErrContextCanceled
		}
	}
	return rows.Err()
}

// spool copies a non-local log to a temp file DuckDB can scan. The
// returned function removes the file.
func spool(ctx context.Context, path string, remote ObjectOpener) (string, func(), error) {
	r, cleanup, err := Open(ctx, path, remote)
	if err != nil {
		return "", nil, err
	}
	defer cleanup()

	ext := filepath.Ext(strings.TrimSuffix(strings.ToLower(path), ".gz"))
	tmpFile, err := os.CreateTemp("", "tracesim-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	remove := func() { os.Remove(tmpFile.Name()) }

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		remove()
		return "", nil, fmt.Errorf("failed to spool %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		remove()
		return "", nil, err
	}
	return tmpFile.Name(), remove, nil
}
