package writer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/measure"
	"github.com/logflow/tracesim/pkg/storage/s3"
)

// Uploader stores a finished export under an s3:// URI.
type Uploader interface {
	Upload(ctx context.Context, uri string, body io.Reader, contentType string) error
}

const (
	contentTypeParquet = "application/vnd.apache.parquet"
	contentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Export writes every score of res to path. The format follows the
// extension (.parquet or .xlsx). s3:// paths are built in memory and handed
// to up.
func Export(ctx context.Context, path string, res *measure.Result, cfg Config, up Uploader) error {
	ext := strings.ToLower(filepath.Ext(path))
	var contentType string
	switch ext {
	case ".parquet":
		contentType = contentTypeParquet
	case ".xlsx":
		contentType = contentTypeXLSX
	default:
		return tserrors.New(tserrors.CodeInvalidConfig, "score export path must end in .parquet or .xlsx").
			WithContext("path", path)
	}

	if s3.IsURI(path) {
		if up == nil {
			return tserrors.New(tserrors.CodeInvalidConfig, "s3 export requires an s3 client").
				WithContext("path", path)
		}
		var buf bytes.Buffer
		if err := writeScores(ctx, &buf, ext, res, cfg); err != nil {
			return err
		}
		if err := up.Upload(ctx, path, &buf, contentType); err != nil {
			return err
		}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to create score file").
				WithContext("path", path)
		}
		if err := writeScores(ctx, f, ext, res, cfg); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return tserrors.Wrap(err, tserrors.CodeWriteFailed, "failed to close score file")
		}
	}

	log.Info().Str("path", path).Int("scores", len(res.JW)+len(res.DL)+len(res.MAE)).Msg("scores exported")
	return nil
}

func writeScores(ctx context.Context, w io.Writer, ext string, res *measure.Result, cfg Config) error {
	var sw ScoreWriter
	switch ext {
	case ".parquet":
		pw, err := NewParquetScoreWriter(w, cfg)
		if err != nil {
			return err
		}
		sw = pw
	default:
		xr, err := NewXLSXReport(w)
		if err != nil {
			return err
		}
		if err := xr.SetSummary(res.Summary()); err != nil {
			xr.Close()
			return err
		}
		sw = xr
	}

	if err := sw.Write(ctx, Records(res)); err != nil {
		sw.Close()
		return err
	}
	return sw.Close()
}
