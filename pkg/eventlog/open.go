// Package eventlog loads event logs from local files, stdin or S3 into raw
// events ready for measurement.
package eventlog

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/storage/s3"
)

// Stdin is the path that reads the log from standard input.
const Stdin = "-"

// ObjectOpener opens remote objects by URI.
type ObjectOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Open opens path, automatically decompressing if it's gzip-compressed.
// Returns the reader, a cleanup function (to close resources), and any error.
// The caller must call the cleanup function when done reading. remote may
// be nil when no s3:// paths are used.
func Open(ctx context.Context, path string, remote ObjectOpener) (io.Reader, func() error, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case path == Stdin:
		rc = io.NopCloser(os.Stdin)
	case s3.IsURI(path):
		if remote == nil {
			return nil, nil, tserrors.New(tserrors.CodeInvalidConfig, "s3 path given but no s3 client configured").
				WithContext("path", path)
		}
		if rc, err = remote.Open(ctx, path); err != nil {
			return nil, nil, tserrors.Wrap(err, tserrors.CodeFileNotFound, "cannot open object").
				WithContext("path", path)
		}
	default:
		f, ferr := os.Open(path)
		if ferr != nil {
			if errors.Is(ferr, os.ErrNotExist) {
				return nil, nil, tserrors.FileNotFound(path)
			}
			return nil, nil, tserrors.Wrap(ferr, tserrors.CodeFileNotFound, "cannot open file").
				WithContext("path", path)
		}
		rc = f
	}

	if !IsGzipFile(path) {
		return rc, rc.Close, nil
	}

	gzReader, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, tserrors.Wrap(err, tserrors.CodeInvalidFormat, "invalid gzip stream").
			WithContext("path", path)
	}
	cleanup := func() error {
		gzReader.Close()
		return rc.Close()
	}
	return gzReader, cleanup, nil
}

// IsGzipFile returns true if the file path indicates gzip compression.
func IsGzipFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}
