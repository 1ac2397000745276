package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

const resultExt = ".json"

// FileStore keeps one JSON document per run under dir/<batch>/.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, tserrors.New(tserrors.CodeInvalidConfig, "file result store needs a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to create result directory").
			WithContext("dir", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(batchID string, run int) string {
	return filepath.Join(s.dir, sanitizeKey(batchID), fmt.Sprintf("run-%05d%s", run, resultExt))
}

// Save writes the result through a temp file and rename, so readers never
// see a partial document.
func (s *FileStore) Save(_ context.Context, r *RunResult) error {
	path := s.path(r.BatchID, r.Run)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to create batch directory")
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to marshal run result")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to write run result").
			WithContext("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to commit run result").
			WithContext("path", path)
	}
	return nil
}

// Load reads one run result.
func (s *FileStore) Load(_ context.Context, batchID string, run int) (*RunResult, error) {
	return readResult(s.path(batchID, run))
}

func readResult(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to read run result")
	}
	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "corrupt run result").
			WithContext("path", path)
	}
	return &r, nil
}

// List returns the results of a batch ordered by run number.
func (s *FileStore) List(_ context.Context, batchID string) ([]*RunResult, error) {
	dir := filepath.Join(s.dir, sanitizeKey(batchID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to list batch")
	}

	var results []*RunResult
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != resultExt {
			continue
		}
		r, err := readResult(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	sortByRun(results)
	return results, nil
}

// Batches returns the batch directories.
func (s *FileStore) Batches(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to list batches")
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func sortByRun(results []*RunResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Run < results[j].Run })
}

// sanitizeKey removes characters that may cause issues in keys and file
// names.
func sanitizeKey(s string) string {
	return strings.NewReplacer("/", "_", `\`, "_", ":", "_", " ", "_").Replace(s)
}
