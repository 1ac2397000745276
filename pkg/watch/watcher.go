// Package watch triggers a callback for every event log that appears or
// changes in a directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	tserrors "github.com/logflow/tracesim/pkg/errors"
	"github.com/logflow/tracesim/pkg/parser"
)

// DefaultDebounce is the quiet period before a changed file is handled.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors directories and calls OnChange once a file settles.
type Watcher struct {
	watcher *fsnotify.Watcher
	files   map[string]*fileState
	mu      sync.Mutex

	// Debounce is the quiet period after the last write event.
	Debounce time.Duration

	// Accept filters paths. Defaults to files with a known log format.
	Accept func(path string) bool

	OnChange func(ctx context.Context, path string) error
	OnError  func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
	dirty        bool // changed while processing
}

// NewWatcher creates a new directory watcher.
func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeInvalidConfig, "failed to create watcher")
	}
	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		Debounce: DefaultDebounce,
	}, nil
}

// SupportedLog reports whether path has an extension a parser or the
// DuckDB source can read.
func SupportedLog(path string) bool {
	return parser.DetectFormat(path) != parser.FormatUnknown
}

// WatchDir adds a directory. Files already present are remembered so they
// only trigger once they change.
func (w *Watcher) WatchDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return tserrors.Wrap(err, tserrors.CodeInvalidConfig, "failed to resolve path")
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return tserrors.FileNotFound(absDir)
	}

	w.mu.Lock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		w.files[filepath.Join(absDir, e.Name())] = &fileState{
			lastModified: info.ModTime(),
			size:         info.Size(),
		}
	}
	w.mu.Unlock()

	if err := w.watcher.Add(absDir); err != nil {
		return tserrors.Wrap(err, tserrors.CodeInvalidConfig, "failed to watch directory").
			WithContext("dir", absDir)
	}
	log.Debug().Str("dir", absDir).Int("existing", len(entries)).Msg("watching directory")
	return nil
}

// Run starts the watch loop. Blocks until ctx is canceled. Callback errors
// go to OnError and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	accept := w.Accept
	if accept == nil {
		accept = SupportedLog
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !accept(path) {
				continue
			}

			timerMu.Lock()
			if t, exists := timers[path]; exists {
				t.Stop()
			}
			timers[path] = time.AfterFunc(debounce, func() {
				w.handleChange(ctx, path)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string) {
	for w.process(ctx, path) {
	}
}

// process runs OnChange once for a settled change of path. It reports
// whether the file changed again while OnChange was running.
func (w *Watcher) process(ctx context.Context, path string) bool {
	if ctx.Err() != nil {
		return false
	}

	stat, err := os.Stat(path)
	if err != nil {
		w.reportError(path, err)
		return false
	}
	if stat.IsDir() {
		return false
	}

	w.mu.Lock()
	state, known := w.files[path]
	if !known {
		state = &fileState{}
		w.files[path] = state
	}
	if state.processing {
		state.dirty = true
		w.mu.Unlock()
		return false
	}
	if known && stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		w.mu.Unlock()
		return false
	}
	state.processing = true
	state.dirty = false
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.reportError(path, err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	state.processing = false
	again := state.dirty
	state.dirty = false
	return again
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	log.Error().Err(err).Str("path", path).Msg("watch")
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
