package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, onChange func(context.Context, string) error, onError func(string, error)) {
	t.Helper()
	w, err := NewWatcher()
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond
	w.OnChange = onChange
	w.OnError = onError
	require.NoError(t, w.WatchDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestSupportedLog(t *testing.T) {
	assert.True(t, SupportedLog("sim.csv"))
	assert.True(t, SupportedLog("sim.xes.gz"))
	assert.True(t, SupportedLog("sim.parquet"))
	assert.False(t, SupportedLog("notes.txt"))
	assert.False(t, SupportedLog("sim.csv.tmp"))
}

func TestWatcher_TriggersOnNewLog(t *testing.T) {
	dir := t.TempDir()
	seen := make(chan string, 10)
	startWatcher(t, dir, func(_ context.Context, path string) error {
		seen <- path
		return nil
	}, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sim-1.csv"), []byte("caseid,task\n"), 0644))

	select {
	case path := <-seen:
		assert.Equal(t, "sim-1.csv", filepath.Base(path))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_ErrorsDoNotStopLoop(t *testing.T) {
	dir := t.TempDir()
	seen := make(chan string, 10)
	errs := make(chan error, 10)
	startWatcher(t, dir, func(_ context.Context, path string) error {
		seen <- filepath.Base(path)
		if filepath.Base(path) == "bad.csv" {
			return errors.New("unreadable")
		}
		return nil
	}, func(_ string, err error) {
		errs <- err
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("x"), 0644))
	select {
	case err := <-errs:
		assert.EqualError(t, err, "unreadable")
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.csv"), []byte("x"), 0644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case name := <-seen:
			if name == "good.csv" {
				return
			}
		case <-deadline:
			t.Fatal("watcher stopped after an error")
		}
	}
}

func TestWatcher_RemeasuresWriteDuringProcessing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim-1.csv")
	sizes := make(chan int, 10)
	release := make(chan struct{})
	first := true
	startWatcher(t, dir, func(_ context.Context, p string) error {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		sizes <- len(data)
		if first {
			first = false
			<-release
		}
		return nil
	}, nil)

	require.NoError(t, os.WriteFile(path, []byte("caseid,task\n"), 0644))
	select {
	case n := <-sizes:
		assert.Equal(t, len("caseid,task\n"), n)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	// the file grows while the first measurement is still running
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("1,A\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	time.Sleep(300 * time.Millisecond)
	close(release)

	select {
	case n := <-sizes:
		assert.Equal(t, len("caseid,task\n1,A\n"), n)
	case <-time.After(5 * time.Second):
		t.Fatal("change made during processing was dropped")
	}
}

func TestWatchDir_Missing(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	assert.Error(t, w.WatchDir(filepath.Join(t.TempDir(), "missing")))
}
