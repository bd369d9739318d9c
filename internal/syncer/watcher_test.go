package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebounce(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root)
	w.SetSettleTimeout(20 * time.Millisecond)

	for range 10 {
		w.observe(filepath.Join(root, "index.html"))
	}

	select {
	case <-w.Triggers():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for trigger")
	}

	select {
	case <-w.Triggers():
		assert.Fail(t, "a burst should fire once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherFilter(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root)
	w.SetSettleTimeout(10 * time.Millisecond)
	w.FilterPaths(func(rel string) bool { return rel == "/scratch.tmp" })

	w.observe(filepath.Join(root, "scratch.tmp"))

	select {
	case <-w.Triggers():
		assert.Fail(t, "filtered path must not trigger")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherFileEvents(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	w := NewWatcher(root)
	w.SetSettleTimeout(20 * time.Millisecond)
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	select {
	case <-w.Triggers():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for trigger")
	}
}

func TestDriverWatch(t *testing.T) {
	h := newHarness(t)
	root, err := filepath.EvalSymlinks(h.root)
	require.NoError(t, err)
	h.root = root
	h.write(t, "a.txt", []byte("alpha"))

	d := h.driver(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passes := make(chan *Result, 4)
	done := make(chan error, 1)
	go func() {
		done <- d.Watch(ctx, func(r *Result, err error) {
			if err == nil {
				passes <- r
			}
		})
	}()

	select {
	case r := <-passes:
		assert.Equal(t, []string{"/a.txt"}, r.SucceededPaths)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timeout waiting for first pass")
	}

	h.write(t, "b.txt", []byte("bravo"))
	select {
	case r := <-passes:
		assert.Contains(t, r.SucceededPaths, "/b.txt")
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timeout waiting for rerun")
	}

	cancel()
	assert.NoError(t, <-done)
}
