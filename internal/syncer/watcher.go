package syncer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/chunksync/internal/utils"
	"github.com/rjeczalik/notify"
)

const (
	defaultSettleTimeout = 500 * time.Millisecond
	watchEventBufferSize = 64
)

// FilterCallback returns true for a relative path whose changes should not
// trigger a pass.
type FilterCallback func(relPath string) bool

// Watcher turns bursts of changes under a directory into single triggers.
// A trigger fires once the tree has been quiet for the settle timeout.
type Watcher struct {
	root      string
	rawEvents chan notify.EventInfo
	triggers  chan struct{}
	filter    FilterCallback
	settle    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending []string

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWatcher(root string) *Watcher {
	return &Watcher{
		root:     root,
		triggers: make(chan struct{}, 1),
		settle:   defaultSettleTimeout,
		done:     make(chan struct{}),
	}
}

func (w *Watcher) SetSettleTimeout(timeout time.Duration) {
	w.settle = timeout
}

func (w *Watcher) FilterPaths(callback FilterCallback) {
	w.filter = callback
}

func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.root)

	w.rawEvents = make(chan notify.EventInfo, watchEventBufferSize)
	if err := notify.Watch(w.root+"/...", w.rawEvents, notify.All); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	slog.Info("watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.observe(event.Path())
		}
	}
}

// observe records a change at an absolute path and restarts the settle timer.
func (w *Watcher) observe(absPath string) {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return
	}
	rel = utils.NormPath(rel)
	if w.filter != nil && w.filter(rel) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, rel)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	changed := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	slog.Debug("watcher trigger", "changes", len(changed))

	// a queued trigger already covers these changes
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}

// Watch runs a pass, then another one after every settled burst of changes
// under the build folder, until ctx is done. onPass sees every outcome.
func (d *Driver) Watch(ctx context.Context, onPass func(*Result, error)) error {
	root, err := utils.ResolvePath(d.opts.BuildFolder)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	w := NewWatcher(root)
	w.FilterPaths(d.ignore.ShouldIgnore)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	onPass(d.Run(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Triggers():
			onPass(d.Run(ctx))
		}
	}
}
