// Package watcher reloads a dataset when its files change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/logging"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading.
const DefaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned when Run is called twice on one Watcher.
var ErrAlreadyRunning = errors.New("watcher already running")

// ReloadFunc loads the dataset in dir again.
type ReloadFunc func(ctx context.Context, dir string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logging.OrDefault(l)
	}
}

// WithOnReload sets a callback invoked after every reload attempt with
// its result.
func WithOnReload(fn func(error)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher watches one dataset directory. Only the files a dataset is
// loaded from trigger a reload; bursts of events within the debounce
// window collapse into one reload.
type Watcher struct {
	dir      string
	reload   ReloadFunc
	debounce time.Duration
	logger   *slog.Logger
	onReload func(error)
	files    map[string]bool

	mu      sync.Mutex
	running bool
	reloads int
}

// New creates a watcher for dir.
func New(dir string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	if reload == nil {
		return nil, errors.New("watcher: nil reload func")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      abs,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   logging.OrDefault(nil),
		onReload: func(error) {},
		files:    make(map[string]bool, len(dataset.Files)),
	}
	for _, name := range dataset.Files {
		w.files[name] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Reloads returns how many reloads have been attempted.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Running reports whether Run is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Relevant reports whether an event on path should trigger a reload.
func (w *Watcher) Relevant(path string) bool {
	if filepath.Dir(path) != w.dir {
		return false
	}
	return w.files[filepath.Base(path)]
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error only when the directory cannot be watched.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory rather than the files so atomic renames are seen.
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching dataset", "dir", w.dir, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(filepath.Clean(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("dataset file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.fire(ctx)
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	err := w.reload(ctx, w.dir)
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	if err != nil {
		// The previous dataset stays loaded.
		w.logger.Warn("dataset reload failed", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("dataset reloaded", "dir", w.dir)
	}
	w.onReload(err)
}
