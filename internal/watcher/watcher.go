// Package watcher provides debounced filesystem watching for template
// directories. Bursts of events from editors and build tools collapse
// into a single handler call.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one observed file change.
type Event struct {
	Path string
	Op   string
}

// Handler receives a debounced batch of events.
type Handler func(events []Event)

// Watcher watches directories recursively and delivers debounced change
// batches to its handlers.
type Watcher struct {
	fs     *fsnotify.Watcher
	delay  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	handlers []Handler
	exts     []string
	pending  []Event
	timer    *time.Timer
}

// New creates a watcher that waits delay after the last event before
// delivering a batch.
func New(delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fs: fs, delay: delay, logger: logger}, nil
}

// FilterExtensions restricts events to paths with one of the given
// extensions. Without a filter every change is reported.
func (w *Watcher) FilterExtensions(exts ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exts = append(w.exts, exts...)
}

// OnChange registers a handler for debounced batches.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// AddRecursive watches root and every directory below it.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if base := filepath.Base(path); strings.HasPrefix(base, ".") && path != root && base != "." {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		return nil
	})
}

// Start runs the event loop until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops the watcher. Pending batches are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("watcher error", "err", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// Newly created directories need watches of their own.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.AddRecursive(event.Name); err != nil && w.logger != nil {
				w.logger.Error("watching new directory", "path", event.Name, "err", err)
			}
			return
		}
	}

	if !w.wantPath(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, Event{Path: event.Name, Op: event.Op.String()})
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.flush)
	} else {
		w.timer.Reset(w.delay)
	}
}

func (w *Watcher) wantPath(path string) bool {
	w.mu.Lock()
	exts := w.exts
	w.mu.Unlock()
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func (w *Watcher) flush() {
	w.mu.Lock()
	events := w.pending
	w.pending = nil
	w.timer = nil
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	for _, h := range handlers {
		h(events)
	}
}
