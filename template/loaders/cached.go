package loaders

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/tango/template"
)

// Cached compiles templates through an engine once and serves the
// compiled form on later requests. Compiled templates are immutable and
// concurrency-safe, so one cached entry can render on any number of
// goroutines. With Watch running, any filesystem change under the
// watched directories flushes the cache, so edits show up on the next
// request without a restart.
type Cached struct {
	engine *template.Engine
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*template.Template

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

// CachedOption configures a Cached.
type CachedOption func(*Cached)

// WithCacheLogger routes watcher errors and flush events to logger.
func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) { c.logger = logger }
}

// NewCached wraps engine with a compiled-template cache. The engine
// must have a loader installed; Get fails otherwise, exactly as
// Engine.FromFile would.
func NewCached(engine *template.Engine, opts ...CachedOption) *Cached {
	c := &Cached{
		engine:    engine,
		templates: make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the compiled template for name, loading and compiling it
// on first use. Load and compile errors are not cached: a template that
// failed to compile is retried on the next Get, so fixing the file is
// enough to recover.
func (c *Cached) Get(name string) (*template.Template, error) {
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := c.engine.FromFile(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.templates[name]; ok {
		t = cached
	} else {
		c.templates[name] = t
	}
	c.mu.Unlock()
	return t, nil
}

// Invalidate drops the cached entry for name, if any.
func (c *Cached) Invalidate(name string) {
	c.mu.Lock()
	delete(c.templates, name)
	c.mu.Unlock()
}

// Flush drops every cached entry.
func (c *Cached) Flush() {
	c.mu.Lock()
	c.templates = make(map[string]*template.Template)
	c.mu.Unlock()
}

// Len reports the number of cached templates.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// Watch flushes the cache whenever anything under dirs changes. Each
// directory is watched recursively as it exists at call time. The
// watcher runs until ctx is cancelled or Close is called. A change
// flushes the whole cache rather than single entries: compiled
// templates are cheap to rebuild and a full flush stays correct across
// renames and editor swap-file dances.
func (c *Cached) Watch(ctx context.Context, dirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := addRecursive(watcher, dir); err != nil {
			watcher.Close()
			return err
		}
	}

	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		watcher.Close()
		return fmt.Errorf("cache is already watching")
	}
	c.watcher = watcher
	c.mu.Unlock()

	go c.watchLoop(ctx, watcher)
	return nil
}

// Close stops the watcher started by Watch. It is safe to call on a
// cache that never watched.
func (c *Cached) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.RLock()
		watcher := c.watcher
		c.mu.RUnlock()
		if watcher != nil {
			err = watcher.Close()
		}
	})
	return err
}

func (c *Cached) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			watcher.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if c.logger != nil {
				c.logger.Error("template watcher error", "err", err)
			}
		}
	}
}

func (c *Cached) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New directories need their own watch to keep coverage recursive.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addRecursive(watcher, event.Name); err != nil && c.logger != nil {
				c.logger.Error("watching new directory", "path", event.Name, "err", err)
			}
		}
	}

	if c.logger != nil {
		c.logger.Debug("template change, flushing cache", "path", event.Name, "op", event.Op.String())
	}
	c.Flush()
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
