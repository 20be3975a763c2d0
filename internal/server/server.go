// Package server implements the development preview server: an index of
// discovered templates, a per-template render endpoint taking context
// values from the query string, and websocket-driven live reload wired
// to the filesystem watcher.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/internal/version"
	"github.com/conneroisu/tango/internal/watcher"
	"github.com/conneroisu/tango/template"
	"github.com/conneroisu/tango/template/loaders"
)

// Server is the preview server. It renders templates through a shared
// compiled-template cache and pushes reload messages to connected
// browsers when files under the template directories change.
type Server struct {
	cfg    *config.Config
	engine *template.Engine
	cache  *loaders.Cached
	logger *slog.Logger

	index *template.Template

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	serverMu   sync.Mutex
	httpServer *http.Server
}

// New builds a preview server over an engine that already has its
// loader installed.
func New(cfg *config.Config, engine *template.Engine, logger *slog.Logger) (*Server, error) {
	index, err := engine.FromString(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("compiling index template: %w", err)
	}

	return &Server{
		cfg:        cfg,
		engine:     engine,
		cache:      loaders.NewCached(engine, loaders.WithCacheLogger(logger)),
		logger:     logger,
		index:      index,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
	}, nil
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cache.Watch(ctx, s.cfg.Dirs...); err != nil {
		return fmt.Errorf("watching template dirs: %w", err)
	}
	defer s.cache.Close()

	if !s.cfg.Server.NoReload {
		fileWatcher, err := watcher.New(s.cfg.Server.Debounce, s.logger)
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer fileWatcher.Close()

		fileWatcher.FilterExtensions(s.cfg.Extensions...)
		fileWatcher.OnChange(s.handleFileChange)
		for _, dir := range s.cfg.Dirs {
			if err := fileWatcher.AddRecursive(dir); err != nil {
				s.logger.Warn("watching directory", "dir", dir, "err", err)
			}
		}
		fileWatcher.Start(ctx)
	}

	go s.runHub(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/view/", s.handleView)
	mux.HandleFunc("/", s.handleIndex)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.serverMu.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.logRequests(mux),
	}
	httpServer := s.httpServer
	s.serverMu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "err", err)
		}
	}()

	s.logger.Info("preview server listening", "addr", "http://"+addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleFileChange(events []watcher.Event) {
	s.cache.Flush()
	for _, event := range events {
		s.logger.Info("template changed", "path", event.Path, "op", event.Op)
	}
	s.broadcastReload()
}

func (s *Server) broadcastReload() {
	message, err := json.Marshal(map[string]any{
		"type":      "full_reload",
		"timestamp": time.Now(),
	})
	if err != nil {
		message = []byte(`{"type":"full_reload"}`)
	}
	select {
	case s.broadcast <- message:
	default:
	}
}

// templateEntry is one discovered template file for the index page.
type templateEntry struct {
	name string
	dir  string
}

func (s *Server) discoverTemplates() []templateEntry {
	seen := make(map[string]bool)
	var entries []templateEntry
	for _, dir := range s.cfg.Dirs {
		root := dir
		filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if base := filepath.Base(path); strings.HasPrefix(base, ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.wantExtension(path) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				entries = append(entries, templateEntry{name: rel, dir: dir})
			}
			return nil
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

func (s *Server) wantExtension(path string) bool {
	if len(s.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range s.cfg.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	entries := s.discoverTemplates()
	templates := make([]any, 0, len(entries))
	for _, entry := range entries {
		templates = append(templates, map[string]any{
			"name": entry.name,
			"dir":  entry.dir,
		})
	}

	c := template.NewContext(map[string]any{
		"templates": templates,
		"dirs":      s.cfg.Dirs,
		"version":   version.Short(),
	})
	out, err := s.index.Render(c)
	if err != nil {
		s.renderError(w, "index", err)
		return
	}
	s.writeHTML(w, out)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/view/")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	t, err := s.cache.Get(name)
	if err != nil {
		var notFound *template.TemplateDoesNotExist
		if errors.As(err, &notFound) {
			http.NotFound(w, r)
			return
		}
		s.renderError(w, name, err)
		return
	}

	c := template.NewContext(contextFromQuery(r))
	out, err := t.Render(c)
	if err != nil {
		s.renderError(w, name, err)
		return
	}
	s.writeHTML(w, out)
}

// contextFromQuery turns query parameters into context values. Repeated
// parameters become a list so {% for %} can walk them.
func contextFromQuery(r *http.Request) map[string]any {
	values := make(map[string]any)
	for key, list := range r.URL.Query() {
		if len(list) == 1 {
			values[key] = list[0]
		} else {
			items := make([]any, len(list))
			for i, v := range list {
				items[i] = v
			}
			values[key] = items
		}
	}
	return values
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": version.Short(),
		"cached":  s.cache.Len(),
		"dirs":    s.cfg.Dirs,
		"reload":  !s.cfg.Server.NoReload,
	})
}

func (s *Server) writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset="+s.engine.Charset())
	if !s.cfg.Server.NoReload {
		body = injectReloadScript(body)
	}
	fmt.Fprint(w, body)
}

func (s *Server) renderError(w http.ResponseWriter, name string, err error) {
	s.logger.Error("render failed", "template", name, "err", err)
	w.Header().Set("Content-Type", "text/html; charset="+s.engine.Charset())
	w.WriteHeader(http.StatusInternalServerError)

	message := "template error"
	if s.cfg.Debug {
		message = err.Error()
		var serr *template.SyntaxError
		if errors.As(err, &serr) && serr.Info != nil {
			message += "\n\n" + formatExcerpt(serr.Info)
		}
	}
	fmt.Fprintf(w, errorPage, name, message)
}

// formatExcerpt renders the source region around a compile error as a
// numbered excerpt with the failing line marked.
func formatExcerpt(info *template.ExceptionInfo) string {
	var b strings.Builder
	line := info.Line - len(info.Before)
	for _, l := range info.Before {
		fmt.Fprintf(&b, "  %d | %s\n", line, l)
		line++
	}
	fmt.Fprintf(&b, "> %d | %s\n", line, info.During)
	line++
	for _, l := range info.After {
		fmt.Fprintf(&b, "  %d | %s\n", line, l)
		line++
	}
	return b.String()
}

// injectReloadScript places the live-reload client before </body>, or
// appends it when the document has no closing body tag.
func injectReloadScript(body string) string {
	if idx := strings.LastIndex(strings.ToLower(body), "</body>"); idx >= 0 {
		return body[:idx] + reloadScript + body[idx:]
	}
	return body + reloadScript
}
