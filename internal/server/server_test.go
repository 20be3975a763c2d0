package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/internal/watcher"
	"github.com/conneroisu/tango/template"
	"github.com/conneroisu/tango/template/loaders"
)

func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(src), 0o644))
	return full
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	engine := template.New(
		template.WithDebug(cfg.Debug),
		template.WithLoader(loaders.NewFilesystem(cfg.Dirs...)),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, engine, logger)
	require.NoError(t, err)
	return s
}

func testConfig(dirs ...string) *config.Config {
	return &config.Config{
		Charset:    "utf-8",
		Dirs:       dirs,
		Extensions: []string{".html", ".txt"},
		Server:     config.ServerConfig{Host: "localhost", Port: 8080},
	}
}

func TestHandleIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.html", "A")
	writeFile(t, dir, "notes.txt", "N")
	writeFile(t, dir, filepath.Join("sub", "nested.html"), "S")
	writeFile(t, dir, "style.css", "ignored")
	writeFile(t, dir, filepath.Join(".hidden", "secret.html"), "H")

	s := newTestServer(t, testConfig(dir))
	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/view/a.html">`)
	assert.Contains(t, body, "notes.txt")
	assert.Contains(t, body, "sub/nested.html")
	assert.NotContains(t, body, "style.css")
	assert.NotContains(t, body, "secret.html")
	assert.Contains(t, body, "new WebSocket")
}

func TestHandleIndexNotRoot(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))
	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIndexEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, testConfig(dir))
	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No templates found under "+dir)
}

func TestHandleView(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greet.html", "Hello {{ name }}!")

	s := newTestServer(t, testConfig(dir))
	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/greet.html?name=World", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello World!")
	assert.Contains(t, rec.Body.String(), "new WebSocket")
}

func TestHandleViewNoReloadSkipsScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.html", "just text")

	cfg := testConfig(dir)
	cfg.Server.NoReload = true
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/plain.html", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "just text", rec.Body.String())
}

func TestHandleViewMissingTemplate(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))
	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/nope.html", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleViewEmptyName(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))
	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleViewCompileError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.html", "{% bogus %}")

	s := newTestServer(t, testConfig(dir))
	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/broken.html", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Debug is off, so the page shows a generic message.
	assert.Contains(t, rec.Body.String(), "Failed to render broken.html")
	assert.Contains(t, rec.Body.String(), "template error")
	assert.NotContains(t, rec.Body.String(), "bogus")
}

func TestHandleViewErrorDetailWithDebug(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.html", "{% bogus %}")

	cfg := testConfig(dir)
	cfg.Debug = true
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	s.handleView(rec, httptest.NewRequest(http.MethodGet, "/view/broken.html", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid block tag on line 1: 'bogus'")
	assert.Contains(t, rec.Body.String(), "> 1 | {% bogus %}")
}

func TestHandleHealth(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, testConfig(dir))

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(0), payload["cached"])
	assert.Equal(t, true, payload["reload"])
	assert.Equal(t, []any{dir}, payload["dirs"])
	assert.NotEmpty(t, payload["version"])
}

func TestContextFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/view/x?title=Hi&item=a&item=b", nil)
	values := contextFromQuery(r)

	assert.Equal(t, "Hi", values["title"])
	assert.Equal(t, []any{"a", "b"}, values["item"])
}

func TestDiscoverTemplatesDeduplicates(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, first, "same.html", "1")
	writeFile(t, second, "same.html", "2")
	writeFile(t, second, "extra.html", "e")

	s := newTestServer(t, testConfig(first, second))
	entries := s.discoverTemplates()

	require.Len(t, entries, 2)
	assert.Equal(t, "extra.html", entries[0].name)
	assert.Equal(t, "same.html", entries[1].name)
	assert.Equal(t, first, entries[1].dir)
}

func TestInjectReloadScript(t *testing.T) {
	withBody := injectReloadScript("<html><body>x</body></html>")
	assert.True(t, strings.Contains(withBody, reloadScript+"</body>"), "script should sit before </body>")

	upper := injectReloadScript("<BODY>x</BODY>")
	assert.Contains(t, upper, reloadScript)

	bare := injectReloadScript("no body tag")
	assert.Equal(t, "no body tag"+reloadScript, bare)
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))

	testCases := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"missing", "", false},
		{"configured host", "http://localhost:8080", true},
		{"loopback", "http://127.0.0.1:8080", true},
		{"https", "https://localhost:8080", true},
		{"wrong port", "http://localhost:9999", false},
		{"other host", "http://evil.example:8080", false},
		{"bad scheme", "file://localhost:8080", false},
		{"garbage", "://", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.allowed, s.checkOrigin(r))
		})
	}
}

func TestHandleFileChangeFlushesCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "x")
	s := newTestServer(t, testConfig(dir))

	_, err := s.cache.Get("page.html")
	require.NoError(t, err)
	require.Equal(t, 1, s.cache.Len())

	s.handleFileChange([]watcher.Event{{Path: filepath.Join(dir, "page.html"), Op: "WRITE"}})
	assert.Equal(t, 0, s.cache.Len())
}

func TestWebSocketReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, testConfig(dir))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go s.runHub(ctx)

	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer ts.Close()

	// Align the origin allowlist with the test server's address.
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	s.cfg.Server.Host = u.Hostname()
	s.cfg.Server.Port, err = strconv.Atoi(u.Port())
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		return len(s.clients) == 1
	}, 5*time.Second, 10*time.Millisecond)

	s.broadcast <- []byte(`{"type":"full_reload"}`)

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, msgType)

	var message map[string]any
	require.NoError(t, json.Unmarshal(data, &message))
	assert.Equal(t, "full_reload", message["type"])
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.example:8080")
	s.handleWebSocket(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBroadcastReloadDoesNotBlock(t *testing.T) {
	s := newTestServer(t, testConfig(t.TempDir()))

	done := make(chan struct{})
	go func() {
		s.broadcastReload()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcastReload blocked with no hub running")
	}
}
