package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, delay time.Duration) *Watcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(delay, logger)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func collectBatches(w *Watcher) chan []Event {
	batches := make(chan []Event, 16)
	w.OnChange(func(events []Event) { batches <- events })
	return batches
}

func receiveBatch(t *testing.T, batches chan []Event) []Event {
	t.Helper()
	select {
	case batch := <-batches:
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change batch")
		return nil
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	w := newTestWatcher(t, 100*time.Millisecond)
	dir := t.TempDir()
	require.NoError(t, w.AddRecursive(dir))
	batches := collectBatches(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte("b"), 0o644))

	// Both writes normally land in one debounced batch; a slow run may
	// split them, so drain until both paths showed up.
	seen := make(map[string]bool)
	for !seen["a.html"] || !seen["b.html"] {
		for _, event := range receiveBatch(t, batches) {
			seen[filepath.Base(event.Path)] = true
		}
	}
}

func TestWatcherNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "partials")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w := newTestWatcher(t, 20*time.Millisecond)
	require.NoError(t, w.AddRecursive(dir))
	batches := collectBatches(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.html"), []byte("x"), 0o644))

	batch := receiveBatch(t, batches)
	require.NotEmpty(t, batch)
	assert.Equal(t, "inner.html", filepath.Base(batch[0].Path))
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, 20*time.Millisecond)
	require.NoError(t, w.AddRecursive(dir))
	batches := collectBatches(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	sub := filepath.Join(dir, "later")
	require.NoError(t, os.Mkdir(sub, 0o755))
	inner := filepath.Join(sub, "new.html")

	// The watch on the new directory attaches asynchronously, so keep
	// touching the file until a batch for it arrives.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(inner, []byte("x"), 0o644); err != nil {
			return false
		}
		select {
		case batch := <-batches:
			for _, event := range batch {
				if event.Path == inner {
					return true
				}
			}
			return false
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherFilterExtensions(t *testing.T) {
	w := newTestWatcher(t, 50*time.Millisecond)
	dir := t.TempDir()
	require.NoError(t, w.AddRecursive(dir))
	w.FilterExtensions(".html")
	batches := collectBatches(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("t"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte("h"), 0o644))

	batch := receiveBatch(t, batches)
	require.NotEmpty(t, batch)
	for _, event := range batch {
		assert.Equal(t, ".html", filepath.Ext(event.Path), "filtered batch leaked %q", event.Path)
	}
}

func TestWatcherWantPath(t *testing.T) {
	w := newTestWatcher(t, time.Millisecond)
	assert.True(t, w.wantPath("/any/file.xyz"))

	w.FilterExtensions(".html", ".txt")
	assert.True(t, w.wantPath("/x/page.html"))
	assert.True(t, w.wantPath("/x/page.HTML"))
	assert.True(t, w.wantPath("/x/notes.txt"))
	assert.False(t, w.wantPath("/x/style.css"))
}

func TestWatcherAddRecursiveMissingRoot(t *testing.T) {
	w := newTestWatcher(t, time.Millisecond)
	assert.Error(t, w.AddRecursive(filepath.Join(t.TempDir(), "absent")))
}

func TestWatcherAddRecursiveSkipsHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git")
	require.NoError(t, os.Mkdir(hidden, 0o755))

	w := newTestWatcher(t, 20*time.Millisecond)
	require.NoError(t, w.AddRecursive(dir))
	batches := collectBatches(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// A change inside the hidden directory never reaches the handler; a
	// change beside it does.
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "config.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seen.html"), []byte("x"), 0o644))

	batch := receiveBatch(t, batches)
	for _, event := range batch {
		assert.NotContains(t, event.Path, ".git")
	}
}

func TestWatcherCloseStopsDelivery(t *testing.T) {
	w := newTestWatcher(t, 10*time.Millisecond)
	dir := t.TempDir()
	require.NoError(t, w.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, w.Close())
	// Closing twice reports the underlying watcher error, if any; it must
	// not panic or deliver further batches.
	_ = w.Close()
}
