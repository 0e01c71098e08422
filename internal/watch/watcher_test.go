package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdir/vdirsync/internal/etag"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()

	tempDir := t.TempDir()
	// macos tmpdirs live behind a /private symlink; notify reports the real path
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err)

	w, err := New(tempDir)
	require.NoError(t, err)
	w.SetDebounceTimeout(10 * time.Millisecond)

	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(w.Stop)
	return w, tempDir
}

func TestWatcherEmitsTokenOnWrite(t *testing.T) {
	w, dir := newTestWatcher(t)

	path := filepath.Join(dir, "item.ics")
	require.NoError(t, os.WriteFile(path, []byte("BEGIN:VCARD"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, path, ev.Path)
		direct, err := etag.FromPath(path)
		require.NoError(t, err)
		assert.Equal(t, direct, ev.ETag)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for change event")
	}
}

func TestWatcherIgnoreOnce(t *testing.T) {
	w, dir := newTestWatcher(t)

	ignored := filepath.Join(dir, "self-write.ics")
	w.IgnoreOnce(ignored)
	require.NoError(t, os.WriteFile(ignored, []byte("mine"), 0o644))

	// A later foreign write still comes through.
	other := filepath.Join(dir, "other.ics")
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("theirs"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, other, ev.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for change event")
	}
}

func TestWatcherFilterPaths(t *testing.T) {
	w, dir := newTestWatcher(t)
	w.FilterPaths(func(path string) bool {
		return strings.HasSuffix(path, ".tmp")
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "staged.tmp"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	keep := filepath.Join(dir, "keep.ics")
	require.NoError(t, os.WriteFile(keep, []byte("y"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, keep, ev.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for change event")
	}
}

func TestWatcherDropsUnchangedTokens(t *testing.T) {
	w, dir := newTestWatcher(t)

	path := filepath.Join(dir, "pinned.ics")
	mtime := time.Unix(1700000000, 123456789)

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	select {
	case ev := <-w.Events():
		assert.Equal(t, etag.FromUnixNano(mtime.UnixNano()), ev.ETag)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for first event")
	}

	// Rewrite with the mtime pinned back: the token cannot change, so the
	// event carries no information and must be suppressed.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	select {
	case ev := <-w.Events():
		assert.FailNow(t, "unexpected event for unchanged token", "event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopWithInFlightFlushes(t *testing.T) {
	w, dir := newTestWatcher(t)
	w.SetDebounceTimeout(0)

	// Queue a burst of paths so debounce callbacks are still firing while
	// Stop closes the watcher down.
	for i := 0; i < 200; i++ {
		w.debounceEvent(filepath.Join(dir, fmt.Sprintf("item-%d.ics", i)))
	}
	w.Stop()

	// The events channel must be closed exactly once, with no late sends.
	for range w.Events() {
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, _ := newTestWatcher(t)

	w.Stop()
	w.Stop()

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel must be closed after Stop returns")
}
