// Package watch turns filesystem write events into change events carrying
// fresh mtime tokens. Bursty writes are debounced per path and events whose
// token matches the last one seen are dropped, so downstream consumers only
// hear about actual metadata changes.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rjeczalik/notify"

	"github.com/openvdir/vdirsync/internal/etag"
)

const (
	defaultIgnoreTimeout   = time.Second
	defaultDebounceTimeout = 50 * time.Millisecond
	eventBufferSize        = 64
	seenCacheSize          = 4096
)

// Event is one observed change. ETag is empty when the path disappeared.
type Event struct {
	Path string
	ETag etag.ETag
}

// FilterCallback returns true if events for the path should be dropped
// before debouncing.
type FilterCallback func(path string) bool

type Watcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// emitMu serializes sends on events against its close; closed flips
	// under it so a late debounce callback cannot send on a closed channel
	emitMu sync.Mutex
	closed bool

	// last token emitted per path; repeats are spurious and dropped
	seen *lru.Cache[string, etag.ETag]

	debounceMu      sync.Mutex
	pendingTimers   map[string]*time.Timer
	debounceTimeout time.Duration

	ignoreMu sync.Mutex
	ignore   map[string]time.Time

	filterMu sync.RWMutex
	filter   FilterCallback
}

func New(watchDir string) (*Watcher, error) {
	seen, err := lru.New[string, etag.ETag](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watchDir:        watchDir,
		done:            make(chan struct{}),
		seen:            seen,
		pendingTimers:   make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
		ignore:          make(map[string]time.Time),
	}, nil
}

// SetDebounceTimeout adjusts how long a path must stay quiet before its
// event is emitted.
func (w *Watcher) SetDebounceTimeout(d time.Duration) {
	w.debounceTimeout = d
}

// FilterPaths installs a callback that drops raw events before debouncing.
func (w *Watcher) FilterPaths(cb FilterCallback) {
	w.filterMu.Lock()
	defer w.filterMu.Unlock()
	w.filter = cb
}

// IgnoreOnce suppresses the next event for path. Used around the watcher
// owner's own writes.
func (w *Watcher) IgnoreOnce(path string) {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	w.ignore[path] = time.Now().Add(defaultIgnoreTimeout)
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.watchDir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	if err := notify.Watch(w.watchDir+"/...", w.rawEvents, notify.Write, notify.Rename, notify.Remove); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.rawEvents != nil {
			notify.Stop(w.rawEvents)
		}
		w.wg.Wait()
		slog.Info("watcher stopped")
	})
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.debounceMu.Lock()
		for path, timer := range w.pendingTimers {
			timer.Stop()
			delete(w.pendingTimers, path)
		}
		w.debounceMu.Unlock()

		// timer.Stop does not wait for a callback already in flight, so the
		// channel is closed under the same lock flushEvent sends under
		w.emitMu.Lock()
		w.closed = true
		close(w.events)
		w.emitMu.Unlock()

		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}

			w.filterMu.RLock()
			filter := w.filter
			w.filterMu.RUnlock()
			if filter != nil && filter(ev.Path()) {
				continue
			}

			// Writes arrive as a burst of events until the file is fully
			// written; collapse them per path.
			w.debounceEvent(ev.Path())
		}
	}
}

func (w *Watcher) debounceEvent(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.pendingTimers[path]; exists {
		timer.Stop()
	}
	w.pendingTimers[path] = time.AfterFunc(w.debounceTimeout, func() {
		w.flushEvent(path)
	})
}

func (w *Watcher) flushEvent(path string) {
	w.debounceMu.Lock()
	delete(w.pendingTimers, path)
	w.debounceMu.Unlock()

	if w.consumeIgnore(path) {
		return
	}

	ev := Event{Path: path}
	tok, err := etag.FromPath(path)
	switch {
	case err == nil:
		ev.ETag = tok
	case errors.Is(err, fs.ErrNotExist):
		// Deleted; emit with empty token.
	default:
		slog.Warn("watcher token derivation failed", "path", path, "error", err)
		return
	}

	if last, ok := w.seen.Get(path); ok && last == ev.ETag {
		// Metadata unchanged, the event carries no information.
		return
	}

	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.closed {
		return
	}
	w.seen.Add(path, ev.ETag)

	select {
	case w.events <- ev:
		slog.Debug("watcher event", "path", path, "etag", ev.ETag)
	default:
		slog.Warn("watcher dropped event", "reason", "channel full", "path", path)
	}
}

// consumeIgnore reports whether path has a pending ignore-once entry, and
// removes it either way.
func (w *Watcher) consumeIgnore(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()

	expiry, exists := w.ignore[path]
	if !exists {
		return false
	}
	delete(w.ignore, path)
	return time.Now().Before(expiry)
}
