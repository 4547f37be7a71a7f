package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storynerd/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DocEvent reports an external edit to a canonical document. The agent
// never caches document content between turns, so no invalidation is
// needed; the event exists so the UI can tell the user their hand edit
// was noticed.
type DocEvent struct {
	Name string // canonical document name
	Time time.Time
}

// Watcher watches the workspace root for canonical-document changes made
// while the agent is idle (e.g. the user hand-editing WORLD.md).
type Watcher struct {
	mu          sync.Mutex
	ws          *Workspace
	watcher     *fsnotify.Watcher
	events      chan DocEvent
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the workspace root.
func NewWatcher(ws *Workspace) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ws:          ws,
		watcher:     fsw,
		events:      make(chan DocEvent, 16),
		debounceMap: make(map[string]time.Time),
		debounceDur: 250 * time.Millisecond, // editors fire bursts of writes
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Events returns the channel of canonical-document change notices.
func (dw *Watcher) Events() <-chan DocEvent {
	return dw.events
}

// Start begins watching. Non-blocking; events arrive on Events().
func (dw *Watcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	if dw.running {
		dw.mu.Unlock()
		return nil
	}
	dw.running = true
	dw.mu.Unlock()

	if err := dw.watcher.Add(dw.ws.Root()); err != nil {
		return err
	}

	go dw.loop(ctx)
	logging.Watcher("Watching %s for canonical document edits", dw.ws.Root())
	return nil
}

func (dw *Watcher) loop(ctx context.Context) {
	defer close(dw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-dw.stopCh:
			return
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handle(ev)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Warn("watch error: %v", err)
		}
	}
}

func (dw *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	name := filepath.Base(ev.Name)
	// Skip our own atomic-write temp files.
	if strings.HasPrefix(name, ".") {
		return
	}
	if !IsCanonical(name) {
		return
	}

	dw.mu.Lock()
	last, seen := dw.debounceMap[name]
	now := time.Now()
	if seen && now.Sub(last) < dw.debounceDur {
		dw.mu.Unlock()
		return
	}
	dw.debounceMap[name] = now
	dw.mu.Unlock()

	logging.WatcherDebug("Canonical document changed on disk: %s", name)
	select {
	case dw.events <- DocEvent{Name: name, Time: now}:
	default:
		// Drop when nobody is draining; notices are best-effort.
	}
}

// Close stops the watcher and releases the inotify handle.
func (dw *Watcher) Close() error {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		return dw.watcher.Close()
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	err := dw.watcher.Close()
	<-dw.doneCh
	close(dw.events)
	return err
}
