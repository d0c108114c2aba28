// Package watcher monitors session worktrees for file changes and publishes
// debounced change notifications on the event bus.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// excludedDirs are never watched or reported.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Watcher tracks one fsnotify watcher per session worktree.
type Watcher struct {
	bus      *event.Bus
	logger   *logging.Logger
	debounce time.Duration

	mu       sync.Mutex
	watchers map[string]*sessionWatcher // session id -> watcher
}

type sessionWatcher struct {
	sessionID string
	root      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}

	mu      sync.Mutex
	pending map[string]struct{} // relative paths accumulated during debounce
}

// New creates a Watcher publishing FileChangedEvents on bus.
func New(bus *event.Bus, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		bus:      bus,
		logger:   logger.WithComponent("watcher"),
		debounce: defaultDebounce,
		watchers: make(map[string]*sessionWatcher),
	}
}

// SetDebounce overrides the event coalescing window. Takes effect for
// watches started after the call.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Watch starts watching a session's worktree recursively. Watching the same
// session twice replaces the previous watch.
func (w *Watcher) Watch(sessionID, root string) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addDirsRecursive(fsW, root); err != nil {
		fsW.Close()
		return err
	}

	sw := &sessionWatcher{
		sessionID: sessionID,
		root:      root,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		pending:   make(map[string]struct{}),
	}

	w.mu.Lock()
	if prev, ok := w.watchers[sessionID]; ok {
		close(prev.cancel)
		prev.fsWatcher.Close()
	}
	w.watchers[sessionID] = sw
	w.mu.Unlock()

	go w.watchLoop(sw)
	w.logger.Debug("watching worktree", "sessionId", sessionID, "root", root)
	return nil
}

// Unwatch stops watching a session's worktree.
func (w *Watcher) Unwatch(sessionID string) {
	w.mu.Lock()
	sw, ok := w.watchers[sessionID]
	if ok {
		delete(w.watchers, sessionID)
	}
	w.mu.Unlock()

	if ok {
		close(sw.cancel)
		sw.fsWatcher.Close()
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.watchers))
	for id := range w.watchers {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		w.Unwatch(id)
	}
}

// watchLoop accumulates events and flushes them after a quiet period so a
// burst of writes produces one notification.
func (w *Watcher) watchLoop(sw *sessionWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-sw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-sw.fsWatcher.Events:
			if !ok {
				return
			}

			// Newly created directories are watched too.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					base := filepath.Base(ev.Name)
					if !excludedDirs[base] && !isHidden(base) {
						if err := sw.fsWatcher.Add(ev.Name); err != nil {
							w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
						}
					}
				}
			}

			if rel, ok := sw.relative(ev.Name); ok {
				sw.mu.Lock()
				sw.pending[rel] = struct{}{}
				sw.mu.Unlock()
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.flush(sw)
			})

		case err, ok := <-sw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "sessionId", sw.sessionID, "error", err)
		}
	}
}

// flush publishes the accumulated changes as one event.
func (w *Watcher) flush(sw *sessionWatcher) {
	sw.mu.Lock()
	if len(sw.pending) == 0 {
		sw.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(sw.pending))
	for p := range sw.pending {
		paths = append(paths, p)
	}
	sw.pending = make(map[string]struct{})
	sw.mu.Unlock()

	sort.Strings(paths)
	w.bus.Publish(event.NewFileChangedEvent(sw.sessionID, paths))
}

// relative converts an absolute event path to a worktree-relative one,
// filtering excluded and hidden locations.
func (sw *sessionWatcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(sw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if excludedDirs[part] || isHidden(part) {
			return "", false
		}
	}
	return rel, true
}

// addDirsRecursive registers dir and every non-hidden subdirectory.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != dir && (excludedDirs[name] || isHidden(name)) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
