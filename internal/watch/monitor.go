// Package watch provides SessionMonitor, an event-driven replacement
// for the original source's mtime-polling change tracker
// (services/file_monitor_service.py FileMonitorService). The spec this
// module implements does not name a live-monitoring component, but the
// original source did, and fsnotify-based watching is how the teacher
// repo observes a live working tree (internal/server/watcher.go) — so
// the same watch-loop/debounce shape is adapted here instead of
// reintroducing the original's polling design.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zwldarren/codesnap/internal/walk"
)

// debounceWindow coalesces bursts of filesystem events (e.g. an editor
// doing write+rename on save) into a single recorded change, matching
// gitvista's watcher.go debounceTime.
const debounceWindow = 100 * time.Millisecond

// SessionMonitor watches a project tree for changes between calls to
// Start and Stop, honoring the same ignore rules as ProjectWalker so it
// never reports churn inside .git, node_modules, the codesnap store
// directory, and similar.
type SessionMonitor struct {
	walker *walk.Walker
	logger *slog.Logger

	mu      sync.Mutex
	changed map[string]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSessionMonitor returns a SessionMonitor scoped to walker's project
// root and ignore configuration.
func NewSessionMonitor(walker *walk.Walker, logger *slog.Logger) *SessionMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionMonitor{
		walker:  walker,
		logger:  logger,
		changed: make(map[string]struct{}),
	}
}

// Start begins watching the project tree. It is an error to call Start
// twice without an intervening Stop.
func (m *SessionMonitor) Start() error {
	m.mu.Lock()
	if m.watcher != nil {
		m.mu.Unlock()
		return fmt.Errorf("watch: monitor already started")
	}
	m.changed = make(map[string]struct{})
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}

	m.walkAndWatch(watcher, m.walker.ProjectRoot)

	m.mu.Lock()
	m.watcher = watcher
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchLoop(watcher, m.done)

	m.logger.Info("session monitor started", "root", m.walker.ProjectRoot)
	return nil
}

// Stop halts watching and returns the set of project-relative paths
// that changed since Start, in no particular order.
func (m *SessionMonitor) Stop() []string {
	m.mu.Lock()
	watcher := m.watcher
	done := m.done
	m.watcher = nil
	m.done = nil
	m.mu.Unlock()

	if watcher != nil {
		close(done)
		_ = watcher.Close()
		m.wg.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.changed))
	for p := range m.changed {
		paths = append(paths, p)
	}
	return paths
}

// ChangedFiles returns a snapshot of the relative paths observed as
// changed so far, without stopping the monitor.
func (m *SessionMonitor) ChangedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.changed))
	for p := range m.changed {
		paths = append(paths, p)
	}
	return paths
}

// walkAndWatch adds fsnotify watches to root and every non-ignored
// subdirectory, mirroring internal/server/watcher.go's walkAndWatch but
// pruning with the same ignore rules ProjectWalker.Enumerate uses
// rather than watching everything.
func (m *SessionMonitor) walkAndWatch(watcher *fsnotify.Watcher, root string) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return
	}
	if err := watcher.Add(root); err != nil {
		m.logger.Warn("failed to watch directory", "dir", root, "err", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if m.walker.IgnoreTokens != nil {
			if _, ignored := m.walker.IgnoreTokens[name]; ignored {
				continue
			}
		}
		sub := filepath.Join(root, name)
		if m.walker.Gitignore != nil {
			if rel, err := filepath.Rel(m.walker.ProjectRoot, sub); err == nil {
				if m.walker.Gitignore.Match(filepath.ToSlash(rel), true) {
					continue
				}
			}
		}
		m.walkAndWatch(watcher, sub)
	}
}

func (m *SessionMonitor) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer m.wg.Done()

	// One debounce timer per path: a burst of events on file A must not
	// cancel a pending record for file B, or the monitor would lose B's
	// change entirely instead of merely delaying it.
	debounceTimers := make(map[string]*time.Timer)

	record := func(path string) {
		rel, err := m.walker.RelativePath(path)
		if err != nil {
			return
		}
		if _, ignored := m.walker.IgnoreTokens[filepath.Base(path)]; ignored {
			return
		}
		if m.walker.Gitignore.Match(rel, false) {
			return
		}
		m.mu.Lock()
		m.changed[rel] = struct{}{}
		m.mu.Unlock()
	}

	stopAll := func() {
		for _, t := range debounceTimers {
			t.Stop()
		}
	}

	for {
		select {
		case <-done:
			stopAll()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				stopAll()
				return
			}
			if shouldIgnoreEvent(event) {
				continue
			}

			path := event.Name
			if t, exists := debounceTimers[path]; exists {
				t.Stop()
			}
			debounceTimers[path] = time.AfterFunc(debounceWindow, func() {
				record(path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				stopAll()
				return
			}
			m.logger.Error("watcher error", "err", err)
		}
	}
}

// shouldIgnoreEvent filters out events that don't represent a content
// change worth recording: lock files, and operations other than
// Write/Create/Remove/Rename. Adapted from
// internal/server/watcher.go's shouldIgnoreEvent.
func shouldIgnoreEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") || strings.HasPrefix(base, ".tmp-") {
		return true
	}
	return false
}
