package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/logsearch-mcp/internal/debug"
)

// Store holds the live Config behind a reader-writer lock, shared by every
// transport so a hot-reload swap is visible everywhere at once instead of
// leaving the HTTP transport pinned to a stale copy.
type Store struct {
	mu          sync.RWMutex
	cfg         *Config
	projectPath string
}

// NewStore wraps an already-loaded Config for sharing across transports.
func NewStore(cfg *Config, projectPath string) *Store {
	return &Store{cfg: cfg, projectPath: projectPath}
}

// Snapshot returns the current Config by value, so callers can read its
// fields without holding the lock for the lifetime of a request.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

func (s *Store) replace(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// WatchReload starts an fsnotify watcher on the directory containing the
// project config file (rather than the file itself, since editors frequently
// replace files via rename-into-place rather than in-place write) and
// reloads+swaps the config on every write/create event for that file, until
// ctx is cancelled. It is a
// best-effort external collaborator: a failure to start the watcher is
// logged, not fatal, since the service can run perfectly well on a
// statically loaded config.
func (s *Store) WatchReload(ctx context.Context) {
	if s.projectPath == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		debug.LogConfig("hot-reload disabled: %v", err)
		return
	}

	dir := dirOf(s.projectPath)
	if err := watcher.Add(dir); err != nil {
		debug.LogConfig("hot-reload disabled: watch %s: %v", dir, err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.projectPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(s.projectPath)
				if err != nil {
					debug.LogConfig("reload of %s failed: %v", s.projectPath, err)
					continue
				}
				s.replace(cfg)
				debug.LogConfig("reloaded config from %s", s.projectPath)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				debug.LogConfig("watcher error: %v", err)
			}
		}
	}()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
