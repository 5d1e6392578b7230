package session

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// StartWatching watches sessionsRoot for out-of-band removal of a session's
// on-disk directory (operator cleanup, a stray `rm -rf`) and marks the
// matching in-memory session closed rather than letting it silently drift
// out of sync with disk. It is a no-op if a watcher is already running.
func (m *Manager) StartWatching(ctx context.Context) error {
	m.watchMu.Lock()
	if m.watcher != nil {
		m.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watchMu.Unlock()
		return err
	}
	if err := watcher.Add(m.sessionsRoot); err != nil {
		_ = watcher.Close()
		m.watchMu.Unlock()
		return err
	}
	m.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	m.watchWg.Add(1)
	go m.watchLoop(watchCtx)
	return nil
}

// StopWatching stops the directory watcher started by StartWatching. Safe
// to call even if no watcher is running.
func (m *Manager) StopWatching() {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	watcher := m.watcher
	m.watcher = nil
	m.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	m.watchWg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.watchWg.Done()
	m.watchMu.Lock()
	watcher := m.watcher
	m.watchMu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				m.handleSessionDirRemoved(filepath.Base(event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("session directory watch error", "error", err)
		}
	}
}

// handleSessionDirRemoved marks sessionID's in-memory session closed and
// drops it from the active map, without touching disk (the directory is
// already gone). No-op if sessionID isn't currently active in memory.
func (m *Manager) handleSessionDirRemoved(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.markRemoved()
	sess.Interrupt()
	m.metrics.SessionClosed()
	if m.index != nil {
		_ = m.index.Delete(sessionID)
	}
	slog.Info("session directory removed out-of-band, closed in-memory session", "session_id", sessionID)
}

// markRemoved flags the session as torn down out-of-band. Idempotent.
func (s *Session) markRemoved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
}

// Removed reports whether this session's on-disk directory was removed
// out-of-band (detected by Manager's directory watcher) rather than through
// Manager.Delete.
func (s *Session) Removed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}
