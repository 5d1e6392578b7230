package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
)

// Info summarizes one persisted session for listing.
type Info struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	FileCount    int       `json:"file_count"`
}

// Session is an active session: an in-memory conversation store paired
// with a running sandbox execution context. is_processing/cancel/pause are
// tracked here as per-session atomics guarded by the session's own
// goroutine, so only one ReAct run executes per session at a time while
// interrupt/suggestion/pause/resume/update_plan remain deliverable
// concurrently.
type Session struct {
	SessionID string
	Store     *ConversationStore
	Sandbox   *sandbox.SessionContext

	mu          sync.Mutex
	processing  bool
	cancelFn    context.CancelFunc
	paused      bool
	closedOnce  sync.Once
	removed     bool
}

// Manager creates, resumes, lists, and deletes sessions rooted at a single
// sessions directory.
type Manager struct {
	sessionsRoot string
	autosave     bool
	sandboxImage string
	mountPath    string
	autoCleanup  bool

	mu       sync.Mutex
	sessions map[string]*Session

	metrics *observability.Metrics
	index   *SQLiteIndex

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// SetMetrics attaches a Metrics sink; passing nil disables metric recording.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// EnableSQLiteIndex backs List/InfoFor with a SQLite-indexed cache of
// session summaries at dbPath, rather than scanning sessionsRoot and
// decoding every context.json. The on-disk ConversationStore files remain
// authoritative; the index is rebuilt from them lazily as sessions are
// touched, and by Reindex on startup.
func (m *Manager) EnableSQLiteIndex(dbPath string) error {
	idx, err := NewSQLiteIndex(dbPath)
	if err != nil {
		return err
	}
	m.index = idx
	return m.Reindex()
}

// Reindex rebuilds the SQLite index from every session directory on disk.
// No-op if no index is enabled.
func (m *Manager) Reindex() error {
	if m.index == nil {
		return nil
	}
	entries, err := os.ReadDir(m.sessionsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		store, err := LoadConversationStore(m.sessionsRoot, entry.Name(), false)
		if err != nil {
			continue
		}
		if err := m.index.Upsert(infoFromStore(store)); err != nil {
			return err
		}
	}
	return nil
}

// NewManager creates a session manager rooted at sessionsRoot.
func NewManager(sessionsRoot string, autosave bool, sandboxImage, mountPath string, autoCleanup bool) (*Manager, error) {
	if err := os.MkdirAll(sessionsRoot, 0o755); err != nil {
		return nil, err
	}
	return &Manager{
		sessionsRoot: sessionsRoot,
		autosave:     autosave,
		sandboxImage: sandboxImage,
		mountPath:    mountPath,
		autoCleanup:  autoCleanup,
		sessions:     make(map[string]*Session),
	}, nil
}

func newSessionID() string {
	return uuid.NewString()[:8]
}

// CreateNew creates a fresh session: a conversation context plus a started
// sandbox execution context.
func (m *Manager) CreateNew(ctx context.Context) (*Session, error) {
	id := newSessionID()

	store, err := NewConversationStore(m.sessionsRoot, id, m.autosave)
	if err != nil {
		return nil, err
	}

	sb := sandbox.NewSessionContext(sandbox.SessionContextConfig{
		SessionID:    id,
		WorkspaceDir: store.FilesDir(),
		MountPath:    m.mountPath,
		Image:        m.sandboxImage,
		AutoCleanup:  m.autoCleanup,
	})
	if err := sb.Start(ctx); err != nil {
		return nil, err
	}

	if err := store.Save(); err != nil {
		return nil, err
	}

	sess := &Session{SessionID: id, Store: store, Sandbox: sb}
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	m.metrics.SessionBound()
	if m.index != nil {
		_ = m.index.Upsert(infoFromStore(store))
	}
	return sess, nil
}

// Resume reconstructs a session from disk and starts its sandbox.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	store, err := LoadConversationStore(m.sessionsRoot, sessionID, m.autosave)
	if err != nil {
		return nil, err
	}

	sb := sandbox.NewSessionContext(sandbox.SessionContextConfig{
		SessionID:    sessionID,
		WorkspaceDir: store.FilesDir(),
		MountPath:    m.mountPath,
		Image:        m.sandboxImage,
		AutoCleanup:  m.autoCleanup,
	})
	if err := sb.Start(ctx); err != nil {
		return nil, err
	}

	sess := &Session{SessionID: sessionID, Store: store, Sandbox: sb}
	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()
	m.metrics.SessionBound()
	if m.index != nil {
		_ = m.index.Upsert(infoFromStore(store))
	}
	return sess, nil
}

// Exists reports whether sessionID has a persisted context.json.
func (m *Manager) Exists(sessionID string) bool {
	return Exists(m.sessionsRoot, sessionID)
}

// Get returns an already-active session without touching disk.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// ActiveSessionIDs returns the IDs of sessions currently bound in memory
// (a sandbox container running), for the idle-TTL sweep.
func (m *Manager) ActiveSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// FilesDir returns sessionID's workspace directory without activating a
// sandbox. Used by the HTTP file-browsing surface, which only needs to
// stat/read files on disk.
func (m *Manager) FilesDir(sessionID string) string {
	return filepath.Join(m.sessionsRoot, sessionID, "files")
}

// OutputsDir returns sessionID's saved-outputs directory without
// activating a sandbox.
func (m *Manager) OutputsDir(sessionID string) string {
	return filepath.Join(m.sessionsRoot, sessionID, "outputs")
}

// List enumerates every persisted session, most recently updated first. If
// a SQLite index is enabled, it answers from the index instead of scanning
// sessionsRoot and decoding every context.json.
func (m *Manager) List() ([]Info, error) {
	if m.index != nil {
		return m.index.List()
	}

	entries, err := os.ReadDir(m.sessionsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		info, err := m.InfoFor(id)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// InfoFor loads a single session's summary without registering it as
// active, answering from the SQLite index when one is enabled.
func (m *Manager) InfoFor(sessionID string) (Info, error) {
	if m.index != nil {
		if info, ok, err := m.index.Get(sessionID); err != nil {
			return Info{}, err
		} else if ok {
			return info, nil
		}
		return Info{}, ErrSessionNotFound
	}

	if !Exists(m.sessionsRoot, sessionID) {
		return Info{}, ErrSessionNotFound
	}
	store, err := LoadConversationStore(m.sessionsRoot, sessionID, false)
	if err != nil {
		return Info{}, err
	}
	return infoFromStore(store), nil
}

// Close saves the session's context and stops (but does not remove) its
// sandbox container. Idempotent.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var err error
	sess.closedOnce.Do(func() {
		if saveErr := sess.Store.Save(); saveErr != nil {
			err = saveErr
		}
		if stopErr := sess.Sandbox.Stop(ctx); stopErr != nil && err == nil {
			err = stopErr
		}
	})

	if m.index != nil {
		_ = m.index.Upsert(infoFromStore(sess.Store))
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.metrics.SessionClosed()
	return err
}

// Delete removes a session's sandbox and on-disk directory entirely.
func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	if !m.Exists(sessionID) {
		m.mu.Lock()
		_, active := m.sessions[sessionID]
		m.mu.Unlock()
		if !active {
			return false, nil
		}
	}

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		_ = sess.Sandbox.Cleanup(ctx)
	}

	dir := filepath.Join(m.sessionsRoot, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return true, fmt.Errorf("remove session directory: %w", err)
	}
	if m.index != nil {
		_ = m.index.Delete(sessionID)
	}
	return true, nil
}

// TryBeginProcessing sets the processing flag if not already set, and
// returns a context derived from ctx that is cancelled by Interrupt.
// The caller must call the returned release func when the run ends.
func (s *Session) TryBeginProcessing(ctx context.Context) (runCtx context.Context, release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return nil, nil, false
	}
	s.processing = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	return runCtx, func() {
		s.mu.Lock()
		s.processing = false
		s.cancelFn = nil
		s.mu.Unlock()
	}, true
}

// IsProcessing reports whether a ReAct run is currently active.
func (s *Session) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Interrupt cancels the currently running task, if any.
func (s *Session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
}

// Pause sets the pause flag, polled by the orchestrator at step boundaries.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume clears the pause flag.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports the current pause flag state.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
