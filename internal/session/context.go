// Package session manages per-session conversation context persistence and
// the session registry that binds a conversation to an execution context.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrSessionNotFound is returned when loading a session id with no
// on-disk context.json.
var ErrSessionNotFound = fmt.Errorf("session not found")

// ConversationStore owns one session's ConversationContext in memory and
// mirrors every mutation to its on-disk snapshot under sessionDir.
//
// Every call that mutates user-visible state bumps UpdatedAt, appends to
// history.jsonl durably before returning, and (when Autosave is set) writes
// the context.json/state.json/metadata.json/.protected snapshot.
type ConversationStore struct {
	mu        sync.Mutex
	ctx       *models.ConversationContext
	sessionDir string
	autosave   bool
}

// NewConversationStore creates an empty conversation context for sessionID,
// rooted at sessionsRoot/sessionID, creating its directories.
func NewConversationStore(sessionsRoot, sessionID string, autosave bool) (*ConversationStore, error) {
	dir := filepath.Join(sessionsRoot, sessionID)
	store := &ConversationStore{
		ctx:        models.NewConversationContext(sessionID),
		sessionDir: dir,
		autosave:   autosave,
	}
	if err := store.ensureDirectories(); err != nil {
		return nil, err
	}
	return store, nil
}

// LoadConversationStore reconstructs a ConversationStore from context.json.
func LoadConversationStore(sessionsRoot, sessionID string, autosave bool) (*ConversationStore, error) {
	dir := filepath.Join(sessionsRoot, sessionID)
	contextPath := filepath.Join(dir, "context.json")

	data, err := os.ReadFile(contextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var ctx models.ConversationContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("decode context.json: %w", err)
	}

	store := &ConversationStore{ctx: &ctx, sessionDir: dir, autosave: autosave}
	if err := store.ensureDirectories(); err != nil {
		return nil, err
	}
	return store, nil
}

// Exists reports whether sessionID has a persisted context.json.
func Exists(sessionsRoot, sessionID string) bool {
	_, err := os.Stat(filepath.Join(sessionsRoot, sessionID, "context.json"))
	return err == nil
}

func (s *ConversationStore) ensureDirectories() error {
	for _, sub := range []string{"", "files", "outputs"} {
		if err := os.MkdirAll(filepath.Join(s.sessionDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// FilesDir is the session's bind-mounted workspace directory.
func (s *ConversationStore) FilesDir() string { return filepath.Join(s.sessionDir, "files") }

// OutputsDir is the session's saved-outputs directory.
func (s *ConversationStore) OutputsDir() string { return filepath.Join(s.sessionDir, "outputs") }

// SessionID returns the owning session's id.
func (s *ConversationStore) SessionID() string { return s.ctx.SessionID }

func (s *ConversationStore) touch() {
	now := time.Now()
	if now.After(s.ctx.Metadata.UpdatedAt) {
		s.ctx.Metadata.UpdatedAt = now
	}
}

// AddUserMessage appends a user message to history.
func (s *ConversationStore) AddUserMessage(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{Role: models.RoleUser, Content: content, Timestamp: time.Now()}
	s.ctx.Messages = append(s.ctx.Messages, msg)
	s.touch()
	if err := s.appendHistoryLog(msg); err != nil {
		return err
	}
	if s.autosave {
		return s.saveLocked()
	}
	return nil
}

// AddAssistantMessage appends an assistant message, optionally carrying the
// full ReAct step sequence that produced it.
func (s *ConversationStore) AddAssistantMessage(content string, steps []models.ReactStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{Role: models.RoleAssistant, Content: content, Timestamp: time.Now(), ReactSteps: steps}
	s.ctx.Messages = append(s.ctx.Messages, msg)
	s.touch()
	if err := s.appendHistoryLog(msg); err != nil {
		return err
	}
	if s.autosave {
		return s.saveLocked()
	}
	return nil
}

// MessageHistory returns a copy of the messages in LLM-facing {role,content}
// form, oldest first.
func (s *ConversationStore) MessageHistory() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.ctx.Messages))
	copy(out, s.ctx.Messages)
	return out
}

// RecentMessages returns up to count of the most recent messages.
func (s *ConversationStore) RecentMessages(count int) []models.Message {
	all := s.MessageHistory()
	if count <= 0 || count >= len(all) {
		return all
	}
	return all[len(all)-count:]
}

// RegisterFile inserts path into created_files and, if autoProtect, also
// into protected_files.
func (s *ConversationStore) RegisterFile(path string, autoProtect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx.CreatedFiles[path] = struct{}{}
	if autoProtect {
		s.ctx.ProtectedFiles[path] = struct{}{}
	}
	s.touch()
	if err := s.writeProtectedFile(); err != nil {
		return err
	}
	if s.autosave {
		return s.saveLocked()
	}
	return nil
}

// Protect marks path as protected.
func (s *ConversationStore) Protect(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx.ProtectedFiles[path] = struct{}{}
	s.touch()
	return s.writeProtectedFile()
}

// Unprotect removes protection from path.
func (s *ConversationStore) Unprotect(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ctx.ProtectedFiles, path)
	s.touch()
	return s.writeProtectedFile()
}

// IsProtected reports whether path is registered as protected. It
// implements files.ProtectionChecker.
func (s *ConversationStore) IsProtected(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ctx.ProtectedFiles[path]
	return ok
}

// CreatedFiles returns the set of created files as a slice.
func (s *ConversationStore) CreatedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ctx.CreatedFiles))
	for p := range s.ctx.CreatedFiles {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *ConversationStore) writeProtectedFile() error {
	paths := make([]string, 0, len(s.ctx.ProtectedFiles))
	for p := range s.ctx.ProtectedFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	content := ""
	for i, p := range paths {
		if i > 0 {
			content += "\n"
		}
		content += p
	}
	return os.WriteFile(filepath.Join(s.sessionDir, ".protected"), []byte(content), 0o644)
}

// SaveOutput writes an output record to outputs/<timestamp>.json and
// appends it to the outputs list, returning the path written.
func (s *ConversationStore) SaveOutput(task, result string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now()
	filename := ts.Format("2006-01-02_15-04-05") + ".json"
	outPath := filepath.Join(s.OutputsDir(), filename)

	payload, err := json.MarshalIndent(map[string]interface{}{
		"task":      task,
		"result":    result,
		"timestamp": ts,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, payload, 0o644); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(s.sessionDir, outPath)
	if err != nil {
		rel = outPath
	}
	s.ctx.Outputs = append(s.ctx.Outputs, models.Output{Task: task, Result: result, Timestamp: ts, FilePath: rel})
	s.touch()
	if s.autosave {
		if err := s.saveLocked(); err != nil {
			return outPath, err
		}
	}
	return outPath, nil
}

// Outputs returns a copy of the saved outputs list.
func (s *ConversationStore) Outputs() []models.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Output, len(s.ctx.Outputs))
	copy(out, s.ctx.Outputs)
	return out
}

// Save snapshots context.json, state.json, and metadata.json.
func (s *ConversationStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *ConversationStore) saveLocked() error {
	contextPayload, err := json.MarshalIndent(s.ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.sessionDir, "context.json"), contextPayload, 0o644); err != nil {
		return fmt.Errorf("write context.json: %w", err)
	}

	state := map[string]interface{}{
		"session_id":      s.ctx.SessionID,
		"message_count":   len(s.ctx.Messages),
		"created_files":   setToSortedSlice(s.ctx.CreatedFiles),
		"protected_files": setToSortedSlice(s.ctx.ProtectedFiles),
		"output_count":    len(s.ctx.Outputs),
		"updated_at":      s.ctx.Metadata.UpdatedAt,
	}
	statePayload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.sessionDir, "state.json"), statePayload, 0o644); err != nil {
		return fmt.Errorf("write state.json: %w", err)
	}

	metaPayload, err := json.MarshalIndent(s.ctx.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.sessionDir, "metadata.json"), metaPayload, 0o644); err != nil {
		return fmt.Errorf("write metadata.json: %w", err)
	}

	return nil
}

func (s *ConversationStore) appendHistoryLog(msg models.Message) error {
	f, err := os.OpenFile(filepath.Join(s.sessionDir, "history.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history.jsonl: %w", err)
	}
	defer f.Close()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append history.jsonl: %w", err)
	}
	return nil
}

func setToSortedSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
