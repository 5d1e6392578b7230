package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/nexus/internal/session"
)

// NewMux builds the full HTTP surface: the websocket upgrade endpoint plus
// the auxiliary session/file REST endpoints. Every file endpoint rejects
// paths that resolve outside the session's workspace with 403.
func NewMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/save", s.handleSaveSession)

	mux.HandleFunc("GET /files/{session}/list", s.handleFilesList)
	mux.HandleFunc("GET /files/{session}/read", s.handleFilesRead)
	mux.HandleFunc("GET /files/{session}/download", s.handleFilesDownload)
	mux.HandleFunc("GET /files/{session}/outputs", s.handleFilesOutputs)

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// NewMetricsMux builds a standalone mux for the internal Prometheus listener
// (metrics_addr), kept separate from the websocket/session surface so it can
// be bound to a different address than the public-facing one.
func NewMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.manager.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.manager.InfoFor(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.manager.Delete(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found or not active"})
		return
	}
	if err := sess.Store.Save(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveWithinDir joins rel onto base and rejects any result that escapes
// base after cleaning, returning ("", false) for a traversal attempt.
func resolveWithinDir(base, rel string) (string, bool) {
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, rel)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(os.PathSeparator)) {
		return "", false
	}
	return joined, true
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	base := s.manager.FilesDir(r.PathValue("session"))
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleFilesRead(w http.ResponseWriter, r *http.Request) {
	base := s.manager.FilesDir(r.PathValue("session"))
	path, ok := resolveWithinDir(base, r.URL.Query().Get("path"))
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "path escapes session workspace"})
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleFilesDownload(w http.ResponseWriter, r *http.Request) {
	base := s.manager.FilesDir(r.PathValue("session"))
	path, ok := resolveWithinDir(base, r.URL.Query().Get("path"))
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "path escapes session workspace"})
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	http.ServeFile(w, r, path)
}

func (s *Server) handleFilesOutputs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sess, ok := s.manager.Get(sessionID); ok {
		writeJSON(w, http.StatusOK, sess.Store.Outputs())
		return
	}

	base := s.manager.OutputsDir(sessionID)
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	writeJSON(w, http.StatusOK, names)
}
