package session

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteIndex mirrors session summaries into a local SQLite database so
// List/InfoFor can answer from a single query instead of walking
// sessionsRoot and decoding every context.json. It backs the
// session_store_backend: sqlite config option; the per-session
// ConversationStore files on disk remain the source of truth, this index is
// a derived, rebuildable cache.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (creating if needed) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention

	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	message_count INTEGER NOT NULL,
	file_count    INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session index schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

// Upsert records or refreshes one session's summary.
func (idx *SQLiteIndex) Upsert(info Info) error {
	const stmt = `
INSERT INTO sessions (session_id, created_at, updated_at, message_count, file_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	updated_at = excluded.updated_at,
	message_count = excluded.message_count,
	file_count = excluded.file_count;`
	_, err := idx.db.Exec(stmt, info.SessionID, info.CreatedAt, info.UpdatedAt, info.MessageCount, info.FileCount)
	if err != nil {
		return fmt.Errorf("upsert session index row: %w", err)
	}
	return nil
}

// Delete removes a session's row, if present.
func (idx *SQLiteIndex) Delete(sessionID string) error {
	if _, err := idx.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session index row: %w", err)
	}
	return nil
}

// List returns every indexed session, most recently updated first.
func (idx *SQLiteIndex) List() ([]Info, error) {
	rows, err := idx.db.Query(`SELECT session_id, created_at, updated_at, message_count, file_count FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query session index: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.SessionID, &info.CreatedAt, &info.UpdatedAt, &info.MessageCount, &info.FileCount); err != nil {
			return nil, fmt.Errorf("scan session index row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Get returns one session's indexed summary.
func (idx *SQLiteIndex) Get(sessionID string) (Info, bool, error) {
	row := idx.db.QueryRow(`SELECT session_id, created_at, updated_at, message_count, file_count FROM sessions WHERE session_id = ?`, sessionID)
	var info Info
	if err := row.Scan(&info.SessionID, &info.CreatedAt, &info.UpdatedAt, &info.MessageCount, &info.FileCount); err != nil {
		if err == sql.ErrNoRows {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("scan session index row: %w", err)
	}
	return info, true, nil
}

// infoFromStore builds the Info row recorded into the index from a freshly
// loaded/saved ConversationStore.
func infoFromStore(store *ConversationStore) Info {
	return Info{
		SessionID:    store.SessionID(),
		CreatedAt:    store.ctx.Metadata.CreatedAt,
		UpdatedAt:    store.ctx.Metadata.UpdatedAt,
		MessageCount: len(store.ctx.Messages),
		FileCount:    len(store.ctx.CreatedFiles),
	}
}
