// Package store mirrors session transcripts into a SQLite database. The JSON
// files under the dot-directory stay the source of truth; the mirror exists
// for cross-session search and for tooling that wants SQL access to history.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"refinery/internal/logging"
	"refinery/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// Mirror manages the transcript database.
type Mirror struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// TurnHit is a single search result from the mirror.
type TurnHit struct {
	SessionID   string
	SessionName string
	MessageID   string
	Author      string
	Content     string
	CreatedAt   time.Time
}

// NewMirror creates or opens the transcript mirror under dir.
func NewMirror(dir string) (*Mirror, error) {
	dbPath := filepath.Join(dir, "transcripts.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := &Mirror{db: db, dbPath: dbPath}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

// Close closes the database connection.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Path returns the database file path.
func (m *Mirror) Path() string {
	return m.dbPath
}

func (m *Mirror) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_turns (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		is_chain INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON session_turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON session_turns(created_at);
	`

	_, err := m.db.Exec(schema)
	return err
}

// MirrorSession upserts the session row and inserts any messages not yet
// mirrored. Message IDs are stable, so re-mirroring the same session after
// every turn is idempotent.
func (m *Mirror) MirrorSession(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin mirror tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, s.ID, s.Name, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to mirror session row: %w", err)
	}

	for _, msg := range s.Messages {
		isChain := 0
		if msg.Parsed != nil && msg.Parsed.IsChain {
			isChain = 1
		}
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO session_turns (message_id, session_id, author, content, is_chain, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, s.ID, string(msg.Author), msg.Content, isChain, msg.Time)
		if err != nil {
			return fmt.Errorf("failed to mirror turn %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mirror tx: %w", err)
	}

	logging.StoreDebug("mirrored session %s (%d messages)", s.ID, len(s.Messages))
	return nil
}

// DeleteSession removes a session and its turns from the mirror.
func (m *Mirror) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.Exec(`DELETE FROM session_turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := m.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Search finds turns whose content contains the term, newest first.
func (m *Mirror) Search(term string, limit int) ([]TurnHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.Query(`
		SELECT t.session_id, s.name, t.message_id, t.author, t.content, t.created_at
		FROM session_turns t
		JOIN sessions s ON s.id = t.session_id
		WHERE t.content LIKE '%' || ? || '%'
		ORDER BY t.created_at DESC
		LIMIT ?
	`, term, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []TurnHit
	for rows.Next() {
		var h TurnHit
		if err := rows.Scan(&h.SessionID, &h.SessionName, &h.MessageID, &h.Author, &h.Content, &h.CreatedAt); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID        string
	Name      string
	Turns     int
	CreatedAt time.Time
}

// ListSessions returns all mirrored sessions with their turn counts,
// newest first.
func (m *Mirror) ListSessions() ([]SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.Query(`
		SELECT s.id, s.name, s.created_at, COUNT(t.message_id)
		FROM sessions s
		LEFT JOIN session_turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt, &sum.Turns); err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
