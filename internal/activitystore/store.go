// Package activitystore is a derived, rebuildable SQLite projection of each
// session's WAL history (§6.1 of SPEC_FULL.md). It is explicitly
// non-authoritative: the WAL and Session Index remain the only source of
// truth (§4.4), and the tables here exist purely so a front-end can run
// ad-hoc SQL over a session's history instead of re-parsing JSONL. Losing
// or deleting the database file is always safe — RebuildSession
// repopulates it by replaying internal/wal.
//
// Its Open/schema shape follows the teacher's internal/store/sqlite.go:
// a package-level schema constant applied with CREATE TABLE IF NOT EXISTS,
// a Store wrapping *sql.DB, and an Open(path) that creates the parent
// directory before calling sql.Open.
package activitystore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    session_id   TEXT NOT NULL,
    position     INTEGER NOT NULL,
    entry_type   TEXT NOT NULL,
    timestamp    TEXT NOT NULL,
    description  TEXT,
    summary_json TEXT,
    PRIMARY KEY (session_id, position)
);

CREATE INDEX IF NOT EXISTS idx_entries_session_time ON entries(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);
`

// Store is the SQLite-backed activity projection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("activitystore: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("activitystore: open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("activitystore: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts one row describing a WAL entry at (sessionID, position).
// Re-recording the same position (e.g. after a rebuild) overwrites it.
func (s *Store) Record(sessionID string, position int, entryType, timestamp, description, summaryJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO entries (session_id, position, entry_type, timestamp, description, summary_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, position) DO UPDATE SET
			entry_type=excluded.entry_type,
			timestamp=excluded.timestamp,
			description=excluded.description,
			summary_json=excluded.summary_json`,
		sessionID, position, entryType, timestamp, description, summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("activitystore: record entry %s#%d: %w", sessionID, position, err)
	}
	return nil
}

// Record is one row of a session's activity history.
type Record struct {
	Position    int
	EntryType   string
	Timestamp   string
	Description string
	SummaryJSON string
}

// History returns every recorded entry for sessionID in position order.
func (s *Store) History(sessionID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT position, entry_type, timestamp, description, summary_json
		FROM entries WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("activitystore: query history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var description, summaryJSON sql.NullString
		if err := rows.Scan(&r.Position, &r.EntryType, &r.Timestamp, &description, &summaryJSON); err != nil {
			return nil, fmt.Errorf("activitystore: scan row: %w", err)
		}
		r.Description = description.String
		r.SummaryJSON = summaryJSON.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// DropSession removes every row recorded for sessionID, used when a session
// is closed so the projection never outlives the WAL it was derived from.
func (s *Store) DropSession(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("activitystore: drop session %s: %w", sessionID, err)
	}
	return nil
}
