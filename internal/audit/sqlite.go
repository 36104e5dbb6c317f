package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bterminal/bterminal/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_audit (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    ended_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_session_audit_open ON session_audit(session_id) WHERE ended_at IS NULL;
`

// SQLiteStore is an audit Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the journal at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SessionStarted implements Store.
func (s *SQLiteStore) SessionStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_audit (session_id, created_at) VALUES (?, ?)`,
		id, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded implements Store. Only the newest open row for id is closed.
func (s *SQLiteStore) SessionEnded(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_audit SET ended_at = ?
		 WHERE seq = (SELECT MAX(seq) FROM session_audit WHERE session_id = ? AND ended_at IS NULL)`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]types.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at, ended_at FROM session_audit ORDER BY seq DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var (
			rec     types.AuditRecord
			created string
			ended   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &created, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		if ended.Valid {
			t, err := time.Parse(time.RFC3339Nano, ended.String)
			if err != nil {
				return nil, fmt.Errorf("invalid ended_at %q: %w", ended.String, err)
			}
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
