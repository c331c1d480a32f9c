// Package deliverylog keeps a per-delivery audit trail in SQLite. The
// ledger records only the latest successful state per path; this log
// records every attempt outcome so the admin surface can show what
// actually happened, and can be cleared independently of the ledger.
package deliverylog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded delivery attempt.
type Entry struct {
	ID         int64
	Path       string
	Hash       string
	SequenceID int64
	Parts      int
	Size       int64
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}

// Outcome values stored per entry.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Store manages the audit database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the delivery log database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    hash TEXT NOT NULL,
    sequence_id INTEGER NOT NULL DEFAULT 0,
    parts INTEGER NOT NULL DEFAULT 1,
    size INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_deliveries_path ON deliveries(path);
CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init delivery log schema: %w", err)
	}
	return nil
}

// Record appends one attempt outcome.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (path, hash, sequence_id, parts, size, outcome, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Path, entry.Hash, entry.SequenceID, entry.Parts, entry.Size,
		entry.Outcome, entry.Detail, createdAt)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, hash, sequence_id, parts, size, outcome, detail, created_at
FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Path, &entry.Hash, &entry.SequenceID,
			&entry.Parts, &entry.Size, &entry.Outcome, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}
	return entries, nil
}

// Clear removes all recorded entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deliveries"); err != nil {
		return fmt.Errorf("clear delivery log: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
