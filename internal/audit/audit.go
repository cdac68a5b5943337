// Package audit records dispatched commands in a local SQLite file.
// The log is append-only history; the bridge never reads it back to
// make decisions.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one processed command.
type Entry struct {
	ID        string
	Timestamp time.Time
	SenderID  string
	GroupID   string
	Command   string
	Reply     string
}

// Store is the SQLite-backed audit log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_log (
		id          TEXT PRIMARY KEY,
		sender_id   TEXT NOT NULL,
		group_id    TEXT,
		command     TEXT NOT NULL,
		reply       TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_command_log_time ON command_log(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one entry. Failures are logged, never propagated: an
// unwritable audit log must not break message processing.
func (s *Store) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_log (id, sender_id, group_id, command, reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SenderID, entry.GroupID, entry.Command, entry.Reply, entry.Timestamp,
	)
	if err != nil {
		s.logger.Warn("audit write failed", "err", err)
	}
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, group_id, command, reply, created_at
		 FROM command_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var groupID, reply sql.NullString
		if err := rows.Scan(&e.ID, &e.SenderID, &groupID, &e.Command, &reply, &e.Timestamp); err != nil {
			return nil, err
		}
		e.GroupID = groupID.String
		e.Reply = reply.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
