// Package store persists panel state and chat history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Bloom/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// Keys used by the panel.
const (
	KeyAPIURL      = "apiUrl"
	KeySessionID   = "sessionId"
	KeyIsPanelOpen = "isPanelOpen"
	KeyDocuments   = "documents"
	KeyModule      = "currentModule"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("key not found")

// Store is a key-value store plus per-session chat history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	createKVTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);`

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	for name, stmt := range map[string]string{
		"kv":       createKVTable,
		"sessions": createSessionsTable,
		"messages": createMessagesTable,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s table: %w", name, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get decodes the JSON value stored under key into dst.
func (s *Store) Get(ctx context.Context, key string, dst interface{}) error {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Set stores value under key as JSON.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
		key, string(raw), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// String returns the string stored under key, or def when it is unset.
func (s *Store) String(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.Get(ctx, key, &v)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return v, err
}

// Bool returns the bool stored under key, or false when it is unset.
func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	var v bool
	err := s.Get(ctx, key, &v)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return v, err
}

// Documents returns the saved document list.
func (s *Store) Documents(ctx context.Context) ([]session.Document, error) {
	docs := []session.Document{}
	err := s.Get(ctx, KeyDocuments, &docs)
	if errors.Is(err, ErrNotFound) {
		return []session.Document{}, nil
	}
	return docs, err
}

// SetDocuments replaces the saved document list.
func (s *Store) SetDocuments(ctx context.Context, docs []session.Document) error {
	if docs == nil {
		docs = []session.Document{}
	}
	return s.Set(ctx, KeyDocuments, docs)
}
