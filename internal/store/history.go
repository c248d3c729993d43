package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"Bloom/internal/session"
)

// EnsureSession records a session's start time if it is not known yet.
func (s *Store) EnsureSession(ctx context.Context, id string, start time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, start_time) VALUES (?, ?)",
		id, start,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// AppendMessage adds msg to the end of a session's history.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg session.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if err := s.EnsureSession(ctx, sessionID, msg.Timestamp); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		sessionID, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ChatHistory returns a session's messages in the order they were appended.
func (s *Store) ChatHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []session.Message{}
	for rows.Next() {
		var msg session.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

// LoadSession returns a stored session with its messages.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	var startTime time.Time
	err := s.db.QueryRowContext(ctx, "SELECT start_time FROM sessions WHERE id = ?", sessionID).Scan(&startTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	messages, err := s.ChatHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &session.Session{ID: sessionID, StartTime: startTime, Messages: messages}, nil
}

// ClearHistory deletes every message of a session.
func (s *Store) ClearHistory(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("chat history cleared", "session_id", sessionID)
	return nil
}
