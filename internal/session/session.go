// Package session holds the conversation and document types shared by the
// store, the backend client and the panel.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message represents a single chat message. Messages are never edited once
// appended to a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Messages  []Message `json:"messages"`
}

// Document is an uploaded file the backend has indexed.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	ModuleCode string    `json:"module_code,omitempty"`
}

// NewID returns a session identifier of the form bloom_<unix-ms>_<suffix>,
// where suffix is nine base-36 characters.
func NewID(now time.Time) string {
	u := uuid.New()
	var n uint64
	for _, b := range u[:8] {
		n = n<<8 | uint64(b)
	}
	suffix := strconv.FormatUint(n, 36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("bloom_%d_%s", now.UnixMilli(), suffix[:9])
}

// New starts an empty session.
func New(now time.Time) *Session {
	return &Session{
		ID:        NewID(now),
		StartTime: now,
		Messages:  []Message{},
	}
}
