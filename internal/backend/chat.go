package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ChatRequest represents the request body for POST /chat
type ChatRequest struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id"`
	ModuleCode string `json:"module_code,omitempty"`
}

// ChatResponse represents the response from POST /chat
type ChatResponse struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources,omitempty"`
}

// Source is a document chunk the backend used to answer. Relevance is a
// distance: lower is more relevant.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Relevance  float64 `json:"relevance"`
	ModuleCode string  `json:"module_code,omitempty"`
}

// HistoryMessage is one entry of the backend's conversation memory.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Module is a course grouping documents can be scoped to.
type Module struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// Chat sends a query to the document assistant.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, "bloom.chat", http.MethodPost, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearChat drops the backend's conversation memory for a session.
func (c *Client) ClearChat(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, "bloom.chat.clear", http.MethodPost, "/chat/clear", sessionRequest{SessionID: sessionID}, nil)
}

// History returns at most max recent messages the backend remembers for a
// session.
func (c *Client) History(ctx context.Context, sessionID string, max int) ([]HistoryMessage, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("max_messages", strconv.Itoa(max))

	var resp struct {
		History []HistoryMessage `json:"history"`
	}
	if err := c.doJSON(ctx, "bloom.chat.history", http.MethodGet, "/chat/history?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// Modules lists the modules available for scoping queries.
func (c *Client) Modules(ctx context.Context) ([]Module, error) {
	var resp struct {
		Modules []Module `json:"modules"`
	}
	if err := c.doJSON(ctx, "bloom.chat.modules", http.MethodGet, "/chat/modules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}
