package panel

import (
	"context"
	"fmt"
	"math"
	"strings"

	"Bloom/internal/backend"
	"Bloom/internal/markdown"
	"Bloom/internal/session"
	"Bloom/internal/store"
)

// Fallback messages shown when the backend cannot answer.
const (
	ChatErrorMessage       = "Sorry, I encountered an error. Please try again."
	ConnectionErrorMessage = "Sorry, I encountered an error. Please check your connection and try again."
	ClearedMessage         = "Chat history cleared. What would you like to know about your documents?"
	ClearErrorMessage      = "Sorry, I couldn't clear the chat history. Please try again."
	ClearConnectionMessage = "Sorry, I encountered an error trying to clear the chat history."
)

// AddUserMessage shows text as a user message.
func (c *Controller) AddUserMessage(ctx context.Context, text string) {
	c.view.UserMessage(text)
	c.record(ctx, session.RoleUser, text)
}

// AddBotMessage shows text as a bot message. Any message still streaming
// is finalized first. Agent responses render at once; everything else is
// streamed. The returned channel closes when the message is complete.
func (c *Controller) AddBotMessage(text string) <-chan struct{} {
	c.streamer.Finalize()
	c.record(context.Background(), session.RoleBot, text)

	target := c.view.BotMessage(text)
	if markdown.IsAgentResponse(text) {
		target.Render(c.renderer.RenderResponse(text))
		target.SetStreaming(false)
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.streamer.Start(target, text)
}

// SendMessage asks the backend about text and streams the answer. Blank
// text is ignored. Failures are shown as a fallback bot message and
// returned; they are never retried.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.AddUserMessage(ctx, text)

	c.view.SetThinking(true)
	resp, err := c.client.Chat(ctx, backend.ChatRequest{
		Query:      text,
		SessionID:  c.SessionID(),
		ModuleCode: c.Module(),
	})
	c.view.SetThinking(false)

	if err != nil {
		c.logger.Error("chat request failed", "session_id", c.SessionID(), "error", err)
		if isAPIError(err) {
			c.AddBotMessage(ChatErrorMessage)
		} else {
			c.AddBotMessage(ConnectionErrorMessage)
		}
		return fmt.Errorf("chat: %w", err)
	}

	c.mu.Lock()
	c.sources = resp.Sources
	c.mu.Unlock()

	c.AddBotMessage(resp.Response)
	return nil
}

// ClearChat clears the conversation on the backend and locally, then
// greets again.
func (c *Controller) ClearChat(ctx context.Context) error {
	sessionID := c.SessionID()
	if err := c.client.ClearChat(ctx, sessionID); err != nil {
		c.logger.Error("failed to clear chat", "session_id", sessionID, "error", err)
		if isAPIError(err) {
			c.AddBotMessage(ClearErrorMessage)
		} else {
			c.AddBotMessage(ClearConnectionMessage)
		}
		return fmt.Errorf("clear chat: %w", err)
	}

	c.streamer.Finalize()
	if err := c.store.ClearHistory(ctx, sessionID); err != nil {
		c.logger.Error("failed to clear stored history", "session_id", sessionID, "error", err)
	}

	c.mu.Lock()
	c.sources = nil
	c.mu.Unlock()

	c.view.Clear()
	c.AddBotMessage(ClearedMessage)
	return nil
}

// NewSession starts a fresh session id and clears the view.
func (c *Controller) NewSession(ctx context.Context) error {
	c.streamer.Finalize()

	id := session.NewID(c.now())
	if err := c.store.Set(ctx, store.KeySessionID, id); err != nil {
		return err
	}
	if err := c.store.EnsureSession(ctx, id, c.now()); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = id
	c.sources = nil
	c.mu.Unlock()

	c.logger.Info("started new session", "session_id", id)
	c.view.Clear()
	c.AddBotMessage(WelcomeMessage)
	return nil
}

// SourceInfo describes one source of the latest answer.
type SourceInfo struct {
	Name       string
	ModuleCode string
	Relevance  int // percent
}

// Sources returns the sources of the latest answer. Relevance is the
// backend's distance turned into a percentage: round((1-r)*100).
func (c *Controller) Sources() []SourceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]SourceInfo, 0, len(c.sources))
	for _, src := range c.sources {
		infos = append(infos, SourceInfo{
			Name:       c.documentNameLocked(src),
			ModuleCode: src.ModuleCode,
			Relevance:  int(math.Round((1 - src.Relevance) * 100)),
		})
	}
	return infos
}

func (c *Controller) documentNameLocked(src backend.Source) string {
	for _, doc := range c.documents {
		if doc.ID == src.DocumentID {
			return doc.Name
		}
	}
	if src.Filename != "" {
		return src.Filename
	}
	return "Unknown document"
}
