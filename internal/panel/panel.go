// Package panel drives one conversation view: it sends questions to the
// backend, streams answers into the view, and keeps the session, module
// and document state in the store.
package panel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"Bloom/internal/backend"
	"Bloom/internal/bus"
	"Bloom/internal/cache"
	"Bloom/internal/markdown"
	"Bloom/internal/session"
	"Bloom/internal/store"
	"Bloom/internal/stream"
)

const WelcomeMessage = "Hello! I'm BLOOM, your document assistant for Middlesex University. " +
	"Upload course materials, and I'll help you find information quickly."

// View is the surface messages are drawn on.
type View interface {
	// UserMessage appends a message typed by the user.
	UserMessage(text string)
	// BotMessage appends an empty bot message that will show text and
	// returns the target it is rendered into.
	BotMessage(text string) stream.Target
	// SetThinking shows or hides the waiting indicator.
	SetThinking(on bool)
	// Clear removes every message.
	Clear()
}

// Backend is the subset of the API client the panel uses.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	ClearChat(ctx context.Context, sessionID string) error
	Modules(ctx context.Context) ([]backend.Module, error)
	UploadDocument(ctx context.Context, filename string, content io.Reader, moduleCode string) (*backend.UploadResponse, error)
	DeleteDocument(ctx context.Context, documentID string) error
	BaseURL() string
	SetBaseURL(baseURL string)
}

// Store persists panel state between runs.
type Store interface {
	String(ctx context.Context, key, def string) (string, error)
	Bool(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Documents(ctx context.Context) ([]session.Document, error)
	SetDocuments(ctx context.Context, docs []session.Document) error
	EnsureSession(ctx context.Context, id string, start time.Time) error
	AppendMessage(ctx context.Context, sessionID string, msg session.Message) error
	ChatHistory(ctx context.Context, sessionID string) ([]session.Message, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// Controller owns the conversation state behind one View.
type Controller struct {
	view     View
	client   Backend
	store    Store
	streamer *stream.Controller
	renderer *markdown.Renderer
	modules  *cache.Value[[]backend.Module]
	logger   *slog.Logger
	now      func() time.Time

	streamOpts []stream.Option
	modulesTTL time.Duration

	mu        sync.Mutex
	sessionID string
	module    string
	documents []session.Document
	sources   []backend.Source
	panelOpen bool
	bus       bus.Bus
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStreamOptions passes options to the stream controller.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *Controller) {
		c.streamOpts = append(c.streamOpts, opts...)
	}
}

// WithRenderer replaces the default Markdown renderer.
func WithRenderer(r *markdown.Renderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithModulesTTL sets how long the module list is cached.
func WithModulesTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		c.modulesTTL = ttl
	}
}

// WithSession resumes sessionID instead of the stored or a new one.
func WithSession(sessionID string) Option {
	return func(c *Controller) {
		c.sessionID = sessionID
	}
}

// WithModule starts with code selected.
func WithModule(code string) Option {
	return func(c *Controller) {
		c.module = code
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Controller. Call Init before use.
func New(view View, client Backend, st Store, opts ...Option) *Controller {
	c := &Controller{
		view:       view,
		client:     client,
		store:      st,
		renderer:   markdown.New(),
		logger:     slog.Default(),
		now:        time.Now,
		modulesTTL: cache.DefaultModulesTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.modules = cache.New[[]backend.Module](c.modulesTTL)
	streamOpts := append([]stream.Option{
		stream.WithRenderer(c.renderer.Render),
		stream.WithLogger(c.logger),
	}, c.streamOpts...)
	c.streamer = stream.NewController(streamOpts...)
	return c
}

// Init loads the session, module, API URL and documents from the store.
// A session id is created and persisted when none exists.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.sessionID == "" {
		c.sessionID, err = c.store.String(ctx, store.KeySessionID, "")
		if err != nil {
			return err
		}
	}
	if c.sessionID == "" {
		c.sessionID = session.NewID(c.now())
	}
	if err := c.store.Set(ctx, store.KeySessionID, c.sessionID); err != nil {
		return err
	}
	if err := c.store.EnsureSession(ctx, c.sessionID, c.now()); err != nil {
		return err
	}

	if c.module == "" {
		if c.module, err = c.store.String(ctx, store.KeyModule, ""); err != nil {
			return err
		}
	}
	if c.documents, err = c.store.Documents(ctx); err != nil {
		return err
	}
	if c.panelOpen, err = c.store.Bool(ctx, store.KeyIsPanelOpen); err != nil {
		return err
	}

	c.logger.Info("panel initialized",
		"session_id", c.sessionID,
		"module", c.module,
		"documents", len(c.documents),
		"api_url", c.client.BaseURL())
	return nil
}

// Restore redraws the stored history of the current session without
// streaming. With no history it shows the welcome message instead.
func (c *Controller) Restore(ctx context.Context) (int, error) {
	history, err := c.store.ChatHistory(ctx, c.SessionID())
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		c.AddBotMessage(WelcomeMessage)
		return 0, nil
	}

	for _, msg := range history {
		if msg.Role == session.RoleUser {
			c.view.UserMessage(msg.Content)
			continue
		}
		target := c.view.BotMessage(msg.Content)
		target.Render(c.renderer.RenderResponse(msg.Content))
		target.SetStreaming(false)
	}
	return len(history), nil
}

// SessionID returns the current session id.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Module returns the selected module code, empty for all documents.
func (c *Controller) Module() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.module
}

// SetAPIURL points the backend client at url and remembers it.
func (c *Controller) SetAPIURL(ctx context.Context, url string) error {
	c.client.SetBaseURL(url)
	return c.store.Set(ctx, store.KeyAPIURL, c.client.BaseURL())
}

// Streaming reports whether a bot message is still being revealed.
func (c *Controller) Streaming() bool {
	return c.streamer.Active()
}

// Close finalizes any active stream.
func (c *Controller) Close() error {
	return c.streamer.Close()
}

func (c *Controller) record(ctx context.Context, role, text string) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return
	}
	msg := session.Message{Role: role, Content: text, Timestamp: c.now()}
	if err := c.store.AppendMessage(ctx, sessionID, msg); err != nil {
		c.logger.Error("failed to save message", "session_id", sessionID, "role", role, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, action string, data interface{}) {
	c.mu.Lock()
	b := c.bus
	c.mu.Unlock()
	if b == nil {
		return
	}

	msg, err := bus.NewMessage(action, data)
	if err != nil {
		c.logger.Error("failed to build bus message", "action", action, "error", err)
		return
	}
	if err := b.Publish(ctx, msg); err != nil && !errors.Is(err, bus.ErrClosed) {
		c.logger.Warn("failed to publish bus message", "action", action, "error", err)
	}
}

func isAPIError(err error) bool {
	var apiErr *backend.APIError
	return errors.As(err, &apiErr)
}
