package panel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Bloom/internal/backend"
	"Bloom/internal/bus"
	"Bloom/internal/session"
	"Bloom/internal/store"
	"Bloom/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	view *fakeView
	text string
}

func (t *fakeTarget) Render(html string) {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()
	t.view.lastHTML[t.text] = html
}

func (t *fakeTarget) SetStreaming(bool) {}

type fakeView struct {
	mu       sync.Mutex
	user     []string
	bot      []string
	thinking []bool
	clears   int
	lastHTML map[string]string
}

func newFakeView() *fakeView {
	return &fakeView{lastHTML: make(map[string]string)}
}

func (v *fakeView) UserMessage(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.user = append(v.user, text)
}

func (v *fakeView) BotMessage(text string) stream.Target {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bot = append(v.bot, text)
	return &fakeTarget{view: v, text: text}
}

func (v *fakeView) SetThinking(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.thinking = append(v.thinking, on)
}

func (v *fakeView) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clears++
	v.user = nil
	v.bot = nil
}

func (v *fakeView) botMessages() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.bot...)
}

func (v *fakeView) html(text string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastHTML[text]
}

type fixture struct {
	view   *fakeView
	store  *store.Store
	client *backend.Client
	panel  *Controller
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, handler http.HandlerFunc, opts ...Option) *fixture {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "bloom.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	view := newFakeView()
	client := backend.NewClient(srv.URL, backend.WithLogger(discardLogger()))

	opts = append([]Option{
		WithLogger(discardLogger()),
		WithStreamOptions(stream.WithInterval(time.Millisecond), stream.WithSettleDelay(0)),
	}, opts...)
	p := New(view, client, st, opts...)
	require.NoError(t, p.Init(context.Background()))
	t.Cleanup(func() { p.Close() })

	return &fixture{view: view, store: st, client: client, panel: p}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message did not finish streaming")
	}
}

func TestInit_CreatesAndPersistsSession(t *testing.T) {
	f := newFixture(t, http.NotFound)
	ctx := context.Background()

	id := f.panel.SessionID()
	assert.Regexp(t, `^bloom_\d+_[0-9a-z]{9}$`, id)

	stored, err := f.store.String(ctx, store.KeySessionID, "")
	require.NoError(t, err)
	assert.Equal(t, id, stored)

	again := New(newFakeView(), f.client, f.store, WithLogger(discardLogger()))
	require.NoError(t, again.Init(ctx))
	assert.Equal(t, id, again.SessionID())
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is a monad?", req.Query)
		assert.Equal(t, "CST3350", req.ModuleCode)
		assert.NotEmpty(t, req.SessionID)
		w.Write([]byte(`{"response":"A **burrito** (Week1 File.pdf)","sources":[{"document_id":"d1","relevance":0.25,"module_code":"CST3350"},{"document_id":"zz","filename":"other.pdf","relevance":0.5}]}`))
	}, WithModule("CST3350"))
	ctx := context.Background()

	f.panel.documents = []session.Document{{ID: "d1", Name: "Week1 File.pdf", ModuleCode: "CST3350"}}

	require.NoError(t, f.panel.SendMessage(ctx, "  what is a monad?  "))
	require.Eventually(t, func() bool { return !f.panel.Streaming() }, 5*time.Second, time.Millisecond)

	assert.Equal(t, []string{"what is a monad?"}, f.view.user)
	assert.Equal(t, []bool{true, false}, f.view.thinking)

	answer := "A **burrito** (Week1 File.pdf)"
	require.Equal(t, []string{answer}, f.view.botMessages())
	html := f.view.html(answer)
	assert.Contains(t, html, "<strong>burrito</strong>")
	assert.Contains(t, html, "bloom-footnotes")

	assert.Equal(t, []SourceInfo{
		{Name: "Week1 File.pdf", ModuleCode: "CST3350", Relevance: 75},
		{Name: "other.pdf", Relevance: 50},
	}, f.panel.Sources())

	history, err := f.store.ChatHistory(ctx, f.panel.SessionID())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, session.RoleUser, history[0].Role)
	assert.Equal(t, answer, history[1].Content)
}

func TestSendMessage_BlankIgnored(t *testing.T) {
	called := false
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	require.NoError(t, f.panel.SendMessage(context.Background(), "   "))
	assert.False(t, called)
	assert.Empty(t, f.view.user)
}

func TestSendMessage_APIError(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"boom"}`))
	})

	err := f.panel.SendMessage(context.Background(), "hi")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{ChatErrorMessage}, f.view.botMessages())
	assert.Equal(t, []bool{true, false}, f.view.thinking)
}

func TestSendMessage_ConnectionError(t *testing.T) {
	f := newFixture(t, http.NotFound)
	f.client.SetBaseURL("http://127.0.0.1:1")

	require.Error(t, f.panel.SendMessage(context.Background(), "hi"))
	assert.Equal(t, []string{ConnectionErrorMessage}, f.view.botMessages())
}

func TestAddBotMessage_AgentResponseRendersAtOnce(t *testing.T) {
	f := newFixture(t, http.NotFound)
	text := "[BLOOM Agent: Summary]\n\n- point"

	done := f.panel.AddBotMessage(text)
	select {
	case <-done:
	default:
		t.Fatal("agent response should complete immediately")
	}
	assert.Contains(t, f.view.html(text), "bloom-agent-header")
	assert.False(t, f.panel.Streaming())
}

func TestAddBotMessage_FinalRenderMatchesRenderer(t *testing.T) {
	f := newFixture(t, http.NotFound)
	text := "# Title\n\nSome **bold** and *italic* text."

	waitDone(t, f.panel.AddBotMessage(text))
	assert.Equal(t, f.panel.renderer.Render(text), f.view.html(text))
}

func TestUploadFile(t *testing.T) {
	modulesCalls := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/documents/upload":
			assert.Equal(t, "CST3350", r.URL.Query().Get("module_code"))
			w.Write([]byte(`{"document_id":"doc-1","filename":"Week1.PDF","module_code":"CST3350"}`))
		case "/chat/modules":
			modulesCalls++
			w.Write([]byte(`{"modules":[{"code":"CST3350"}]}`))
		default:
			http.NotFound(w, r)
		}
	}, WithModule("CST3350"))
	ctx := context.Background()

	b := bus.NewLocal(discardLogger())
	defer f.panel.Attach(b)()
	var published []session.Document
	b.Subscribe(bus.ActionDocumentsUpdated, func(_ context.Context, msg bus.Message) {
		require.NoError(t, msg.Decode(&published))
	})

	path := filepath.Join(t.TempDir(), "Week1.PDF")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	require.NoError(t, f.panel.UploadFile(ctx, path))

	assert.Equal(t, []string{
		"Uploading Week1.PDF...",
		"Successfully processed Week1.PDF to module CST3350. What would you like to know about it?",
	}, f.view.botMessages())

	docs := f.panel.Documents("")
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "CST3350", docs[0].ModuleCode)

	stored, err := f.store.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	require.Len(t, published, 1)
	assert.Equal(t, "doc-1", published[0].ID)
	assert.Equal(t, 1, modulesCalls)
}

func TestUploadFile_Unsupported(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called")
	})

	err := f.panel.UploadFile(context.Background(), "/tmp/notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Equal(t, []string{"Sorry, I can't process notes.txt. Only PDF and DOCX files are supported."}, f.view.botMessages())
}

func TestUploadFile_Rejected(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Corrupt file"}`))
	})

	path := filepath.Join(t.TempDir(), "bad.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	require.Error(t, f.panel.UploadFile(context.Background(), path))
	assert.Equal(t, []string{
		"Uploading bad.docx...",
		"Sorry, I couldn't process bad.docx. Error: Corrupt file",
	}, f.view.botMessages())
	assert.Empty(t, f.panel.Documents(""))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.pdf"))
	assert.True(t, Supported("B.DOCX"))
	assert.False(t, Supported("c.doc"))
	assert.False(t, Supported("pdf"))
}

func TestDeleteDocumentAndFilter(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/documents/d1" {
			return
		}
		http.NotFound(w, r)
	})
	ctx := context.Background()

	f.panel.documents = []session.Document{
		{ID: "d1", Name: "a.pdf", ModuleCode: "CST3350"},
		{ID: "d2", Name: "b.pdf", ModuleCode: "MDX101"},
		{ID: "d3", Name: "c.pdf"},
	}
	assert.Len(t, f.panel.Documents("CST3350"), 1)
	assert.Len(t, f.panel.Documents(""), 3)

	require.NoError(t, f.panel.DeleteDocument(ctx, "d1"))
	assert.Empty(t, f.panel.Documents("CST3350"))
	assert.Len(t, f.panel.Documents(""), 2)

	err := f.panel.DeleteDocument(ctx, "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.Len(t, f.panel.Documents(""), 2)
}

func TestLoadModules_Cached(t *testing.T) {
	calls := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"modules":[{"code":"CST3350"},{"code":"MDX101"}]}`))
	})
	ctx := context.Background()

	modules, err := f.panel.LoadModules(ctx)
	require.NoError(t, err)
	assert.Len(t, modules, 2)

	_, err = f.panel.LoadModules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSelectModule(t *testing.T) {
	f := newFixture(t, http.NotFound)
	ctx := context.Background()

	f.panel.SelectModule(ctx, "CST3350")
	f.panel.SelectModule(ctx, "")

	assert.Equal(t, []string{
		"Switched to module CST3350. You can now ask questions about this module's content.",
		"Switched to all documents mode. You can ask about any document in the system.",
	}, f.view.botMessages())
	assert.Equal(t, "", f.panel.Module())

	f.panel.SelectModule(ctx, "MDX101")
	stored, err := f.store.String(ctx, store.KeyModule, "")
	require.NoError(t, err)
	assert.Equal(t, "MDX101", stored)
}

func TestClearChat(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat":
			w.Write([]byte(`{"response":"ok","sources":[{"document_id":"d","relevance":0.1}]}`))
		case "/chat/clear":
			w.Write([]byte(`{"status":"success"}`))
		}
	})
	ctx := context.Background()

	require.NoError(t, f.panel.SendMessage(ctx, "hi"))
	require.NoError(t, f.panel.ClearChat(ctx))

	assert.Equal(t, 1, f.view.clears)
	assert.Equal(t, []string{ClearedMessage}, f.view.botMessages())
	assert.Empty(t, f.panel.Sources())

	history, err := f.store.ChatHistory(ctx, f.panel.SessionID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ClearedMessage, history[0].Content)
}

func TestClearChat_Failure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	require.Error(t, f.panel.ClearChat(context.Background()))
	assert.Zero(t, f.view.clears)
	assert.Equal(t, []string{ClearErrorMessage}, f.view.botMessages())
}

func TestNewSessionAndRestore(t *testing.T) {
	f := newFixture(t, http.NotFound)
	ctx := context.Background()

	first := f.panel.SessionID()
	require.NoError(t, f.panel.NewSession(ctx))
	assert.NotEqual(t, first, f.panel.SessionID())
	assert.Equal(t, []string{WelcomeMessage}, f.view.botMessages())

	f.panel.AddUserMessage(ctx, "question")

	view := newFakeView()
	restored := New(view, f.client, f.store, WithLogger(discardLogger()))
	require.NoError(t, restored.Init(ctx))
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"question"}, view.user)
	assert.Equal(t, restored.renderer.Render(WelcomeMessage), view.html(WelcomeMessage))
}

func TestBusActions(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"pong"}`))
	})
	ctx := context.Background()

	b := bus.NewLocal(discardLogger())
	detach := f.panel.Attach(b)
	defer detach()

	var states []bool
	var apiURL string
	b.Subscribe(bus.ActionPanelState, func(_ context.Context, msg bus.Message) {
		var s bus.PanelState
		require.NoError(t, msg.Decode(&s))
		states = append(states, s.Open)
	})
	b.Subscribe(bus.ActionAPIURL, func(_ context.Context, msg bus.Message) {
		var data bus.APIURLData
		require.NoError(t, msg.Decode(&data))
		apiURL = data.APIURL
	})

	publish := func(action string, data interface{}) {
		msg, err := bus.NewMessage(action, data)
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, msg))
	}

	publish(bus.ActionTogglePanel, nil)
	publish(bus.ActionCheckPanel, nil)
	publish(bus.ActionClosePanel, nil)
	assert.Equal(t, []bool{true, true, false}, states)

	open, err := f.store.Bool(ctx, store.KeyIsPanelOpen)
	require.NoError(t, err)
	assert.False(t, open)

	publish(bus.ActionGetAPIURL, nil)
	assert.Equal(t, f.client.BaseURL(), apiURL)

	publish(bus.ActionSendMessage, bus.TextData{Text: "ping"})
	publish(bus.ActionSelectModule, bus.ModuleData{ModuleCode: "CST3350"})
	assert.Equal(t, "CST3350", f.panel.Module())
	assert.Equal(t, []string{"ping"}, f.view.user)
	assert.Equal(t, "pong", f.view.botMessages()[0])

	publish(bus.ActionBotMessage, bus.TextData{Text: "from background"})
	bot := f.view.botMessages()
	assert.Equal(t, "from background", bot[len(bot)-1])

	detach()
	publish(bus.ActionCheckPanel, nil)
	assert.Len(t, states, 3)
}
