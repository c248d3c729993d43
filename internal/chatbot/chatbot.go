package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"Bloom/internal/backend"
	"Bloom/internal/panel"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ChatBot is the terminal front-end of the panel.
type ChatBot struct {
	panel  *panel.Controller
	client *backend.Client
	term   *Terminal
	in     io.Reader
	logger *slog.Logger
	tracer trace.Tracer
}

// NewChatBot creates a ChatBot reading commands from in.
func NewChatBot(p *panel.Controller, client *backend.Client, term *Terminal, in io.Reader, logger *slog.Logger, tracer trace.Tracer) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("bloom")
	}
	return &ChatBot{
		panel:  p,
		client: client,
		term:   term,
		in:     in,
		logger: logger,
		tracer: tracer,
	}
}

// Run reads lines until EOF, /quit or ctx is done.
func (cb *ChatBot) Run(ctx context.Context) error {
	cb.term.Printf("=== BLOOM ===\n")
	cb.term.Printf("Session: %s\n", cb.panel.SessionID())
	cb.term.Printf("API: %s\n", cb.client.BaseURL())
	if module := cb.panel.Module(); module != "" {
		cb.term.Printf("Module: %s\n", module)
	}
	cb.term.Printf("Type /help for commands, /quit to exit\n\n")

	if _, err := cb.panel.Restore(ctx); err != nil {
		cb.logger.Warn("failed to restore history", "error", err)
	}
	cb.waitIdle(ctx)

	scanner := bufio.NewScanner(cb.in)
	for {
		if ctx.Err() != nil {
			break
		}
		cb.term.Printf("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.term.Printf("Error: %v\n", err)
				cb.logger.Error("command error", "command", input, "error", err)
			}
			cb.waitIdle(ctx)
			if shouldQuit {
				break
			}
			continue
		}

		// failures are shown as bot messages
		_ = cb.panel.SendMessage(ctx, input)
		cb.waitIdle(ctx)
	}

	if err := cb.panel.Close(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cb.term.Printf("Goodbye!\n")
	return nil
}

// waitIdle blocks until the current bot message has finished streaming so
// the prompt is not printed in the middle of it.
func (cb *ChatBot) waitIdle(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for cb.panel.Streaming() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleCommand processes a slash command
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	ctx, span := cb.tracer.Start(ctx, "bloom.command."+strings.TrimPrefix(parts[0], "/"))
	defer span.End()

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if err := cb.panel.NewSession(ctx); err != nil {
			return false, fmt.Errorf("failed to start session: %w", err)
		}
		cb.term.Printf("Started new session: %s\n", cb.panel.SessionID())
		return false, nil

	case "/clear":
		return false, cb.panel.ClearChat(ctx)

	case "/modules":
		modules, err := cb.panel.LoadModules(ctx)
		if err != nil {
			return false, err
		}
		if len(modules) == 0 {
			cb.term.Printf("No modules yet. Upload a document to create one.\n")
			return false, nil
		}
		current := cb.panel.Module()
		cb.term.Printf("\nAvailable modules:\n")
		for i, m := range modules {
			marker := ""
			if m.Code == current {
				marker = " (current)"
			}
			name := ""
			if m.Name != "" && m.Name != m.Code {
				name = " - " + m.Name
			}
			cb.term.Printf("%d. %s%s%s\n", i+1, m.Code, name, marker)
		}
		cb.term.Printf("\n")
		return false, nil

	case "/module":
		code := ""
		if len(parts) > 1 {
			code = parts[1]
		}
		cb.panel.SelectModule(ctx, code)
		return false, nil

	case "/upload":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /upload <path.pdf|path.docx>")
		}
		path := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))
		// the panel has already shown what went wrong
		_ = cb.panel.UploadFile(ctx, path)
		return false, nil

	case "/docs":
		docs := cb.panel.Documents(cb.panel.Module())
		if len(docs) == 0 {
			cb.term.Printf("No documents uploaded yet.\n")
			return false, nil
		}
		cb.term.Printf("\nDocuments:\n")
		for _, doc := range docs {
			module := ""
			if doc.ModuleCode != "" {
				module = " [" + doc.ModuleCode + "]"
			}
			cb.term.Printf("  %s  %s%s  %s\n", doc.ID, doc.Name, module, doc.Timestamp.Format("2006-01-02 15:04"))
		}
		cb.term.Printf("\n")
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <document-id>")
		}
		if err := cb.panel.DeleteDocument(ctx, parts[1]); err != nil {
			return false, err
		}
		cb.term.Printf("Deleted document %s\n", parts[1])
		return false, nil

	case "/sources":
		sources := cb.panel.Sources()
		if len(sources) == 0 {
			cb.term.Printf("No sources for the last answer.\n")
			return false, nil
		}
		cb.term.Printf("\nSources:\n")
		for _, src := range sources {
			module := ""
			if src.ModuleCode != "" {
				module = " (" + src.ModuleCode + ")"
			}
			cb.term.Printf("  %s%s - Relevance: %d%%\n", src.Name, module, src.Relevance)
		}
		cb.term.Printf("\n")
		return false, nil

	case "/export":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /export <file.html>")
		}
		if err := cb.term.Export(parts[1]); err != nil {
			return false, err
		}
		cb.term.Printf("Conversation exported to %s\n", parts[1])
		return false, nil

	case "/scrape":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /scrape <course-url> <module-code> [module name]")
		}
		taskID, err := cb.client.StartScrape(ctx, backend.ScrapeRequest{
			URL:        parts[1],
			ModuleCode: parts[2],
			ModuleName: strings.Join(parts[3:], " "),
			Cookies:    map[string]string{},
		})
		if err != nil {
			return false, fmt.Errorf("failed to start scraping: %w", err)
		}
		cb.term.Printf("Scraping started, task %s\n", taskID)
		return false, nil

	case "/tasks":
		if len(parts) > 1 {
			task, err := cb.client.ScrapeStatus(ctx, parts[1])
			if err != nil {
				return false, err
			}
			cb.printTask(*task)
			return false, nil
		}
		tasks, err := cb.client.ScrapeTasks(ctx)
		if err != nil {
			return false, err
		}
		if len(tasks) == 0 {
			cb.term.Printf("No scraping tasks.\n")
		}
		for _, task := range tasks {
			cb.printTask(task)
		}
		return false, nil

	case "/health":
		health, err := cb.client.Health(ctx)
		if err != nil {
			return false, fmt.Errorf("backend unreachable: %w", err)
		}
		cb.term.Printf("Backend %s is %s (version %s)\n", cb.client.BaseURL(), health.Status, health.Version)
		return false, nil

	case "/help":
		cb.term.Printf("Available commands:\n")
		cb.term.Printf("  /quit, /exit          - Exit\n")
		cb.term.Printf("  /new-session          - Start a new chat session\n")
		cb.term.Printf("  /clear                - Clear the conversation history\n")
		cb.term.Printf("  /modules              - List available modules\n")
		cb.term.Printf("  /module [code]        - Select a module, or all documents without a code\n")
		cb.term.Printf("  /upload <path>        - Upload a PDF or DOCX document\n")
		cb.term.Printf("  /docs                 - List uploaded documents\n")
		cb.term.Printf("  /delete <id>          - Delete a document\n")
		cb.term.Printf("  /sources              - Show sources of the last answer\n")
		cb.term.Printf("  /export <file.html>   - Save the conversation as HTML\n")
		cb.term.Printf("  /scrape <url> <code>  - Scrape a course page into a module\n")
		cb.term.Printf("  /tasks [id]           - Show scraping tasks\n")
		cb.term.Printf("  /health               - Check the backend\n")
		cb.term.Printf("  /help                 - Show this help message\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

func (cb *ChatBot) printTask(task backend.ScrapeTask) {
	cb.term.Printf("  %s  %-10s %3.0f%%  %s  files %d/%d\n",
		task.TaskID, task.Status, task.Progress, task.ModuleCode, task.FilesDownloaded, task.FilesFound)
	for _, e := range task.Errors {
		cb.term.Printf("    error: %s\n", e)
	}
}
