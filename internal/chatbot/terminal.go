package chatbot

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"sync"

	"Bloom/internal/stream"
)

type transcriptEntry struct {
	role string
	html string
}

// Terminal draws the conversation on a text stream. Bot messages are
// printed line by line as they become stable while streaming.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	thinking   bool
	transcript []*transcriptEntry
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// UserMessage records a user message. The user already sees what they
// typed, so nothing is echoed.
func (t *Terminal) UserMessage(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transcript = append(t.transcript, &transcriptEntry{
		role: "user",
		html: "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>",
	})
}

// BotMessage starts a new bot message.
func (t *Terminal) BotMessage(string) stream.Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := &transcriptEntry{role: "bot"}
	t.transcript = append(t.transcript, entry)
	return &terminalTarget{term: t, entry: entry}
}

// SetThinking prints a waiting line while the backend is answering.
func (t *Terminal) SetThinking(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on && !t.thinking {
		fmt.Fprint(t.out, "Bot is thinking...\r")
	}
	if !on && t.thinking {
		fmt.Fprint(t.out, "\r                  \r")
	}
	t.thinking = on
}

// Clear forgets the transcript.
func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transcript = nil
	fmt.Fprintln(t.out, "--- conversation cleared ---")
}

// Printf writes a line of command output.
func (t *Terminal) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Export writes the transcript as a standalone HTML page.
func (t *Terminal) Export(path string) error {
	t.mu.Lock()
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>BLOOM conversation</title></head><body>\n")
	for _, e := range t.transcript {
		fmt.Fprintf(&b, "<div class=\"bloom-message bloom-%s-message\">%s</div>\n", e.role, e.html)
	}
	b.WriteString("</body></html>\n")
	t.mu.Unlock()

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to export conversation: %w", err)
	}
	return nil
}

type terminalTarget struct {
	term    *Terminal
	entry   *transcriptEntry
	started bool
	printed int // body lines already written
	body    []string
	notes   []string
}

// Render prints the body lines of html that can no longer change. Lines
// are never reprinted; footnotes wait until streaming ends.
func (tt *terminalTarget) Render(fragment string) {
	tt.term.mu.Lock()
	defer tt.term.mu.Unlock()

	tt.entry.html = fragment
	tt.body, tt.notes = textParts(fragment)
	tt.flushLocked(settledLines(tt.body))
}

func (tt *terminalTarget) SetStreaming(on bool) {
	if on {
		return
	}
	tt.term.mu.Lock()
	defer tt.term.mu.Unlock()
	tt.flushLocked(len(tt.body))
	if len(tt.notes) > 0 {
		if tt.started {
			tt.writeLocked("")
		}
		for _, note := range tt.notes {
			tt.writeLocked(note)
		}
		tt.notes = nil
	}
	if tt.started {
		fmt.Fprintln(tt.term.out)
	}
}

func (tt *terminalTarget) flushLocked(upTo int) {
	for ; tt.printed < upTo; tt.printed++ {
		tt.writeLocked(tt.body[tt.printed])
	}
}

func (tt *terminalTarget) writeLocked(line string) {
	if !tt.started {
		fmt.Fprint(tt.term.out, "Bot: ")
		tt.started = true
	}
	fmt.Fprintln(tt.term.out, line)
}
