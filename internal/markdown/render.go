// Package markdown turns bot responses into HTML for the conversation view.
//
// Rendering is a fixed pipeline: citations are pulled out into placeholder
// tokens, the remaining text is scanned line by line into blocks, inline
// syntax is expanded inside each block, the placeholders are swapped for
// numbered footnote markers and the result is sanitized. The pipeline is
// total: truncated input (a half-streamed message) degrades to best-effort
// HTML and never fails.
package markdown

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Renderer renders markdown with an optional sanitizing policy. A Renderer
// is safe for concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPolicy replaces the default sanitizing policy.
func WithPolicy(p *bluemonday.Policy) Option {
	return func(r *Renderer) {
		r.policy = p
	}
}

// WithoutSanitizer disables the final sanitizing pass.
func WithoutSanitizer() Option {
	return func(r *Renderer) {
		r.policy = nil
	}
}

// New creates a Renderer that sanitizes with DefaultPolicy unless told
// otherwise.
func New(opts ...Option) *Renderer {
	r := &Renderer{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var std = New()

// Render converts text to HTML using the default renderer.
func Render(text string) string {
	return std.Render(text)
}

// RenderResponse renders a bot response, giving agent responses their
// header treatment.
func RenderResponse(text string) string {
	return std.RenderResponse(text)
}

// Render converts text to HTML. Footnote numbers are recomputed from
// scratch on every call.
func (r *Renderer) Render(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	body, citations := ExtractCitations(text)
	out := renderBlocks(scan(body))
	out = insertFootnotes(out, citations)

	if r.policy != nil {
		out = r.policy.Sanitize(out)
	}
	return out
}

type blockKind int

const (
	blockHTML blockKind = iota
	blockParagraph
)

type block struct {
	kind  blockKind
	html  string
	lines []string
}

func renderBlocks(tokens []token) string {
	var (
		blocks []block
		para   []string

		// blank-line separated segments, whatever blocks they hold
		segments  int
		inSegment bool
	)
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{kind: blockParagraph, lines: para})
			para = nil
		}
	}
	emit := func(html string) {
		flush()
		blocks = append(blocks, block{kind: blockHTML, html: html})
	}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.kind == tokenBlank {
			inSegment = false
		} else if !inSegment {
			segments++
			inSegment = true
		}

		switch t.kind {
		case tokenBlank:
			flush()

		case tokenHeading:
			emit(fmt.Sprintf("<h%d>%s</h%d>", t.level, renderInline(t.text), t.level))

		case tokenFence:
			if t.closed {
				emit(codeBlock("", t.inlineBody))
				continue
			}
			end := closingFence(tokens, i+1)
			if end < 0 {
				// unterminated: keep the text as typed
				para = append(para, t.raw)
				continue
			}
			lines := make([]string, 0, end-i-1)
			for _, inner := range tokens[i+1 : end] {
				lines = append(lines, inner.raw)
			}
			emit(codeBlock(t.text, strings.Join(lines, "\n")))
			i = end

		case tokenTableRow:
			if n := tableSpan(tokens, i); n > 0 {
				emit(renderTable(tokens[i : i+n]))
				i += n - 1
				continue
			}
			para = append(para, t.raw)

		case tokenBullet, tokenOrdered:
			j := i
			for j < len(tokens) && tokens[j].kind == t.kind {
				j++
			}
			emit(renderList(t.kind, tokens[i:j]))
			i = j - 1

		default:
			para = append(para, t.raw)
		}
	}
	flush()

	var out strings.Builder
	for _, b := range blocks {
		if b.kind == blockHTML {
			out.WriteString(b.html)
			continue
		}
		text := renderInline(strings.Join(b.lines, "\n"))
		if segments == 1 {
			text = strings.ReplaceAll(text, "\n", "<br>")
		}
		out.WriteString("<p>")
		out.WriteString(text)
		out.WriteString("</p>")
	}
	return out.String()
}

func codeBlock(lang, code string) string {
	if lang != "" {
		return `<pre><code class="language-` + lang + `">` + escapeHTML(code) + "</code></pre>"
	}
	return "<pre><code>" + escapeHTML(code) + "</code></pre>"
}

func renderList(kind tokenKind, items []token) string {
	tag := "ul"
	if kind == tokenOrdered {
		tag = "ol"
	}
	var b strings.Builder
	b.WriteString("<" + tag + ">")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(renderInline(item.text))
		b.WriteString("</li>")
	}
	b.WriteString("</" + tag + ">")
	return b.String()
}

func renderTable(rows []token) string {
	header := splitCells(rows[0].text)
	seps := splitCells(rows[1].text)
	align := make([]string, len(header))
	for i := range align {
		if i < len(seps) {
			align[i] = cellAlignment(seps[i])
		}
	}

	cell := func(b *strings.Builder, tag string, col int, content string) {
		b.WriteString("<" + tag)
		if col < len(align) && align[col] != "" {
			b.WriteString(` align="` + align[col] + `"`)
		}
		b.WriteString(">")
		b.WriteString(renderInline(content))
		b.WriteString("</" + tag + ">")
	}

	var b strings.Builder
	b.WriteString(`<div class="bloom-table-container"><table><thead><tr>`)
	for i, h := range header {
		cell(&b, "th", i, h)
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows[2:] {
		cells := splitCells(row.text)
		b.WriteString("<tr>")
		for i := range header {
			content := ""
			if i < len(cells) {
				content = cells[i]
			}
			cell(&b, "td", i, content)
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></div>")
	return b.String()
}
