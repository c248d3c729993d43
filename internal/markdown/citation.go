package markdown

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder delimiters come from the Unicode private use area so they
// never collide with markdown syntax or with HTML escaping.
const (
	placeholderOpen  = '\uE000'
	placeholderClose = '\uE001'
)

var (
	// citationPattern matches a flat parenthesised span that mentions a
	// source document or chunk after some leading text, so a bare
	// "(Chunk 2)" or "(.pdf)" is not a citation. Nested parentheses are not
	// supported.
	citationPattern = regexp.MustCompile(`\(([^()]+(?:File\.pdf|\.docx|\.pdf|Chunk|Chunks)[^()]*)\)`)

	placeholderPattern = regexp.MustCompile(`\x{E000}([0-9]+)\x{E001}`)
)

// ExtractCitations replaces every citation in text with a placeholder token
// and returns the rewritten text together with the citation bodies in
// order of appearance. The placeholder for citations[i] carries i.
func ExtractCitations(text string) (string, []string) {
	text = stripPlaceholderRunes(text)

	var citations []string
	out := citationPattern.ReplaceAllStringFunc(text, func(match string) string {
		citations = append(citations, match[1:len(match)-1])
		return placeholder(len(citations) - 1)
	})
	return out, citations
}

func placeholder(index int) string {
	return string(placeholderOpen) + strconv.Itoa(index) + string(placeholderClose)
}

func stripPlaceholderRunes(text string) string {
	if !strings.ContainsRune(text, placeholderOpen) && !strings.ContainsRune(text, placeholderClose) {
		return text
	}
	return strings.Map(func(r rune) rune {
		if r == placeholderOpen || r == placeholderClose {
			return -1
		}
		return r
	}, text)
}

// insertFootnotes swaps placeholders for numbered markers and appends the
// footnotes block. Nothing is appended when there are no citations.
func insertFootnotes(html string, citations []string) string {
	if len(citations) == 0 {
		return html
	}

	html = placeholderPattern.ReplaceAllStringFunc(html, func(match string) string {
		index, err := strconv.Atoi(strings.Trim(match, string([]rune{placeholderOpen, placeholderClose})))
		if err != nil || index >= len(citations) {
			return ""
		}
		return fmt.Sprintf(`<span class="bloom-footnote-citation">[%d]</span>`, index+1)
	})

	var b strings.Builder
	b.WriteString(html)
	b.WriteString(`<div class="bloom-footnotes">`)
	for i, citation := range citations {
		fmt.Fprintf(&b,
			`<div class="bloom-footnote-item"><span class="bloom-footnote-number">[%d]</span> <span class="bloom-footnote-text">%s</span></div>`,
			i+1, escapeHTML(citation))
	}
	b.WriteString(`</div>`)
	return b.String()
}
