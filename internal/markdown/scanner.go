package markdown

import (
	"regexp"
	"strings"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenBlank
	tokenHeading
	tokenFence
	tokenBullet
	tokenOrdered
	tokenTableRow
)

// token is one classified input line.
type token struct {
	kind  tokenKind
	raw   string
	text  string // heading or list item body, fence info string
	level int    // heading level

	// set for a fence that opens and closes on the same line
	inlineBody string
	closed     bool
}

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletPattern   = regexp.MustCompile(`^-\s+(.+)$`)
	orderedPattern  = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	tableSepPattern = regexp.MustCompile(`^\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?$`)
	fenceInfo       = regexp.MustCompile(`^[A-Za-z0-9_+-]+$`)
)

const fence = "```"

// scan splits text into lines and classifies each one. It never fails:
// anything unrecognised is a text line.
func scan(text string) []token {
	lines := strings.Split(text, "\n")
	tokens := make([]token, 0, len(lines))
	for _, line := range lines {
		tokens = append(tokens, classify(line))
	}
	return tokens
}

func classify(line string) token {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return token{kind: tokenBlank, raw: line}

	case strings.HasPrefix(trimmed, fence):
		t := token{kind: tokenFence, raw: line}
		rest := trimmed[len(fence):]
		if end := strings.Index(rest, fence); end >= 0 {
			t.closed = true
			t.inlineBody = rest[:end]
			return t
		}
		if fenceInfo.MatchString(rest) {
			t.text = rest
		}
		return t
	}

	if m := headingPattern.FindStringSubmatch(line); m != nil {
		return token{kind: tokenHeading, raw: line, level: len(m[1]), text: m[2]}
	}
	if m := bulletPattern.FindStringSubmatch(trimmed); m != nil {
		return token{kind: tokenBullet, raw: line, text: m[1]}
	}
	if m := orderedPattern.FindStringSubmatch(trimmed); m != nil {
		return token{kind: tokenOrdered, raw: line, text: m[1]}
	}
	if strings.HasPrefix(trimmed, "|") {
		return token{kind: tokenTableRow, raw: line, text: trimmed}
	}
	return token{kind: tokenText, raw: line}
}

// closingFence returns the index of the fence token that closes the block
// opened just before from, or -1.
func closingFence(tokens []token, from int) int {
	for i := from; i < len(tokens); i++ {
		if tokens[i].kind == tokenFence {
			return i
		}
	}
	return -1
}

// tableSpan reports how many tokens starting at i form a complete table:
// a header row, a separator row and at least one body row. Zero means the
// rows at i are not (yet) a table.
func tableSpan(tokens []token, i int) int {
	if i+2 >= len(tokens) {
		return 0
	}
	if tokens[i+1].kind != tokenTableRow || !tableSepPattern.MatchString(tokens[i+1].text) {
		return 0
	}
	n := 2
	for j := i + 2; j < len(tokens) && tokens[j].kind == tokenTableRow; j++ {
		if tableSepPattern.MatchString(tokens[j].text) {
			break
		}
		n++
	}
	if n == 2 {
		return 0
	}
	return n
}

func splitCells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	cells := strings.Split(row, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func cellAlignment(sep string) string {
	left := strings.HasPrefix(sep, ":")
	right := strings.HasSuffix(sep, ":")
	switch {
	case left && right:
		return "center"
	case right:
		return "right"
	case left:
		return "left"
	}
	return ""
}
