package markdown

import (
	"html"
	"net/url"
	"strings"
)

func escapeHTML(s string) string {
	return html.EscapeString(s)
}

// renderInline converts code spans, bold, italic and links inside a single
// block of text. Everything else is escaped.
func renderInline(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	plain := 0
	flush := func(i int) {
		b.WriteString(escapeHTML(s[plain:i]))
	}

	for i := 0; i < len(s); {
		switch s[i] {
		case '`':
			if end := strings.IndexByte(s[i+1:], '`'); end > 0 {
				flush(i)
				b.WriteString("<code>")
				b.WriteString(escapeHTML(s[i+1 : i+1+end]))
				b.WriteString("</code>")
				i += end + 2
				plain = i
				continue
			}

		case '*':
			if strings.HasPrefix(s[i:], "**") {
				rest := s[i+2:]
				if end := strings.IndexByte(rest, '*'); end > 0 && end+1 < len(rest) && rest[end+1] == '*' {
					flush(i)
					b.WriteString("<strong>")
					b.WriteString(renderInline(rest[:end]))
					b.WriteString("</strong>")
					i += end + 4
					plain = i
					continue
				}
			}
			rest := s[i+1:]
			if end := strings.IndexByte(rest, '*'); end > 0 {
				flush(i)
				b.WriteString("<em>")
				b.WriteString(renderInline(rest[:end]))
				b.WriteString("</em>")
				i += end + 2
				plain = i
				continue
			}

		case '[':
			if label, href, n, ok := parseLink(s[i:]); ok {
				flush(i)
				if safeURL(href) {
					b.WriteString(`<a href="`)
					b.WriteString(escapeHTML(href))
					b.WriteString(`" target="_blank">`)
					b.WriteString(renderInline(label))
					b.WriteString("</a>")
				} else {
					b.WriteString(renderInline(label))
				}
				i += n
				plain = i
				continue
			}
		}
		i++
	}
	flush(len(s))
	return b.String()
}

// parseLink reads "[label](href)" at the start of s and returns the number
// of bytes consumed.
func parseLink(s string) (label, href string, n int, ok bool) {
	closing := strings.IndexByte(s, ']')
	if closing <= 1 || closing+1 >= len(s) || s[closing+1] != '(' {
		return "", "", 0, false
	}
	rest := s[closing+2:]
	end := strings.IndexByte(rest, ')')
	if end <= 0 {
		return "", "", 0, false
	}
	return s[1:closing], rest[:end], closing + 2 + end + 1, true
}

func safeURL(href string) bool {
	if strings.ContainsRune(href, placeholderOpen) {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}
