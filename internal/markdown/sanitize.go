package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	bloomClass    = regexp.MustCompile(`^bloom-[a-z-]+$`)
	languageClass = regexp.MustCompile(`^language-[A-Za-z0-9_+-]+$`)
	blankTarget   = regexp.MustCompile(`^_blank$`)
)

// DefaultPolicy is the UGC policy extended with the markup the renderer
// emits: bloom-* classes on div and span, language-* classes on code, and
// target="_blank" on links.
func DefaultPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bloomClass).OnElements("div", "span")
	p.AllowAttrs("class").Matching(languageClass).OnElements("code")
	p.AllowAttrs("target").Matching(blankTarget).OnElements("a")
	return p
}
