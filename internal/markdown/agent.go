package markdown

import "strings"

const agentPrefix = "[BLOOM Agent"

// IsAgentResponse reports whether text was produced by the backend agent
// rather than the plain document chat.
func IsAgentResponse(text string) bool {
	return strings.HasPrefix(text, agentPrefix)
}

// RenderResponse renders text like Render, except that an agent response
// of the form "[BLOOM Agent ...]\n\nbody" gets a header block for the
// bracketed title and a content block for the rendered body.
func (r *Renderer) RenderResponse(text string) string {
	if !IsAgentResponse(text) {
		return r.Render(text)
	}
	end := strings.Index(text, "]\n\n")
	if end <= 0 {
		return r.Render(text)
	}

	title := text[:end+1]
	body := text[end+3:]
	return `<div class="bloom-agent-header">` + escapeHTML(title) + `</div>` +
		`<div class="bloom-agent-content">` + r.Render(body) + `</div>`
}
