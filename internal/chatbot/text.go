package chatbot

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText turns a rendered message into terminal text: one line per
// paragraph line, list item or table row, with footnotes after a blank
// line.
func PlainText(fragment string) string {
	body, notes := textParts(fragment)
	out := strings.Join(body, "\n")
	if len(notes) > 0 {
		if out != "" {
			out += "\n\n"
		}
		out += strings.Join(notes, "\n")
	}
	return out
}

// textParts splits a rendered message into its body lines and its
// footnote lines.
func textParts(fragment string) (body, notes []string) {
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Split(fragment, "\n"), nil
	}

	footnotes := doc.Find(".bloom-footnotes")
	footnotes.Find(".bloom-footnote-item").Each(func(_ int, item *goquery.Selection) {
		notes = append(notes, item.Text())
	})
	footnotes.Remove()

	var b strings.Builder
	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		writeBlock(&b, s)
	})
	if text := strings.TrimRight(b.String(), "\n"); text != "" {
		body = strings.Split(text, "\n")
	}
	return body, notes
}

// settledLines reports how many leading body lines of a message that is
// still streaming will not change as more text arrives. The last line may
// still grow, raw "|" rows may yet become a table and everything after an
// unclosed fence may yet become a code block.
func settledLines(lines []string) int {
	n := len(lines) - 1
	for i := 0; i < n; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			n = i
			break
		}
	}
	for n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "|") {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

func writeBlock(b *strings.Builder, s *goquery.Selection) {
	switch name := goquery.NodeName(s); name {
	case "p":
		b.WriteString(inlineText(s))
		b.WriteString("\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(name[1:])
		b.WriteString(strings.Repeat("#", level) + " " + inlineText(s) + "\n")
	case "ul", "ol":
		s.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			marker := "- "
			if name == "ol" {
				marker = strconv.Itoa(i+1) + ". "
			}
			b.WriteString(marker + inlineText(li) + "\n")
		})
	case "pre":
		b.WriteString(strings.TrimRight(s.Text(), "\n") + "\n")
	case "div":
		switch {
		case s.HasClass("bloom-table-container"):
			s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
				var cells []string
				tr.Children().Each(func(_ int, cell *goquery.Selection) {
					cells = append(cells, inlineText(cell))
				})
				b.WriteString(strings.Join(cells, " | ") + "\n")
			})
		default:
			s.Children().Each(func(_ int, child *goquery.Selection) {
				writeBlock(b, child)
			})
			if s.Children().Length() == 0 {
				b.WriteString(s.Text() + "\n")
			}
		}
	default:
		b.WriteString(s.Text() + "\n")
	}
}

func inlineText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "br":
			b.WriteString("\n")
		case "#text":
			b.WriteString(c.Text())
		default:
			b.WriteString(inlineText(c))
		}
	})
	return b.String()
}
