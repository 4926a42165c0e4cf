package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var renderPolicy = bluemonday.UGCPolicy()

// TextToHTML renders stored plain text as paragraphs for clients that display HTML.
// Blank lines split paragraphs, single newlines become line breaks. The input is never modified in storage.
func TextToHTML(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(line)
		}

		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}

	return renderPolicy.Sanitize(b.String())
}
