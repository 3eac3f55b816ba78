// ABOUTME: Transcript rendering to HTML for export
// ABOUTME: Message bodies are markdown; goldmark converts them

package api

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
)

// RenderHTML produces a standalone HTML document for the transcript.
// Message content is treated as markdown.
func (t *Transcript) RenderHTML() (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(t.Title))
	b.WriteString("<meta charset=\"utf-8\">\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(t.Title))

	for _, msg := range t.Messages {
		fmt.Fprintf(&b, "<section class=\"message %s\">\n", html.EscapeString(msg.Role))
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(msg.Role))

		var htmlBuf bytes.Buffer
		if err := goldmark.Convert([]byte(msg.Content), &htmlBuf); err != nil {
			return "", fmt.Errorf("rendering message %s: %w", msg.ID, err)
		}
		b.Write(htmlBuf.Bytes())

		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "<p class=\"attachment\">Attachment: %s (%d bytes)</p>\n",
				html.EscapeString(att.OriginalName), att.FileSize)
		}
		b.WriteString("</section>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
