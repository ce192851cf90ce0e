package book

import (
	"regexp"
	"strings"

	"github.com/metcalfc/leaf/internal/markup"
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// FromText builds a single-chapter book from plain text. Paragraphs are
// separated by blank lines.
func FromText(title, text string) *Book {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var sb strings.Builder
	for _, para := range blankLines.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		sb.WriteString(markup.Wrap("p", strings.Join(strings.Fields(para), " ")))
		sb.WriteByte('\n')
	}
	return &Book{
		ID:    title,
		Title: title,
		Chapters: []Chapter{{
			ID:      "text",
			Title:   title,
			Content: sb.String(),
		}},
	}
}
