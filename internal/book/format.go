package book

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/metcalfc/leaf/internal/markup"
)

// charsPerPageHint is the rough page size used for chapter page hints before
// a real layout pass has run.
const charsPerPageHint = 1800

// Format defines a document format that can be normalized into a Book.
type Format interface {
	Name() string
	Extensions() []string
	Open(filename string) (*Book, error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// Open normalizes a file using the registered format for its extension, or the
// plain text fallback.
func Open(filename string) (*Book, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				b, err := f.Open(filename)
				if err != nil {
					return nil, fmt.Errorf("open %s as %s: %w", filename, f.Name(), err)
				}
				return finish(b)
			}
		}
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupported)
	}
	return finish(FromText(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)), string(data)))
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

// finish drops empty chapters and fills page hints.
func finish(b *Book) (*Book, error) {
	if b == nil {
		return nil, ErrNoContent
	}
	chapters := b.Chapters[:0]
	for _, ch := range b.Chapters {
		if strings.TrimSpace(markup.PlainText(ch.Content)) == "" {
			continue
		}
		chapters = append(chapters, ch)
	}
	if len(chapters) == 0 {
		return nil, ErrNoContent
	}
	b.Chapters = chapters
	FillPageHints(b)
	return b, nil
}

// FillPageHints estimates chapter page counts from text length.
func FillPageHints(b *Book) {
	start := 1
	for i := range b.Chapters {
		n := utf8.RuneCountInString(markup.PlainText(b.Chapters[i].Content))
		pages := (n + charsPerPageHint - 1) / charsPerPageHint
		if pages < 1 {
			pages = 1
		}
		b.Chapters[i].PageCountHint = pages
		b.Chapters[i].StartPageHint = start
		start += pages
	}
}
