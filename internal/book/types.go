// Package book defines the normalized book model shared by the chunk cache and
// the layout engine, and the format adapters that produce it.
package book

import "unicode/utf8"

// Book is a normalized document: ordered chapters of marked-up content plus
// the structural table of contents. It is immutable once produced.
type Book struct {
	ID       string
	Title    string
	Chapters []Chapter
	TOC      []TocEntry
}

// Chapter is the unit of chunking and of layout.
type Chapter struct {
	ID            string
	Title         string
	Content       string // marked-up (HTML) content
	PageCountHint int
	StartPageHint int
}

// TocEntry represents a single entry in a structural table of contents.
type TocEntry struct {
	ID       string
	Title    string
	Href     string
	Level    int
	PageHint int
	Children []TocEntry
}

// Len returns the chapter length in runes.
func (c Chapter) Len() int {
	return utf8.RuneCountInString(c.Content)
}

// TotalLen returns the sum of all chapter lengths in runes.
func (b *Book) TotalLen() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, ch := range b.Chapters {
		n += ch.Len()
	}
	return n
}

// WalkTOC visits structural TOC entries depth-first in document order.
func (b *Book) WalkTOC(fn func(e TocEntry)) {
	if b == nil {
		return
	}
	var walk func([]TocEntry)
	walk = func(entries []TocEntry) {
		for _, e := range entries {
			fn(e)
			walk(e.Children)
		}
	}
	walk(b.TOC)
}
