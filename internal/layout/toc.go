package layout

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/metcalfc/leaf/internal/book"
)

// resolveToc projects the structural TOC onto page numbers. Each entry is
// matched to a chapter by href or id, then by title, then by position in
// traversal order; its page is the first page of that chapter, or 1.
func resolveToc(b *book.Book, pages []PageInfo) []TocEntry {
	if b == nil {
		return nil
	}
	pos := 0
	var convert func([]book.TocEntry) []TocEntry
	convert = func(entries []book.TocEntry) []TocEntry {
		if len(entries) == 0 {
			return nil
		}
		out := make([]TocEntry, 0, len(entries))
		for _, e := range entries {
			ci := resolveChapter(b, e, pos)
			id := e.ID
			if id == "" {
				id = fmt.Sprintf("toc-%d", pos)
			}
			pos++
			page := 1
			if ci >= 0 {
				page = chapterFirstPage(pages, ci)
			}
			out = append(out, TocEntry{
				ID:           id,
				Title:        e.Title,
				Level:        e.Level,
				Page:         page,
				ChapterIndex: ci,
				Children:     convert(e.Children),
			})
		}
		return out
	}
	return convert(b.TOC)
}

func resolveChapter(b *book.Book, e book.TocEntry, pos int) int {
	if href := hrefWithoutFragment(e.Href); href != "" {
		for i, ch := range b.Chapters {
			if ch.ID == href {
				return i
			}
		}
		// Base names only count when no chapter matches exactly.
		for i, ch := range b.Chapters {
			if ch.ID != "" && path.Base(ch.ID) == path.Base(href) {
				return i
			}
		}
	}
	if e.ID != "" {
		for i, ch := range b.Chapters {
			if ch.ID == e.ID {
				return i
			}
		}
	}
	if title := normalizeTitle(e.Title); title != "" {
		for i, ch := range b.Chapters {
			if normalizeTitle(ch.Title) == title {
				return i
			}
		}
		for i, ch := range b.Chapters {
			ct := normalizeTitle(ch.Title)
			if ct != "" && (strings.Contains(ct, title) || strings.Contains(title, ct)) {
				return i
			}
		}
	}
	if pos < len(b.Chapters) {
		return pos
	}
	return -1
}

// chapterFirstPage returns the first page at or after the chapter. Chapters
// without pages resolve to the next chapter's first page.
func chapterFirstPage(pages []PageInfo, chapterIndex int) int {
	for i, p := range pages {
		if p.ChapterIndex >= chapterIndex {
			return i + 1
		}
	}
	if len(pages) > 0 {
		return len(pages)
	}
	return 1
}

func findToc(entries []TocEntry, id string) (TocEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
		if found, ok := findToc(e.Children, id); ok {
			return found, true
		}
	}
	return TocEntry{}, false
}

func hrefWithoutFragment(href string) string {
	if idx := strings.Index(href, "#"); idx != -1 {
		return href[:idx]
	}
	return href
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFKC.String(s)), " "))
}
