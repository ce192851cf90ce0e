package session

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/metcalfc/leaf/internal/markup"
)

const snippetRadius = 30

// Match is one occurrence of a search query.
type Match struct {
	Offset       int // global rune offset in chapter content
	ChapterIndex int
	Page         int
	Snippet      string
}

// Search finds case-insensitive occurrences of query in the book text,
// walking the chunk cache in order. Occurrences inside markup tags are
// skipped. A limit of 0 or less returns every match.
func (s *Session) Search(query string, limit int) []Match {
	query = fold(html.EscapeString(strings.TrimSpace(query)))
	if query == "" {
		return nil
	}
	qlen := utf8.RuneCountInString(query)

	var (
		out     []Match
		tail    string
		chapter = -1
		// textInTag is whether tail+chunk starts inside a tag.
		textInTag bool
	)
	total := s.cache.GetTotalChunks(s.Hash)
	step := 4
	for start := 0; start < total; start += step {
		for _, c := range s.cache.GetChunksInRange(s.Hash, start, start+step-1) {
			if c.ChapterIndex != chapter {
				chapter, tail, textInTag = c.ChapterIndex, "", false
			}
			text := tail + c.Content
			lower := fold(text)
			tailRunes := utf8.RuneCountInString(tail)

			from := 0
			for {
				idx := strings.Index(lower[from:], query)
				if idx < 0 {
					break
				}
				idx += from
				from = idx + len(query)
				if insideTag(lower[:idx], textInTag) {
					continue
				}
				at := utf8.RuneCountInString(lower[:idx])
				out = append(out, Match{
					Offset:       c.StartOffset - tailRunes + at,
					ChapterIndex: c.ChapterIndex,
					Page:         s.pageFor(c.ChapterIndex, query),
					Snippet:      snippet(text, runeIndex(text, at), runeIndex(text, at+qlen)),
				})
				if limit > 0 && len(out) >= limit {
					return out
				}
			}

			tail = lastRunes(text, qlen-1)
			textInTag = insideTag(text[:len(text)-len(tail)], textInTag)
		}
	}
	return out
}

// pageFor returns the first page of the chapter whose text contains query,
// or the chapter's first page.
func (s *Session) pageFor(chapterIndex int, query string) int {
	first, count := s.engine.ChapterRange(chapterIndex)
	plain := html.UnescapeString(query)
	for n := first; n < first+count; n++ {
		content, ok := s.engine.PageContent(n)
		if ok && strings.Contains(fold(markup.PlainText(content)), plain) {
			return n
		}
	}
	return first
}

// fold lower-cases s rune for rune, so rune offsets into the result are rune
// offsets into s.
func fold(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// insideTag reports whether the end of s lies inside a markup tag, given
// whether s started inside one.
func insideTag(s string, startedInside bool) bool {
	open := strings.LastIndexByte(s, '<')
	closing := strings.LastIndexByte(s, '>')
	if open < 0 && closing < 0 {
		return startedInside
	}
	return open > closing
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

// runeIndex returns the byte index of the nth rune of s.
func runeIndex(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}

// snippet returns the plain text around text[from:to], trimmed of partial tags.
func snippet(text string, from, to int) string {
	start := from
	for r := 0; r < snippetRadius && start > 0; r++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := to
	for r := 0; r < snippetRadius && end < len(text); r++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	head := text[start:from]
	if gt := strings.IndexByte(head, '>'); gt >= 0 {
		if lt := strings.IndexByte(head, '<'); lt < 0 || gt < lt {
			start += gt + 1
		}
	}
	rest := text[to:end]
	if lt := strings.LastIndexByte(rest, '<'); lt >= 0 && lt > strings.LastIndexByte(rest, '>') {
		end = to + lt
	}
	return strings.ReplaceAll(markup.PlainText(text[start:end]), "\n", " ")
}
