package book

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MarkdownFormat implements Format for Markdown files.
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Open splits the document into chapters at every header and renders each
// chapter to HTML. Headers also form the TOC, nested by level.
func (f *MarkdownFormat) Open(filename string) (*Book, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	type section struct {
		title    string
		level    int
		preamble bool
		lines    []string
	}
	var sections []*section
	var current *section
	inFence := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if match := headerRegex.FindStringSubmatch(line); match != nil && !inFence {
			current = &section{
				title: strings.TrimSpace(match[2]),
				level: len(match[1]) - 1, // h1 = level 0, h2 = level 1, etc.
			}
			sections = append(sections, current)
		} else if current == nil {
			current = &section{title: "Document", preamble: true}
			sections = append(sections, current)
		}
		current.lines = append(current.lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	b := &Book{Title: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))}
	var flat []TocEntry
	for i, s := range sections {
		var buf bytes.Buffer
		if err := md.Convert([]byte(strings.Join(s.lines, "\n")), &buf); err != nil {
			return nil, fmt.Errorf("render section %q: %w", s.title, err)
		}
		id := fmt.Sprintf("section-%d", i+1)
		b.Chapters = append(b.Chapters, Chapter{ID: id, Title: s.title, Content: buf.String()})
		if s.preamble {
			continue
		}
		flat = append(flat, TocEntry{
			ID:       id,
			Title:    s.title,
			Href:     id,
			Level:    s.level,
			PageHint: i + 1,
		})
	}
	b.TOC = nestByLevel(flat)
	return b, nil
}

// nestByLevel turns a flat header list into a tree: each entry becomes a child
// of the closest preceding entry with a smaller header level. Levels are
// rewritten to tree depth.
func nestByLevel(flat []TocEntry) []TocEntry {
	var build func(i, minLevel, depth int) ([]TocEntry, int)
	build = func(i, minLevel, depth int) ([]TocEntry, int) {
		var out []TocEntry
		for i < len(flat) && flat[i].Level >= minLevel {
			e := flat[i]
			e.Level = depth
			e.Children, i = build(i+1, flat[i].Level+1, depth+1)
			out = append(out, e)
		}
		return out, i
	}
	out, _ := build(0, 0, 0)
	return out
}
