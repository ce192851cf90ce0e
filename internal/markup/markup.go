// Package markup turns chapter HTML into the units the layout engine and the
// measurement surfaces work with: block segments, plain-text blocks and
// sentences.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Segment is a block-level unit of chapter content in document order.
type Segment struct {
	Tag  string // block tag name, "p" for anonymous runs
	HTML string // rendered outer HTML
	Text string // whitespace-collapsed plain text
}

// blockTags start a new block during extraction and measurement.
var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Hr:         true,
	atom.Figure:     true,
	atom.Figcaption: true,
	atom.Dt:         true,
	atom.Dd:         true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Nav:        true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dl:         true,
	atom.Table:      true,
	atom.Tbody:      true,
	atom.Thead:      true,
	atom.Tfoot:      true,
	atom.Body:       true,
}

// skipTags have content that is never displayed.
var skipTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
	atom.Title:  true,
}

// Segments extracts the ordered block segments of a chapter.
// Leaf blocks become one segment each; inline runs between blocks are grouped
// into an anonymous paragraph.
func Segments(content string) ([]Segment, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse chapter: %w", err)
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		body = doc
	}

	var (
		out    []Segment
		inline []*html.Node
	)
	flushInline := func() error {
		if len(inline) == 0 {
			return nil
		}
		var buf bytes.Buffer
		var text strings.Builder
		buf.WriteString("<p>")
		for _, n := range inline {
			if err := html.Render(&buf, n); err != nil {
				return err
			}
			text.WriteString(nodeText(n))
		}
		buf.WriteString("</p>")
		inline = inline[:0]
		if t := collapseWhitespace(text.String()); t != "" {
			out = append(out, Segment{Tag: "p", HTML: buf.String(), Text: t})
		}
		return nil
	}

	var walk func(parent *html.Node) error
	walk = func(parent *html.Node) error {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.CommentNode || c.Type == html.DoctypeNode {
				continue
			}
			if c.Type == html.ElementNode && skipTags[c.DataAtom] {
				continue
			}
			if c.Type != html.ElementNode || !blockTags[c.DataAtom] {
				inline = append(inline, c)
				continue
			}
			if err := flushInline(); err != nil {
				return err
			}
			if hasBlockChild(c) {
				if err := walk(c); err != nil {
					return err
				}
				if err := flushInline(); err != nil {
					return err
				}
				continue
			}
			text := collapseWhitespace(nodeText(c))
			if text == "" && findElement(c, atom.Img) == nil {
				continue
			}
			var buf bytes.Buffer
			if err := html.Render(&buf, c); err != nil {
				return err
			}
			out = append(out, Segment{Tag: c.Data, HTML: buf.String(), Text: text})
		}
		return nil
	}
	if err := walk(body); err != nil {
		return nil, fmt.Errorf("render segment: %w", err)
	}
	if err := flushInline(); err != nil {
		return nil, fmt.Errorf("render segment: %w", err)
	}
	return out, nil
}

// Block is one displayed block of plain text.
type Block struct {
	Tag  string
	Text string
}

// Blocks returns the plain-text blocks of a markup fragment in order.
// Script and style content is skipped; empty blocks are dropped.
func Blocks(markup string) []Block {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	var (
		out  []Block
		buf  strings.Builder
		tag  = "p"
		skip = 0
	)
	flush := func() {
		if t := collapseWhitespace(buf.String()); t != "" {
			out = append(out, Block{Tag: tag, Text: t})
		}
		buf.Reset()
	}

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; keep what was read.
			flush()
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			a := atom.Lookup(tn)
			if skipTags[a] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if a == atom.Br {
				buf.WriteByte('\n')
				continue
			}
			if blockTags[a] {
				flush()
				tag = string(tn)
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			a := atom.Lookup(tn)
			if skipTags[a] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[a] {
				flush()
				tag = "p"
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(tokenizer.Text())
			}
		}
	}
}

// PlainText returns the text of a markup fragment with one line per block.
func PlainText(markup string) string {
	blocks := Blocks(markup)
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

// Wrap renders text as a single block element with the given tag.
func Wrap(tag, text string) string {
	if tag == "" {
		tag = "p"
	}
	return "<" + tag + ">" + html.EscapeString(text) + "</" + tag + ">"
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockTags[c.DataAtom] {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// collapseWhitespace folds runs of whitespace into single spaces and trims.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
