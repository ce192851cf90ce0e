package markup

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Runs is a rendered block prepared for cutting at text offsets. Offsets
// count the runes of the block's text nodes as written, whitespace included.
// A slice closes the elements that are open at its end and reopens them at
// the start of the next slice, so inline markup survives every cut.
type Runs struct {
	tokens []runToken
	text   []rune
}

type runToken struct {
	tok  html.Token
	pos  int // text offset where the token starts
	size int // runes of text, 0 for tags and hidden text
}

// NewRuns tokenizes rendered block markup.
func NewRuns(block string) (*Runs, error) {
	r := &Runs{}
	z := html.NewTokenizer(strings.NewReader(block))
	hidden := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return r, nil
		}
		tok := z.Token()
		rt := runToken{tok: tok, pos: len(r.text)}
		switch tt {
		case html.CommentToken, html.DoctypeToken:
			continue
		case html.StartTagToken:
			if skipTags[tok.DataAtom] {
				hidden++
			}
		case html.EndTagToken:
			if skipTags[tok.DataAtom] && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden == 0 {
				runes := []rune(tok.Data)
				rt.size = len(runes)
				r.text = append(r.text, runes...)
			}
		}
		r.tokens = append(r.tokens, rt)
	}
}

// Len returns the text length in runes.
func (r *Runs) Len() int { return len(r.text) }

// Text returns the text between two offsets.
func (r *Runs) Text(from, to int) string {
	from, to = r.bounds(from, to)
	return string(r.text[from:to])
}

func (r *Runs) bounds(from, to int) (int, int) {
	from = max(0, min(from, len(r.text)))
	to = max(from, min(to, len(r.text)))
	return from, to
}

// Slice returns well-formed markup for the text in [from, to). Tags sitting
// exactly at a cut belong to the slice that starts there; the slice that ends
// at Len keeps everything after the last rune.
func (r *Runs) Slice(from, to int) string {
	from, to = r.bounds(from, to)
	last := to == len(r.text)

	var (
		out     strings.Builder
		open    []html.Token
		started bool
	)
	begin := func() {
		if started {
			return
		}
		started = true
		for _, t := range open {
			out.WriteString(t.String())
		}
	}
	inside := func(pos int) bool {
		return pos >= from && (pos < to || last)
	}

	for _, rt := range r.tokens {
		tok := rt.tok
		switch tok.Type {
		case html.StartTagToken:
			if !last && rt.pos >= to {
				return closeAll(&out, open, started)
			}
			if inside(rt.pos) {
				begin()
				out.WriteString(tok.String())
			}
			if !isVoid(tok.DataAtom) {
				open = append(open, tok)
			}
		case html.SelfClosingTagToken:
			if !last && rt.pos >= to {
				return closeAll(&out, open, started)
			}
			if inside(rt.pos) {
				begin()
				out.WriteString(tok.String())
			}
		case html.EndTagToken:
			if i := lastOpen(open, tok.Data); i >= 0 {
				if started {
					for k := len(open) - 1; k >= i; k-- {
						out.WriteString("</" + open[k].Data + ">")
					}
				}
				open = open[:i]
			}
		case html.TextToken:
			if rt.size == 0 {
				if started || inside(rt.pos) {
					begin()
					out.WriteString(tok.Data)
				}
				continue
			}
			if !last && rt.pos >= to {
				return closeAll(&out, open, started)
			}
			lo, hi := max(rt.pos, from), min(rt.pos+rt.size, to)
			if lo < hi {
				begin()
				out.WriteString(html.EscapeString(string(r.text[lo:hi])))
			}
		}
	}
	return closeAll(&out, open, started)
}

func closeAll(out *strings.Builder, open []html.Token, started bool) string {
	if started {
		for k := len(open) - 1; k >= 0; k-- {
			out.WriteString("</" + open[k].Data + ">")
		}
	}
	return out.String()
}

func lastOpen(open []html.Token, name string) int {
	for i := len(open) - 1; i >= 0; i-- {
		if open[i].Data == name {
			return i
		}
	}
	return -1
}

func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.Img, atom.Hr, atom.Wbr, atom.Input, atom.Area, atom.Col,
		atom.Embed, atom.Source, atom.Track, atom.Meta, atom.Link, atom.Base:
		return true
	}
	return false
}

// SplitSegment cuts a segment into sentence groups of at most budget runes of
// text. Whitespace-only groups join their neighbour. The pieces keep the
// segment's inline markup.
func SplitSegment(seg Segment, budget int) ([]Segment, error) {
	r, err := NewRuns(seg.HTML)
	if err != nil {
		return nil, err
	}
	whole := r.Text(0, r.Len())
	groups := SplitBudget(whole, budget)
	if len(groups) < 2 {
		return []Segment{seg}, nil
	}

	bounds := []int{0}
	off := 0
	for _, g := range groups {
		off += utf8.RuneCountInString(g)
		if strings.TrimSpace(g) == "" {
			if len(bounds) > 1 {
				bounds[len(bounds)-1] = off
			}
			continue
		}
		bounds = append(bounds, off)
	}
	if len(bounds) < 2 {
		return []Segment{seg}, nil
	}
	bounds[len(bounds)-1] = r.Len()

	out := make([]Segment, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		out = append(out, Segment{
			Tag:  seg.Tag,
			HTML: r.Slice(bounds[i], bounds[i+1]),
			Text: collapseWhitespace(r.Text(bounds[i], bounds[i+1])),
		})
	}
	return out, nil
}
