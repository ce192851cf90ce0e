package layout

import (
	"strings"
	"unicode/utf8"

	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/markup"
	"github.com/metcalfc/leaf/internal/measure"
)

const (
	growFactor   = 1.2
	shrinkFactor = 0.8
)

// paginator splits chapters into pages for one pass. It owns the surface for
// the duration of the pass.
type paginator struct {
	surface measure.Surface
	avail   float64
	cfg     config.Layout
}

// segments extracts a chapter's block segments and pre-splits long ones into
// sentence groups that keep their inline markup.
func (p *paginator) segments(content string) ([]markup.Segment, error) {
	segs, err := markup.Segments(content)
	if err != nil {
		return nil, err
	}
	out := make([]markup.Segment, 0, len(segs))
	for _, s := range segs {
		if utf8.RuneCountInString(s.Text) <= p.cfg.SplitThreshold {
			out = append(out, s)
			continue
		}
		parts, err := markup.SplitSegment(s, p.cfg.GroupBudget)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

// chapter greedily packs a chapter's segments into pages.
func (p *paginator) chapter(chapterIndex int, content string) ([]PageInfo, error) {
	segs, err := p.segments(content)
	if err != nil {
		return nil, err
	}

	var (
		pages []PageInfo
		buf   strings.Builder
		first = -1
		last  = -1
	)
	emit := func() {
		pages = append(pages, PageInfo{
			ChapterIndex:        chapterIndex,
			PageInChapter:       len(pages) + 1,
			Content:             buf.String(),
			StartParagraphIndex: first,
			EndParagraphIndex:   last,
		})
		buf.Reset()
		first, last = -1, -1
	}
	add := func(i int, html string) {
		if first < 0 {
			first = i
		}
		last = i
		buf.WriteString(html)
	}

	for i, seg := range segs {
		if p.fits(buf.String() + seg.HTML) {
			add(i, seg.HTML)
			continue
		}
		if buf.Len() > 0 {
			emit()
		}
		if p.fits(seg.HTML) {
			add(i, seg.HTML)
			continue
		}
		parts, err := p.splitOversized(seg)
		if err != nil {
			return nil, err
		}
		for k, part := range parts {
			add(i, part)
			if k < len(parts)-1 {
				emit()
			}
		}
	}
	if buf.Len() > 0 {
		emit()
	}
	return pages, nil
}

// splitOversized breaks a segment taller than a page into parts that each
// fit: first at sentence boundaries, then by character count. Cuts fall
// between text runes, so inline elements are closed and reopened around them.
func (p *paginator) splitOversized(seg markup.Segment) ([]string, error) {
	r, err := markup.NewRuns(seg.HTML)
	if err != nil {
		return nil, err
	}
	if r.Len() == 0 {
		return []string{seg.HTML}, nil
	}

	var (
		parts      []string
		start, end int
	)
	for _, sentence := range markup.Sentences(r.Text(0, r.Len())) {
		next := end + utf8.RuneCountInString(sentence)
		if p.fits(r.Slice(start, next)) {
			end = next
			continue
		}
		if end > start {
			parts = append(parts, r.Slice(start, end))
			start = end
		}
		if p.fits(r.Slice(start, next)) {
			end = next
			continue
		}
		cuts := p.splitByChars(r, start, next)
		for _, cut := range cuts[:len(cuts)-1] {
			parts = append(parts, r.Slice(start, cut))
			start = cut
		}
		end = next
	}
	if end > start {
		parts = append(parts, r.Slice(start, r.Len()))
	}
	return parts, nil
}

// splitByChars cuts the text in [from, to) by searching for a character
// count that fits the page. The search starts from a proportional estimate
// and grows or shrinks it by a fixed factor for BisectIterations rounds; the
// cut is the largest fitting count seen, or the final candidate if none fit.
// It returns the end offset of every piece, to included. Every piece has at
// least one rune, so the loop terminates.
func (p *paginator) splitByChars(r *markup.Runs, from, to int) []int {
	var cuts []int
	for from < to {
		h := p.surface.Height(r.Slice(from, to))
		if h <= p.avail {
			cuts = append(cuts, to)
			break
		}

		size := to - from
		n := clamp(int(float64(size)*p.avail/h), 1, size)
		best := 0
		for it := 0; it < p.cfg.BisectIterations; it++ {
			next := n
			if p.fits(r.Slice(from, from+n)) {
				best = max(best, n)
				next = int(float64(n) * growFactor)
				if next == n {
					next++
				}
			} else {
				next = int(float64(n) * shrinkFactor)
				if next == n {
					next--
				}
			}
			n = clamp(next, 1, size)
		}
		cut := best
		if cut == 0 {
			cut = n
		}
		from += cut
		cuts = append(cuts, from)
	}
	return cuts
}

func (p *paginator) fits(html string) bool {
	return p.surface.Height(html) <= p.avail
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
