package book

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EPUBFormat implements Format for EPUB files.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string         { return "EPUB" }
func (f *EPUBFormat) Extensions() []string { return []string{".epub"} }

// Open reads the spine in order; each spine item becomes one chapter whose
// content is the inner HTML of its body.
func (f *EPUBFormat) Open(filename string) (*Book, error) {
	rc, err := epub.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("no rootfiles found in epub")
	}
	rf := rc.Rootfiles[0]

	toc, tocErr := readTOC(rf)
	titles := make(map[string]string)
	indexTitles(toc, titles)

	b := &Book{Title: strings.TrimSpace(rf.Metadata.Title)}
	for i, ref := range rf.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		r, err := ref.Item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}
		body, err := bodyHTML(data)
		if err != nil {
			continue
		}

		title := fmt.Sprintf("Section %d", i+1)
		if t, ok := titles[ref.Item.HREF]; ok {
			title = t
		} else if t, ok := titles[path.Base(ref.Item.HREF)]; ok {
			title = t
		}
		b.Chapters = append(b.Chapters, Chapter{
			ID:      ref.Item.HREF,
			Title:   title,
			Content: body,
		})
	}
	if tocErr == nil {
		b.TOC = toc
	}
	return b, nil
}

// bodyHTML returns the rendered children of the document body.
func bodyHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	body := findBody(doc)
	if body == nil {
		return "", fmt.Errorf("no body element")
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

// indexTitles maps hrefs, with and without fragments and directories, to the
// first TOC title that points at them.
func indexTitles(entries []TocEntry, out map[string]string) {
	for _, e := range entries {
		href := e.Href
		base := hrefWithoutFragment(href)
		for _, k := range []string{href, base, path.Base(base)} {
			if _, exists := out[k]; !exists {
				out[k] = e.Title
			}
		}
		indexTitles(e.Children, out)
	}
}

func hrefWithoutFragment(href string) string {
	if idx := strings.Index(href, "#"); idx != -1 {
		return href[:idx]
	}
	return href
}
