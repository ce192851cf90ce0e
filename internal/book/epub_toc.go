package book

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

const ncxMediaType = "application/x-dtbncx+xml"

type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// readTOC parses the NCX table of contents into a TocEntry tree. Hrefs are
// resolved relative to the OPF directory so they match manifest hrefs.
func readTOC(rf *epub.Rootfile) ([]TocEntry, error) {
	ncxPath, data, err := readNCX(rf)
	if err != nil {
		return nil, err
	}

	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ncxPath, err)
	}
	return convertNavPoints(toc.NavMap.NavPoints, ncxDir(ncxPath), 0), nil
}

func convertNavPoints(points []navPoint, dir string, level int) []TocEntry {
	var entries []TocEntry
	for _, np := range points {
		href := np.Content.Src
		if dir != "" && !strings.Contains(href, "/") {
			href = path.Join(dir, href)
		}
		entries = append(entries, TocEntry{
			ID:       np.ID,
			Title:    strings.TrimSpace(np.Label.Text),
			Href:     href,
			Level:    level,
			PageHint: np.PlayOrder,
			Children: convertNavPoints(np.Children, dir, level+1),
		})
	}
	return entries
}

// ncxDir is the NCX directory relative to the manifest root. Manifest hrefs
// are already relative to the OPF, so only nested NCX locations matter.
func ncxDir(ncxHref string) string {
	dir := path.Dir(ncxHref)
	if dir == "." {
		return ""
	}
	return dir
}

// ncxItem finds the NCX in the manifest by media type, then by extension.
func ncxItem(rf *epub.Rootfile) *epub.Item {
	for i := range rf.Manifest.Items {
		if rf.Manifest.Items[i].MediaType == ncxMediaType {
			return &rf.Manifest.Items[i]
		}
	}
	for i := range rf.Manifest.Items {
		if strings.EqualFold(path.Ext(rf.Manifest.Items[i].HREF), ".ncx") {
			return &rf.Manifest.Items[i]
		}
	}
	return nil
}

func readNCX(rf *epub.Rootfile) (string, []byte, error) {
	item := ncxItem(rf)
	if item == nil {
		return "", nil, errors.New("no NCX in manifest")
	}
	r, err := item.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", item.HREF, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", item.HREF, err)
	}
	return item.HREF, data, nil
}
