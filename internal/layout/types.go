package layout

// PageInfo is one display page. Page numbers are 1-based positions in the
// page table.
type PageInfo struct {
	ChapterIndex        int
	PageInChapter       int
	Content             string
	StartParagraphIndex int
	EndParagraphIndex   int
}

// TocEntry is a structural TOC entry resolved to a page number.
// ChapterIndex is -1 when the entry could not be matched to a chapter.
type TocEntry struct {
	ID           string
	Title        string
	Level        int
	Page         int
	ChapterIndex int
	Children     []TocEntry
}

// Region is a piece of chrome surrounding the reading area.
type Region struct {
	Name    string
	Height  float64
	Present bool
}

// Viewport is the reading area and the chrome that shares it.
type Viewport struct {
	Width  float64
	Height float64
	Chrome []Region
}

// State is the engine lifecycle state.
type State int

const (
	Idle State = iota
	Calculating
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calculating:
		return "calculating"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}
