package measure

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/metcalfc/leaf/internal/markup"
)

// TerminalSurface measures text in terminal cells: width in columns, height
// in rows. Blocks are separated by one blank row; headings are bold.
type TerminalSurface struct {
	width int
	body  lipgloss.Style
	head  lipgloss.Style
}

var _ Surface = (*TerminalSurface)(nil)

func NewTerminalSurface() *TerminalSurface {
	s := &TerminalSurface{}
	_ = s.Apply(Typography{}, 80)
	return s
}

// Apply sets the wrap width in columns. Typography does not apply to a
// terminal.
func (s *TerminalSurface) Apply(_ Typography, width float64) error {
	w := int(width)
	if w < 1 {
		w = 1
	}
	s.width = w
	s.body = lipgloss.NewStyle().Width(w)
	s.head = s.body.Bold(true)
	return nil
}

// Render returns the page text as it is displayed in the terminal.
func (s *TerminalSurface) Render(m string) string {
	blocks := markup.Blocks(m)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		style := s.body
		if strings.HasPrefix(b.Tag, "h") && len(b.Tag) == 2 {
			style = s.head
		}
		parts = append(parts, style.Render(b.Text))
	}
	return strings.Join(parts, "\n\n")
}

// Height returns the number of rows Render would occupy.
func (s *TerminalSurface) Height(m string) float64 {
	out := s.Render(m)
	if out == "" {
		return 0
	}
	return float64(lipgloss.Height(out))
}
