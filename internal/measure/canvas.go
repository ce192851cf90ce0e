package measure

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tdewolff/canvas"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/metcalfc/leaf/internal/markup"
)

// Conversion constants between pt and mm. Canvas faces are sized in points
// and report widths in millimetres; surface units are CSS pixels, which the
// reader treats as points.
const (
	ptToMm = 0.352777
	mmToPt = 1.0 / ptToMm
)

// headingScale enlarges heading blocks relative to body text.
var headingScale = map[string]float64{
	"h1": 1.6,
	"h2": 1.4,
	"h3": 1.2,
	"h4": 1.1,
}

// CanvasSurface measures text with real font metrics from tdewolff/canvas.
type CanvasSurface struct {
	mu       sync.Mutex
	families map[string]*canvas.FontFamily

	typo  Typography
	width float64
	faces map[float64]*canvas.FontFace
}

var _ Surface = (*CanvasSurface)(nil)

// NewCanvasSurface creates a surface backed by the Go fonts.
func NewCanvasSurface() *CanvasSurface {
	return &CanvasSurface{
		families: map[string]*canvas.FontFamily{},
		faces:    map[float64]*canvas.FontFace{},
	}
}

// Apply sets the typography and content width in pixels.
func (s *CanvasSurface) Apply(t Typography, width float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.FontSize <= 0 {
		return fmt.Errorf("measure: invalid font size %g", t.FontSize)
	}
	if _, err := s.family(t.FontFamily); err != nil {
		return err
	}
	s.typo = t
	s.width = width
	s.faces = map[float64]*canvas.FontFace{}
	return nil
}

// Height returns the rendered height in pixels of markup wrapped at the
// applied width.
func (s *CanvasSurface) Height(m string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineHeight := s.typo.LineHeight
	if lineHeight <= 0 {
		lineHeight = 1.4
	}
	total := 0.0
	for i, b := range markup.Blocks(m) {
		size := s.typo.FontSize
		if scale, ok := headingScale[b.Tag]; ok {
			size *= scale
		}
		face := s.face(size)
		if face == nil {
			return math.Inf(1)
		}
		if i > 0 {
			total += s.typo.FontSize * lineHeight / 2
		}
		lines := wrapCount(b.Text, s.width, func(t string) float64 {
			return face.TextWidth(t) * mmToPt
		})
		total += float64(lines) * size * lineHeight
	}
	return total
}

func (s *CanvasSurface) face(size float64) *canvas.FontFace {
	if f, ok := s.faces[size]; ok {
		return f
	}
	family, err := s.family(s.typo.FontFamily)
	if err != nil {
		return nil
	}
	f := family.Face(size, canvas.Black, canvas.FontRegular, canvas.FontNormal)
	s.faces[size] = f
	return f
}

func (s *CanvasSurface) family(name string) (*canvas.FontFamily, error) {
	key, data := FontData(name)
	if f, ok := s.families[key]; ok {
		return f, nil
	}
	family := canvas.NewFontFamily("leaf-" + key)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("measure: load font %s: %w", key, err)
	}
	s.families[key] = family
	return family, nil
}

// FontData returns the font a family measures with: gomono for monospace
// families, goregular otherwise. Renderers draw with the same bytes so pages
// match what was measured.
func FontData(family string) (key string, ttf []byte) {
	if isMonospace(family) {
		return "mono", gomono.TTF
	}
	return "regular", goregular.TTF
}

func isMonospace(family string) bool {
	f := strings.ToLower(family)
	return strings.Contains(f, "mono") || strings.Contains(f, "courier") || strings.Contains(f, "code")
}

// wrapCount greedily wraps text at width and returns the line count. Words
// wider than the line are broken between runes.
func wrapCount(text string, width float64, measure func(string) float64) int {
	if text == "" {
		return 0
	}
	if width <= 0 {
		return 1
	}
	lines := 1
	current := 0.0
	space := measure(" ")
	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		w := measure(word)
		if w > width {
			for _, r := range word {
				rw := measure(string(r))
				if current > 0 && current+rw > width {
					lines++
					current = 0
				}
				current += rw
			}
			current += space
			continue
		}
		if current > 0 && current+w > width {
			lines++
			current = 0
		}
		current += w + space
	}
	return lines
}
