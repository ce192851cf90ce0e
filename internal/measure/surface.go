// Package measure provides off-screen measurement surfaces that report the
// rendered height of marked-up text under a typography and content width.
package measure

import "github.com/metcalfc/leaf/internal/config"

// Typography is the subset of reading settings that affects measurement.
type Typography struct {
	FontFamily string
	FontSize   float64
	LineHeight float64 // multiple of FontSize
}

// FromSettings extracts the typography from reading settings.
func FromSettings(s config.Settings) Typography {
	return Typography{
		FontFamily: s.FontFamily,
		FontSize:   s.FontSize,
		LineHeight: s.LineHeight,
	}
}

// Surface measures rendered text. Apply overwrites the attributes used by
// subsequent Height calls, so a surface must have a single user at a time.
type Surface interface {
	Apply(t Typography, width float64) error
	Height(markup string) float64
}
