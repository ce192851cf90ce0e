package layout

import "github.com/metcalfc/leaf/internal/config"

// availableHeight is the height left for page content once margins, chrome and
// the safety margin are taken out. Chrome that is not present reserves its
// configured default.
func availableHeight(vp Viewport, s config.Settings, cfg config.Layout) float64 {
	h := vp.Height - 2*s.Margin
	for _, r := range vp.Chrome {
		if r.Present {
			h -= r.Height
		} else {
			h -= cfg.ChromeDefaults[r.Name]
		}
	}
	h -= cfg.SafetyMargin
	if h < cfg.MinHeight {
		h = cfg.MinHeight
	}
	return h
}

func contentWidth(vp Viewport, s config.Settings) float64 {
	w := vp.Width - 2*s.Margin
	if w < 1 {
		w = 1
	}
	return w
}
