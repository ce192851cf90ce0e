// Package watch polls the window size and the chrome regions around the
// reading area and reports changes large enough to affect pagination.
package watch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
)

// Region is a piece of chrome whose height can be read from the host UI.
type Region interface {
	Name() string
	Height() float64
	Visible() bool
}

// SizeFunc reports the current window size. Non-positive sizes are ignored.
type SizeFunc func() (width, height float64)

// Watcher compares each poll with the previous one.
type Watcher struct {
	cfg      config.Watch
	size     SizeFunc
	regions  []Region
	onResize func(width, height float64)
	onChrome func([]layout.Region)
	log      zerolog.Logger

	mu      sync.Mutex
	primed  bool
	width   float64
	height  float64
	chrome  []layout.Region
	visible []bool
}

type Option func(*Watcher)

// WithRegions adds chrome regions to observe.
func WithRegions(regions ...Region) Option {
	return func(w *Watcher) { w.regions = append(w.regions, regions...) }
}

// OnResize sets the function called when the window size changes.
func OnResize(fn func(width, height float64)) Option {
	return func(w *Watcher) { w.onResize = fn }
}

// OnChrome sets the function called with every region when any of them
// changes.
func OnChrome(fn func([]layout.Region)) Option {
	return func(w *Watcher) { w.onChrome = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

func New(cfg config.Watch, size SizeFunc, opts ...Option) *Watcher {
	d := config.DefaultWatch()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.Threshold < 0 {
		cfg.Threshold = d.Threshold
	}
	w := &Watcher{cfg: cfg, size: size, log: log.Logger}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With().Str("component", "watch").Logger()
	return w
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check polls once and reports what changed. The first call records a
// baseline and reports nothing.
func (w *Watcher) Check() (resized, chromeChanged bool) {
	chrome, visible := w.readChrome()
	var width, height float64
	if w.size != nil {
		width, height = w.size()
	}

	w.mu.Lock()
	if !w.primed {
		w.primed = true
		w.width, w.height = width, height
		w.chrome, w.visible = chrome, visible
		w.mu.Unlock()
		return false, false
	}
	if width > 0 && height > 0 && (w.moved(w.width, width) || w.moved(w.height, height)) {
		w.width, w.height = width, height
		resized = true
	}
	if w.chromeMoved(chrome, visible) {
		w.chrome, w.visible = chrome, visible
		chromeChanged = true
	}
	w.mu.Unlock()

	if resized {
		w.log.Debug().Float64("width", width).Float64("height", height).Msg("window resized")
		if w.onResize != nil {
			w.onResize(width, height)
		}
	}
	if chromeChanged {
		w.log.Debug().Int("regions", len(chrome)).Msg("chrome changed")
		if w.onChrome != nil {
			w.onChrome(chrome)
		}
	}
	return resized, chromeChanged
}

// readChrome converts the observed regions. A hidden region takes no space;
// a visible region that has not been laid out yet is reported as absent so
// the engine falls back to its default height.
func (w *Watcher) readChrome() ([]layout.Region, []bool) {
	out := make([]layout.Region, len(w.regions))
	visible := make([]bool, len(w.regions))
	for i, r := range w.regions {
		visible[i] = r.Visible()
		if !visible[i] {
			out[i] = layout.Region{Name: r.Name(), Present: true}
			continue
		}
		h := r.Height()
		out[i] = layout.Region{Name: r.Name(), Height: h, Present: h > 0}
	}
	return out, visible
}

func (w *Watcher) chromeMoved(next []layout.Region, visible []bool) bool {
	if len(next) != len(w.chrome) {
		return true
	}
	for i, r := range next {
		prev := w.chrome[i]
		if visible[i] != w.visible[i] || r.Present != prev.Present || w.moved(prev.Height, r.Height) {
			return true
		}
	}
	return false
}

func (w *Watcher) moved(prev, next float64) bool {
	return math.Abs(next-prev) > w.cfg.Threshold
}
