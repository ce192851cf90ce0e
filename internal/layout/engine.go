// Package layout paginates a normalized book against a measurement surface
// and keeps the page table current as settings, the viewport and the
// surrounding chrome change.
package layout

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/book"
	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/debounce"
	"github.com/metcalfc/leaf/internal/measure"
)

// ErrSuperseded is returned by a pass that was overtaken by a newer one.
var ErrSuperseded = errors.New("layout pass superseded")

// Result describes the outcome of one pass. Err is nil for committed passes.
type Result struct {
	Generation uint64
	TotalPages int
	Err        error
}

type request struct {
	book     *book.Book
	settings config.Settings
	viewport Viewport
}

// Engine owns the page table of one book at a time.
type Engine struct {
	cfg      config.Layout
	log      zerolog.Logger
	onCommit func(Result)

	// surface holds the single measurement surface while no pass uses it.
	surface chan measure.Surface
	gen     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	settingsDebounce *debounce.Debouncer
	chromeDebounce   *debounce.Debouncer

	mu      sync.RWMutex
	state   State
	pending request
	book    *book.Book
	pages   []PageInfo
	toc     []TocEntry
	current int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for pass events.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithOnCommit registers a function called after every pass that reaches its
// end, committed or failed. Superseded passes are not reported.
func WithOnCommit(fn func(Result)) Option {
	return func(e *Engine) { e.onCommit = fn }
}

// New creates an idle engine measuring with surface.
func New(surface measure.Surface, cfg config.Layout, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.Normalize(),
		log:     log.Logger,
		surface: make(chan measure.Surface, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "layout").Logger()
	e.surface <- surface
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.settingsDebounce = debounce.New(e.cfg.SettingsDebounce, e.recalculate)
	e.chromeDebounce = debounce.New(e.cfg.ChromeDebounce, e.recalculate)
	return e
}

// Calculate paginates b immediately and makes (b, s, vp) the request used by
// later debounced recalculations. It returns ErrSuperseded when a newer pass
// started before this one could commit.
func (e *Engine) Calculate(ctx context.Context, b *book.Book, s config.Settings, vp Viewport) error {
	req := request{book: b, settings: s.Normalize(), viewport: vp}
	e.mu.Lock()
	e.pending = req
	e.mu.Unlock()
	return e.run(ctx, req)
}

// SetSettings schedules a recalculation with new reading settings.
func (e *Engine) SetSettings(s config.Settings) {
	e.mu.Lock()
	e.pending.settings = s.Normalize()
	e.mu.Unlock()
	e.settingsDebounce.Trigger()
}

// SetViewport schedules a recalculation for a new window size.
func (e *Engine) SetViewport(width, height float64) {
	e.mu.Lock()
	e.pending.viewport.Width = width
	e.pending.viewport.Height = height
	e.mu.Unlock()
	e.settingsDebounce.Trigger()
}

// SetChrome schedules a recalculation for new chrome measurements.
func (e *Engine) SetChrome(chrome []Region) {
	e.mu.Lock()
	e.pending.viewport.Chrome = append([]Region(nil), chrome...)
	e.mu.Unlock()
	e.chromeDebounce.Trigger()
}

func (e *Engine) recalculate() {
	e.mu.RLock()
	req := e.pending
	e.mu.RUnlock()
	if req.book == nil {
		return
	}
	if err := e.run(e.ctx, req); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, context.Canceled) {
		e.log.Error().Err(err).Msg("recalculation failed")
	}
}

func (e *Engine) run(ctx context.Context, req request) error {
	gen := e.gen.Add(1)
	start := time.Now()

	e.mu.Lock()
	e.state = Calculating
	e.mu.Unlock()

	pages, err := e.paginate(ctx, gen, req)
	if err == nil {
		err = e.commit(gen, req, pages)
	}
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			e.log.Debug().Uint64("generation", gen).Msg("pass superseded")
			return err
		}
		e.mu.Lock()
		if gen == e.gen.Load() {
			if len(e.pages) > 0 {
				e.state = Ready
			} else {
				e.state = Idle
			}
		}
		e.mu.Unlock()
		e.log.Warn().Err(err).Uint64("generation", gen).Msg("pass failed, keeping previous pages")
		e.notify(Result{Generation: gen, TotalPages: e.TotalPages(), Err: err})
		return err
	}

	e.log.Debug().
		Uint64("generation", gen).
		Int("pages", len(pages)).
		Dur("took", time.Since(start)).
		Msg("pass committed")
	e.notify(Result{Generation: gen, TotalPages: len(pages)})
	return nil
}

// paginate runs one pass holding the surface token.
func (e *Engine) paginate(ctx context.Context, gen uint64, req request) (pages []PageInfo, err error) {
	var surface measure.Surface
	select {
	case surface = <-e.surface:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { e.surface <- surface }()
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("layout pass panicked: %v", r)
		}
	}()

	if gen != e.gen.Load() {
		return nil, ErrSuperseded
	}
	b := req.book
	if b == nil || len(b.Chapters) == 0 {
		return nil, nil
	}

	s := req.settings
	if err := surface.Apply(measure.FromSettings(s), contentWidth(req.viewport, s)); err != nil {
		return nil, fmt.Errorf("apply typography: %w", err)
	}
	p := &paginator{
		surface: surface,
		avail:   availableHeight(req.viewport, s, e.cfg),
		cfg:     e.cfg,
	}

	for ci, ch := range b.Chapters {
		if ci > 0 && ci%e.cfg.YieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if gen != e.gen.Load() {
				return nil, ErrSuperseded
			}
			runtime.Gosched()
		}
		chPages, err := p.chapter(ci, ch.Content)
		if err != nil {
			return nil, fmt.Errorf("chapter %d: %w", ci, err)
		}
		pages = append(pages, chPages...)
	}
	return pages, nil
}

// commit installs pages if gen is still the latest generation.
func (e *Engine) commit(gen uint64, req request, pages []PageInfo) error {
	toc := resolveToc(req.book, pages)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen.Load() {
		return ErrSuperseded
	}
	current := 0
	if len(pages) > 0 {
		current = 1
		if req.book == e.book {
			current = carryPosition(e.pages, e.current, pages)
		}
	}
	e.book = req.book
	e.pages = pages
	e.toc = toc
	e.current = current
	e.state = Ready
	return nil
}

func (e *Engine) notify(r Result) {
	if e.onCommit != nil {
		e.onCommit(r)
	}
}

// carryPosition maps the current page of the old table to the page in the new
// table at the same chapter and proportional position inside it.
func carryPosition(old []PageInfo, current int, pages []PageInfo) int {
	if current < 1 || current > len(old) {
		return 1
	}
	at := old[current-1]
	oldCount := chapterPageCount(old, at.ChapterIndex)
	first := chapterFirstPage(pages, at.ChapterIndex)
	newCount := chapterPageCount(pages, at.ChapterIndex)
	if newCount == 0 || oldCount == 0 {
		return first
	}
	offset := int(float64(at.PageInChapter-1) / float64(oldCount) * float64(newCount))
	return min(first+min(offset, newCount-1), len(pages))
}

func chapterPageCount(pages []PageInfo, chapterIndex int) int {
	n := 0
	for _, p := range pages {
		if p.ChapterIndex == chapterIndex {
			n++
		}
	}
	return n
}

// TotalPages returns the size of the committed page table.
func (e *Engine) TotalPages() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pages)
}

// CurrentPage returns the 1-based current page, 0 when there are no pages.
func (e *Engine) CurrentPage() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Engine) IsCalculating() bool {
	return e.State() == Calculating
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// PageContent returns the markup of page n.
func (e *Engine) PageContent(n int) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n < 1 || n > len(e.pages) {
		return "", false
	}
	return e.pages[n-1].Content, true
}

func (e *Engine) CurrentPageInfo() (PageInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current < 1 || e.current > len(e.pages) {
		return PageInfo{}, false
	}
	return e.pages[e.current-1], true
}

// DynamicToc returns a copy of the TOC resolved against the committed pages.
func (e *Engine) DynamicToc() []TocEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneToc(e.toc)
}

func cloneToc(entries []TocEntry) []TocEntry {
	if entries == nil {
		return nil
	}
	out := make([]TocEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry
		out[i].Children = cloneToc(entry.Children)
	}
	return out
}

// ChapterRange returns the first page of a chapter and its page count.
func (e *Engine) ChapterRange(chapterIndex int) (first, count int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.pages) == 0 {
		return 0, 0
	}
	return chapterFirstPage(e.pages, chapterIndex), chapterPageCount(e.pages, chapterIndex)
}

// GoToPage moves to page n. Pages outside [1, TotalPages] are ignored.
func (e *Engine) GoToPage(n int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 1 || n > len(e.pages) {
		return false
	}
	e.current = n
	return true
}

func (e *Engine) NextPage() bool {
	return e.GoToPage(e.CurrentPage() + 1)
}

func (e *Engine) PreviousPage() bool {
	return e.GoToPage(e.CurrentPage() - 1)
}

// GoToTocItem moves to the page of the first entry with id, searching depth
// first.
func (e *Engine) GoToTocItem(id string) bool {
	e.mu.RLock()
	entry, ok := findToc(e.toc, id)
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return e.GoToPage(entry.Page)
}

// GoToChapter moves to the given 1-based page of a chapter, clamped to the
// chapter's pages.
func (e *Engine) GoToChapter(chapterIndex, pageInChapter int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pages) == 0 || chapterIndex < 0 {
		return false
	}
	first := chapterFirstPage(e.pages, chapterIndex)
	count := chapterPageCount(e.pages, chapterIndex)
	page := first
	if count > 0 {
		page = first + clamp(pageInChapter, 1, count) - 1
	}
	e.current = page
	return true
}

// Close cancels pending recalculations and any pass running on the engine's
// own context.
func (e *Engine) Close() {
	e.settingsDebounce.Stop()
	e.chromeDebounce.Stop()
	e.cancel()
}
