//go:build gui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	fynelayout "fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
	"github.com/metcalfc/leaf/internal/markup"
	"github.com/metcalfc/leaf/internal/measure"
	"github.com/metcalfc/leaf/internal/session"
	"github.com/metcalfc/leaf/internal/state"
	"github.com/metcalfc/leaf/internal/watch"
)

const (
	minFontSize = 10
	maxFontSize = 48
)

// readingTheme follows the reading settings for text size and background.
type readingTheme struct {
	mu       sync.RWMutex
	fontSize float32
	family   string
	dark     bool
}

func (t *readingTheme) set(s config.Settings) {
	t.mu.Lock()
	t.fontSize = float32(s.FontSize)
	t.family = s.FontFamily
	t.dark = s.Theme == "dark"
	t.mu.Unlock()
}

func (t *readingTheme) variant() fyne.ThemeVariant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dark {
		return theme.VariantDark
	}
	return theme.VariantLight
}

func (t *readingTheme) Color(n fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(n, t.variant())
}

// Font draws with the faces the pages were measured with.
func (t *readingTheme) Font(s fyne.TextStyle) fyne.Resource {
	t.mu.RLock()
	family := t.family
	t.mu.RUnlock()
	if s.Monospace {
		family = "mono"
	}
	key, ttf := measure.FontData(family)
	return fyne.NewStaticResource("leaf-"+key+".ttf", ttf)
}

func (t *readingTheme) Icon(n fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(n)
}

func (t *readingTheme) Size(n fyne.ThemeSizeName) float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch n {
	case theme.SizeNameText:
		return t.fontSize
	case theme.SizeNameHeadingText:
		return t.fontSize * 1.5
	case theme.SizeNameSubHeadingText:
		return t.fontSize * 1.25
	}
	return theme.DefaultTheme().Size(n)
}

// chromeRegion reports the laid out height of a window widget.
type chromeRegion struct {
	name string
	obj  fyne.CanvasObject
}

func (r chromeRegion) Name() string    { return r.name }
func (r chromeRegion) Height() float64 { return float64(r.obj.Size().Height) }
func (r chromeRegion) Visible() bool   { return r.obj.Visible() }

// pageSegments converts page markup into rich text segments.
func pageSegments(content string) []widget.RichTextSegment {
	blocks := markup.Blocks(content)
	segs := make([]widget.RichTextSegment, 0, len(blocks))
	for _, b := range blocks {
		style := widget.RichTextStyleParagraph
		switch b.Tag {
		case "h1", "h2":
			style = widget.RichTextStyleHeading
		case "h3", "h4", "h5", "h6":
			style = widget.RichTextStyleSubHeading
		case "blockquote":
			style = widget.RichTextStyleBlockquote
		case "pre":
			style = widget.RichTextStyleCodeBlock
		}
		segs = append(segs, &widget.TextSegment{Text: b.Text, Style: style})
	}
	return segs
}

func main() {
	opts, err := parseFlags("leaf-gui", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(versionString("leaf-gui"))
		os.Exit(0)
	}

	cfg, cfgErr := loadConfig(opts)
	setupLogging(cfg.LogLevel, os.Stderr)
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Str("path", opts.configPath).Msg("using default config")
	}

	var sessOpts []session.Option
	if store, err := state.NewStore(); err == nil {
		sessOpts = append(sessOpts, session.WithStore(store))
	} else {
		log.Warn().Err(err).Msg("reading positions will not be saved")
	}

	a := app.New()
	w := a.NewWindow("leaf")
	th := &readingTheme{}
	th.set(cfg.Reading.Normalize())
	a.Settings().SetTheme(th)

	page := widget.NewRichText()
	page.Wrapping = fyne.TextWrapWord
	statusLabel := widget.NewLabel("Paginating...")
	statusLabel.Alignment = fyne.TextAlignCenter
	progress := widget.NewProgressBar()

	var (
		sess      *session.Session
		settings  = cfg.Reading.Normalize()
		closeOnce sync.Once
		refresh   func()
		opened    atomic.Bool
	)
	sessOpts = append(sessOpts,
		session.Fresh(opts.fresh),
		session.WithOnCommit(func(r layout.Result) {
			if r.Err != nil {
				log.Warn().Err(r.Err).Uint64("generation", r.Generation).Msg("layout pass failed")
			}
			if opened.Load() {
				fyne.Do(refresh)
			}
		}),
	)

	const width, height = 800, 600
	chrome := []layout.Region{{Name: "toolbar"}, {Name: "navigation"}, {Name: "progress"}}
	sess, err = session.Open(context.Background(), opts.file, cfg, measure.NewCanvasSurface(),
		layout.Viewport{Width: width, Height: height, Chrome: chrome}, sessOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open '%s': %v\n", opts.file, err)
		os.Exit(1)
	}
	engine := sess.Engine()
	w.SetTitle("leaf - " + sess.Book.Title)

	refresh = func() {
		n := engine.CurrentPage()
		content, _ := engine.PageContent(n)
		page.Segments = pageSegments(content)
		page.Refresh()

		total := engine.TotalPages()
		chapter := ""
		if info, ok := engine.CurrentPageInfo(); ok && info.ChapterIndex < len(sess.Book.Chapters) {
			chapter = sess.Book.Chapters[info.ChapterIndex].Title
		}
		busy := ""
		if engine.IsCalculating() {
			busy = " [reflowing]"
		}
		statusLabel.SetText(fmt.Sprintf("%s | Page %d/%d | Font: %.0f%s", chapter, n, total, settings.FontSize, busy))
		if total > 0 {
			progress.SetValue(float64(n) / float64(total))
		} else {
			progress.SetValue(0)
		}
	}

	opened.Store(true)

	applySettings := func() {
		th.set(settings)
		a.Settings().SetTheme(th)
		engine.SetSettings(settings)
		refresh()
	}
	zoom := func(delta float64) {
		next := settings.FontSize + delta
		if next < minFontSize || next > maxFontSize {
			return
		}
		settings.FontSize = next
		applySettings()
	}
	next := func() { engine.NextPage(); refresh() }
	prev := func() { engine.PreviousPage(); refresh() }

	var tocPopup *widget.PopUp
	toc := flattenTOC(engine.DynamicToc())
	showTOC := func() {
		toc = flattenTOC(engine.DynamicToc())
		if len(toc) == 0 {
			return
		}
		list := widget.NewList(
			func() int { return len(toc) },
			func() fyne.CanvasObject { return widget.NewLabel("Title") },
			func(id widget.ListItemID, obj fyne.CanvasObject) {
				e := toc[id]
				obj.(*widget.Label).SetText(fmt.Sprintf("%s%s  (%d)", strings.Repeat("    ", e.Level), e.Title, e.Page))
			},
		)
		list.OnSelected = func(id widget.ListItemID) {
			if id < len(toc) {
				engine.GoToTocItem(toc[id].ID)
				refresh()
			}
			tocPopup.Hide()
		}
		content := container.NewBorder(
			widget.NewLabelWithStyle("Table of Contents", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			widget.NewButton("Close", func() { tocPopup.Hide() }),
			nil, nil, list,
		)
		tocPopup = widget.NewModalPopUp(content, w.Canvas())
		size := w.Canvas().Size()
		tocPopup.Resize(fyne.NewSize(size.Width*0.6, size.Height*0.8))
		tocPopup.Show()
	}

	search := widget.NewEntry()
	search.SetPlaceHolder("Search")
	var (
		matches   []session.Match
		matchIdx  int
		lastQuery string
	)
	// Submitting the same query again moves to the next match.
	search.OnSubmitted = func(q string) {
		if q != lastQuery || len(matches) == 0 {
			matches = sess.Search(q, 200)
			matchIdx = 0
			lastQuery = q
		} else {
			matchIdx = (matchIdx + 1) % len(matches)
		}
		if len(matches) == 0 {
			statusLabel.SetText(fmt.Sprintf("%q not found", q))
			return
		}
		engine.GoToPage(matches[matchIdx].Page)
		refresh()
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.ListIcon(), showTOC),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), func() { zoom(-2) }),
		widget.NewToolbarAction(theme.ZoomInIcon(), func() { zoom(2) }),
		widget.NewToolbarAction(theme.ColorPaletteIcon(), func() {
			if settings.Theme == "dark" {
				settings.Theme = "light"
			} else {
				settings.Theme = "dark"
			}
			applySettings()
		}),
		widget.NewToolbarSpacer(),
		widget.NewToolbarAction(theme.ViewFullScreenIcon(), func() { w.SetFullScreen(!w.FullScreen()) }),
	)
	top := container.NewBorder(nil, nil, nil, container.NewGridWrap(fyne.NewSize(220, search.MinSize().Height), search), toolbar)

	navigation := container.NewBorder(nil, nil,
		widget.NewButtonWithIcon("", theme.NavigateBackIcon(), prev),
		widget.NewButtonWithIcon("", theme.NavigateNextIcon(), next),
		statusLabel,
	)

	margin := float32(settings.Margin)
	body := container.New(fynelayout.NewCustomPaddedLayout(margin, margin, margin, margin),
		container.NewVScroll(page))

	w.SetContent(container.NewBorder(top, container.NewVBox(navigation, progress), nil, nil, body))

	w.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		if w.Canvas().Focused() == search {
			return
		}
		switch key.Name {
		case fyne.KeyRight, fyne.KeySpace, fyne.KeyPageDown:
			next()
		case fyne.KeyLeft, fyne.KeyPageUp:
			prev()
		case fyne.KeyHome:
			engine.GoToPage(1)
			refresh()
		case fyne.KeyEnd:
			engine.GoToPage(engine.TotalPages())
			refresh()
		case fyne.KeyF:
			w.SetFullScreen(!w.FullScreen())
		case fyne.KeyT:
			showTOC()
		case fyne.KeyR:
			if err := sess.Restart(); err != nil {
				log.Warn().Err(err).Msg("clear position")
			}
			refresh()
		case fyne.KeyQ:
			a.Quit()
		}
	})
	w.Canvas().SetOnTypedRune(func(r rune) {
		if w.Canvas().Focused() == search {
			return
		}
		switch r {
		case '+', '=':
			zoom(2)
		case '-':
			zoom(-2)
		case '/':
			w.Canvas().Focus(search)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	watcher := watch.New(cfg.Watch,
		func() (float64, float64) {
			s := w.Canvas().Size()
			return float64(s.Width), float64(s.Height)
		},
		watch.WithRegions(
			chromeRegion{name: "toolbar", obj: top},
			chromeRegion{name: "navigation", obj: navigation},
			chromeRegion{name: "progress", obj: progress},
		),
		watch.OnResize(engine.SetViewport),
		watch.OnChrome(engine.SetChrome),
	)
	go watcher.Run(ctx)

	w.SetOnClosed(func() {
		closeOnce.Do(func() {
			cancel()
			if err := sess.Close(); err != nil {
				log.Error().Err(err).Msg("close session")
			}
		})
	})

	w.Resize(fyne.NewSize(width, height))
	refresh()
	if opts.showTOC && len(toc) > 0 {
		fyne.Do(showTOC)
	}
	w.ShowAndRun()

	closeOnce.Do(func() {
		cancel()
		if err := sess.Close(); err != nil {
			log.Error().Err(err).Msg("close session")
		}
	})
}
