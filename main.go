//go:build !gui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
	"github.com/metcalfc/leaf/internal/measure"
	"github.com/metcalfc/leaf/internal/session"
	"github.com/metcalfc/leaf/internal/state"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)
)

// The terminal starts with one row each for the status and short help lines.
var terminalChrome = []layout.Region{
	{Name: "status", Height: 1, Present: true},
	{Name: "help", Height: 1, Present: true},
}

type keyMap struct {
	Next      key.Binding
	Prev      key.Binding
	First     key.Binding
	Last      key.Binding
	TOC       key.Binding
	Search    key.Binding
	NextMatch key.Binding
	Restart   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.TOC, k.Search, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.First, k.Last},
		{k.TOC, k.Search, k.NextMatch, k.Restart},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Next:      key.NewBinding(key.WithKeys("right", "l", " ", "pgdown"), key.WithHelp("→/space", "next page")),
	Prev:      key.NewBinding(key.WithKeys("left", "h", "pgup"), key.WithHelp("←", "previous page")),
	First:     key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first page")),
	Last:      key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last page")),
	TOC:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "contents")),
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	NextMatch: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next match")),
	Restart:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// reflowMsg is sent when a layout pass finishes.
type reflowMsg layout.Result

type model struct {
	sess     *session.Session
	renderer *measure.TerminalSurface
	help     help.Model
	search   textinput.Model

	width  int
	height int

	tocVisible bool
	toc        []layout.TocEntry
	tocCursor  int

	searching bool
	matches   []session.Match
	matchIdx  int
	message   string
}

func newModel(sess *session.Session, width, height int) model {
	ti := textinput.New()
	ti.Placeholder = "search"
	ti.Prompt = "/"
	m := model{
		sess:     sess,
		renderer: measure.NewTerminalSurface(),
		help:     help.New(),
		search:   ti,
		width:    width,
		height:   height,
	}
	m.help.Width = width
	m.renderer.Apply(measure.Typography{}, float64(width))
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	engine := m.sess.Engine()
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.renderer.Apply(measure.Typography{}, float64(msg.Width))
		engine.SetViewport(float64(msg.Width), float64(msg.Height))
		return m, nil

	case reflowMsg:
		if msg.Err != nil {
			m.message = "layout failed: " + msg.Err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.tocVisible {
			return m.updateTOC(msg)
		}
		m.message = ""
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Next):
			engine.NextPage()
		case key.Matches(msg, keys.Prev):
			engine.PreviousPage()
		case key.Matches(msg, keys.First):
			engine.GoToPage(1)
		case key.Matches(msg, keys.Last):
			engine.GoToPage(engine.TotalPages())
		case key.Matches(msg, keys.TOC):
			m.toc = flattenTOC(engine.DynamicToc())
			if len(m.toc) == 0 {
				m.message = "no table of contents"
				break
			}
			m.tocVisible = true
			m.tocCursor = tocCursorFor(m.toc, engine.CurrentPage())
		case key.Matches(msg, keys.Search):
			m.searching = true
			m.search.SetValue("")
			return m, m.search.Focus()
		case key.Matches(msg, keys.NextMatch):
			if len(m.matches) > 0 {
				m.matchIdx = (m.matchIdx + 1) % len(m.matches)
				m.showMatch()
			}
		case key.Matches(msg, keys.Restart):
			if err := m.sess.Restart(); err != nil {
				m.message = err.Error()
			}
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			engine.SetChrome(m.chrome())
		}
	}
	return m, nil
}

// chrome reports the rows taken by the status line and the help view, which
// grows to several rows when the full help is shown.
func (m model) chrome() []layout.Region {
	return []layout.Region{
		{Name: "status", Height: 1, Present: true},
		{Name: "help", Height: float64(m.helpRows()), Present: true},
	}
}

func (m model) helpRows() int {
	return max(lipgloss.Height(m.help.View(keys)), 1)
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return m, nil
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		query := m.search.Value()
		m.matches = m.sess.Search(query, 200)
		m.matchIdx = 0
		if len(m.matches) == 0 {
			m.message = fmt.Sprintf("%q not found", query)
			return m, nil
		}
		m.showMatch()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *model) showMatch() {
	match := m.matches[m.matchIdx]
	m.sess.Engine().GoToPage(match.Page)
	m.message = fmt.Sprintf("match %d/%d: %s", m.matchIdx+1, len(m.matches), match.Snippet)
}

func (m model) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.tocCursor > 0 {
			m.tocCursor--
		}
	case "down", "j":
		if m.tocCursor < len(m.toc)-1 {
			m.tocCursor++
		}
	case "enter":
		m.sess.Engine().GoToTocItem(m.toc[m.tocCursor].ID)
		m.tocVisible = false
	case "esc", "t", "q":
		m.tocVisible = false
	}
	return m, nil
}

func (m model) View() string {
	engine := m.sess.Engine()
	bodyHeight := max(m.height-1-m.helpRows(), 1)

	var body string
	switch {
	case m.tocVisible:
		body = m.viewTOC(bodyHeight)
	case engine.TotalPages() == 0 && engine.IsCalculating():
		body = "Paginating..."
	default:
		content, _ := engine.PageContent(engine.CurrentPage())
		body = m.renderer.Render(content)
	}
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	var bottom string
	switch {
	case m.searching:
		bottom = m.search.View()
	case m.message != "":
		bottom = messageStyle.Render(truncate(m.message, m.width))
	default:
		bottom = m.help.View(keys)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.status(), body, bottom)
}

func (m model) status() string {
	engine := m.sess.Engine()
	chapter := ""
	if info, ok := engine.CurrentPageInfo(); ok && info.ChapterIndex < len(m.sess.Book.Chapters) {
		chapter = m.sess.Book.Chapters[info.ChapterIndex].Title
	}
	busy := ""
	if engine.IsCalculating() {
		busy = " [reflowing]"
	}
	line := fmt.Sprintf("%s | %s | Page %d/%d%s",
		m.sess.Book.Title, chapter, engine.CurrentPage(), engine.TotalPages(), busy)
	return statusStyle.Render(truncate(line, max(m.width-2, 1)))
}

func (m model) viewTOC(height int) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Table of Contents"))
	sb.WriteString("\n")
	start := 0
	if m.tocCursor >= height-1 {
		start = m.tocCursor - height + 2
	}
	for i := start; i < len(m.toc) && i-start < height-1; i++ {
		e := m.toc[i]
		line := fmt.Sprintf("%s%s  %d", strings.Repeat("  ", e.Level), e.Title, e.Page)
		if i == m.tocCursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// tocCursorFor selects the last entry starting at or before page.
func tocCursorFor(toc []layout.TocEntry, page int) int {
	cursor := 0
	for i, e := range toc {
		if e.Page <= page {
			cursor = i
		}
	}
	return cursor
}

// truncate shortens s to width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return runewidth.Truncate(s, 1, "")
	}
	return runewidth.Truncate(s, width, "…")
}

// terminalConfig adapts the layout to a cell grid.
func terminalConfig(cfg config.Config) config.Config {
	cfg.Reading.Margin = 0
	cfg.Layout.SafetyMargin = 0
	cfg.Layout.MinHeight = 3
	cfg.Layout.ChromeDefaults = map[string]float64{"status": 1, "help": 1}
	return cfg
}

func main() {
	opts, err := parseFlags("leaf", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(versionString("leaf"))
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	logOut, closeLog := openLogFile()
	defer closeLog()
	setupLogging(cfg.LogLevel, logOut)
	if err != nil {
		log.Warn().Err(err).Str("path", opts.configPath).Msg("using default config")
	}
	cfg = terminalConfig(cfg)

	var storeOpt []session.Option
	if store, err := state.NewStore(); err == nil {
		storeOpt = append(storeOpt, session.WithStore(store))
	} else {
		log.Warn().Err(err).Msg("reading positions will not be saved")
	}

	var prog atomic.Pointer[tea.Program]
	sessOpts := append(storeOpt,
		session.Fresh(opts.fresh),
		session.WithOnCommit(func(r layout.Result) {
			if p := prog.Load(); p != nil {
				p.Send(reflowMsg(r))
			}
		}),
	)

	const width, height = 80, 24
	sess, err := session.Open(context.Background(), opts.file, cfg, measure.NewTerminalSurface(),
		layout.Viewport{Width: width, Height: height, Chrome: terminalChrome}, sessOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open '%s': %v\n", opts.file, err)
		os.Exit(1)
	}

	m := newModel(sess, width, height)
	if opts.showTOC {
		m.toc = flattenTOC(sess.Engine().DynamicToc())
		m.tocVisible = len(m.toc) > 0
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	prog.Store(p)

	_, runErr := p.Run()
	prog.Store(nil)
	if err := sess.Close(); err != nil {
		log.Error().Err(err).Msg("close session")
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
