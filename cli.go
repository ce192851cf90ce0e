package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
	"github.com/metcalfc/leaf/internal/state"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type options struct {
	configPath  string
	fontSize    float64
	fresh       bool
	showTOC     bool
	showVersion bool
	logLevel    string
	file        string
}

func parseFlags(name string, args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	fs.Float64Var(&o.fontSize, "font-size", 0, "Font size (overrides the config file)")
	fs.BoolVar(&o.fresh, "fresh", false, "Ignore saved reading position")
	fs.BoolVar(&o.showTOC, "toc", false, "Show table of contents at startup")
	fs.BoolVar(&o.showVersion, "v", false, "Show version information")
	fs.BoolVar(&o.showVersion, "version", false, "Show version information")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Leaf - paginated reader for EPUB, Markdown and text\n\n")
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  %s [options] file\n\n", name)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  %s book.epub                 Resume where you left off\n", name)
		fmt.Fprintf(stderr, "  %s --fresh --toc book.epub   Start over with the contents open\n", name)
		fmt.Fprintf(stderr, "  %s -font-size 22 notes.md    Read with a larger font\n", name)
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.showVersion {
		return o, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, fmt.Errorf("expected one file, got %d arguments", fs.NArg())
	}
	o.file = fs.Arg(0)
	return o, nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(o options) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.fontSize > 0 {
		cfg.Reading.FontSize = o.fontSize
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// setupLogging points the global logger at w. An unknown level falls back to
// info.
func setupLogging(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		With().Timestamp().Logger()
}

// openLogFile opens the log file in the state directory, falling back to
// stderr.
func openLogFile() (io.Writer, func()) {
	dir := state.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return os.Stderr, func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "leaf.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}

func versionString(name string) string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", name, version, commit, date)
}

// flattenTOC lists entries depth first.
func flattenTOC(entries []layout.TocEntry) []layout.TocEntry {
	var out []layout.TocEntry
	for _, e := range entries {
		out = append(out, e)
		out = append(out, flattenTOC(e.Children)...)
	}
	return out
}
