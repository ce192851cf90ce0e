package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/layout"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		wantFile string
		check    func(t *testing.T, o options)
	}{
		{
			name:     "file only",
			args:     []string{"book.epub"},
			wantFile: "book.epub",
		},
		{
			name:     "all options",
			args:     []string{"-fresh", "-toc", "-font-size", "22", "-log-level", "debug", "-config", "/tmp/c.yaml", "notes.md"},
			wantFile: "notes.md",
			check: func(t *testing.T, o options) {
				if !o.fresh || !o.showTOC {
					t.Errorf("fresh = %v, toc = %v, want both set", o.fresh, o.showTOC)
				}
				if o.fontSize != 22 || o.logLevel != "debug" || o.configPath != "/tmp/c.yaml" {
					t.Errorf("unexpected options %+v", o)
				}
			},
		},
		{
			name: "version needs no file",
			args: []string{"-version"},
			check: func(t *testing.T, o options) {
				if !o.showVersion {
					t.Error("showVersion not set")
				}
			},
		},
		{name: "no file", args: []string{}, wantErr: true},
		{name: "two files", args: []string{"a.txt", "b.txt"}, wantErr: true},
		{name: "bad font size", args: []string{"-font-size", "big", "a.txt"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			o, err := parseFlags("leaf", tt.args, &stderr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if o.file != tt.wantFile {
				t.Errorf("file = %q, want %q", o.file, tt.wantFile)
			}
			if tt.check != nil {
				tt.check(t, o)
			}
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags("leaf", []string{"-h"}, &stderr)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "log_level: warn\nreading:\n  font_size: 16\n  margin: 10\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(options{configPath: path})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Reading.FontSize != 16 || cfg.LogLevel != "warn" {
		t.Errorf("file values not loaded: font %v, level %q", cfg.Reading.FontSize, cfg.LogLevel)
	}

	cfg, err = loadConfig(options{configPath: path, fontSize: 24, logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Reading.FontSize != 24 || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: font %v, level %q", cfg.Reading.FontSize, cfg.LogLevel)
	}
	if cfg.Reading.Margin != 10 {
		t.Errorf("Margin = %v, want 10", cfg.Reading.Margin)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("reading: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(options{configPath: path})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg.Reading.FontSize <= 0 {
		t.Error("defaults not returned with error")
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			setupLogging(tt.level, &buf)
			if zerolog.GlobalLevel() != tt.want {
				t.Errorf("GlobalLevel() = %v, want %v", zerolog.GlobalLevel(), tt.want)
			}
		})
	}

	var buf bytes.Buffer
	setupLogging("info", &buf)
	log.Debug().Msg("hidden")
	log.Info().Str("book", "abc").Msg("opened")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %q", out)
	}
	if !strings.Contains(out, "opened") || !strings.Contains(out, "book=abc") {
		t.Errorf("info message missing: %q", out)
	}
}

func TestOpenLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	w, closeFn := openLogFile()
	defer closeFn()
	if w == os.Stderr {
		t.Fatal("fell back to stderr")
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Errorf("write failed: %v", err)
	}
}

func TestFlattenTOC(t *testing.T) {
	toc := []layout.TocEntry{
		{ID: "a", Children: []layout.TocEntry{{ID: "a1"}, {ID: "a2", Children: []layout.TocEntry{{ID: "a2x"}}}}},
		{ID: "b"},
	}
	var ids []string
	for _, e := range flattenTOC(toc) {
		ids = append(ids, e.ID)
	}
	if got := strings.Join(ids, ","); got != "a,a1,a2,a2x,b" {
		t.Errorf("flattenTOC() order = %s", got)
	}
}

func TestVersionString(t *testing.T) {
	got := versionString("leaf")
	if !strings.HasPrefix(got, "leaf dev") || !strings.Contains(got, "commit: none") {
		t.Errorf("versionString() = %q", got)
	}
}
