package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.ChunkSize != 5000 || cfg.Layout.SettingsDebounce != 300*time.Millisecond || cfg.Watch.Threshold != 2 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte(`
log_level: debug
reading:
  font_size: 22
  theme: dark
cache:
  chunk_size: 2000
  sweep_interval: 30s
layout:
  chrome_debounce: 1s
  chrome_defaults:
    toolbar: 48
    sidebar: 10
watch:
  poll_interval: 250ms
`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log level", cfg.LogLevel, "debug"},
		{"font size", cfg.Reading.FontSize, 22.0},
		{"theme", cfg.Reading.Theme, "dark"},
		{"font family default", cfg.Reading.FontFamily, "serif"},
		{"line height default", cfg.Reading.LineHeight, 1.6},
		{"chunk size", cfg.Cache.ChunkSize, 2000},
		{"sweep interval", cfg.Cache.SweepInterval, 30 * time.Second},
		{"max chunks default", cfg.Cache.MaxChunks, 10},
		{"chrome debounce", cfg.Layout.ChromeDebounce, time.Second},
		{"settings debounce default", cfg.Layout.SettingsDebounce, 300 * time.Millisecond},
		{"toolbar override", cfg.Layout.ChromeDefaults["toolbar"], 48.0},
		{"navigation default", cfg.Layout.ChromeDefaults["navigation"], 50.0},
		{"extra region", cfg.Layout.ChromeDefaults["sidebar"], 10.0},
		{"poll interval", cfg.Watch.PollInterval, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("reading: [not, a, map"), 0644)
	cfg, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg.Reading.FontSize != 18 {
		t.Errorf("invalid file should still return defaults, got %+v", cfg.Reading)
	}
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := DefaultPath(), filepath.Join(dir, "leaf", "config.yaml"); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	s := Settings{FontSize: -1, Margin: -5}.Normalize()
	if s.FontSize != 18 || s.Margin != 20 || s.PageMode != "single" {
		t.Errorf("Settings.Normalize = %+v", s)
	}
	zeroMargin := Settings{Margin: 0}.Normalize()
	if zeroMargin.Margin != 0 {
		t.Errorf("a zero margin is valid, got %v", zeroMargin.Margin)
	}

	l := Layout{SafetyMargin: 0, ChromeDefaults: map[string]float64{"status": 1}}.Normalize()
	if l.SafetyMargin != 0 || l.MinHeight != 200 || l.YieldEvery != 3 || l.BisectIterations != 8 {
		t.Errorf("Layout.Normalize = %+v", l)
	}
	if l.ChromeDefaults["status"] != 1 || l.ChromeDefaults["toolbar"] != 60 {
		t.Errorf("chrome defaults = %v", l.ChromeDefaults)
	}
}
