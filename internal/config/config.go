// Package config loads reader configuration from YAML and supplies defaults
// for the chunk cache, the layout engine and the change watcher.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Config is the full reader configuration.
type Config struct {
	LogLevel string   `yaml:"log_level"`
	Reading  Settings `yaml:"reading"`
	Cache    Cache    `yaml:"cache"`
	Layout   Layout   `yaml:"layout"`
	Watch    Watch    `yaml:"watch"`
}

// Settings are the typography and display settings applied wholesale on every
// change.
type Settings struct {
	FontFamily string  `yaml:"font_family"`
	FontSize   float64 `yaml:"font_size"`
	LineHeight float64 `yaml:"line_height"`
	Margin     float64 `yaml:"margin"`
	Theme      string  `yaml:"theme"`
	PageMode   string  `yaml:"page_mode"`
}

// Cache configures the chunk cache.
type Cache struct {
	ChunkSize       int           `yaml:"chunk_size"`
	PreloadDistance int           `yaml:"preload_distance"`
	MaxChunks       int           `yaml:"max_chunks"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
}

// Layout configures the reflow layout engine.
type Layout struct {
	SafetyMargin     float64            `yaml:"safety_margin"`
	MinHeight        float64            `yaml:"min_height"`
	ChromeDefaults   map[string]float64 `yaml:"chrome_defaults"`
	SplitThreshold   int                `yaml:"split_threshold"`
	GroupBudget      int                `yaml:"group_budget"`
	BisectIterations int                `yaml:"bisect_iterations"`
	YieldEvery       int                `yaml:"yield_every"`
	SettingsDebounce time.Duration      `yaml:"settings_debounce"`
	ChromeDebounce   time.Duration      `yaml:"chrome_debounce"`
}

// Watch configures the layout change watcher.
type Watch struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Threshold    float64       `yaml:"threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Reading:  DefaultSettings(),
		Cache:    DefaultCache(),
		Layout:   DefaultLayout(),
		Watch:    DefaultWatch(),
	}
}

// DefaultSettings returns the default reading settings.
func DefaultSettings() Settings {
	return Settings{
		FontFamily: "serif",
		FontSize:   18,
		LineHeight: 1.6,
		Margin:     20,
		Theme:      "light",
		PageMode:   "single",
	}
}

func DefaultCache() Cache {
	return Cache{
		ChunkSize:       5000,
		PreloadDistance: 2,
		MaxChunks:       10,
		SweepInterval:   time.Minute,
		StaleAfter:      5 * time.Minute,
	}
}

func DefaultLayout() Layout {
	return Layout{
		SafetyMargin: 20,
		MinHeight:    200,
		ChromeDefaults: map[string]float64{
			"toolbar":    60,
			"navigation": 50,
			"progress":   40,
		},
		SplitThreshold:   800,
		GroupBudget:      400,
		BisectIterations: 8,
		YieldEvery:       3,
		SettingsDebounce: 300 * time.Millisecond,
		ChromeDebounce:   500 * time.Millisecond,
	}
}

func DefaultWatch() Watch {
	return Watch{
		PollInterval: 100 * time.Millisecond,
		Threshold:    2,
	}
}

// Load reads the config file at path over the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fill()
	return cfg, nil
}

// DefaultPath returns XDG_CONFIG_HOME/leaf/config.yaml or ~/.config/leaf/config.yaml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "leaf", configFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "leaf", configFileName)
}

// fill replaces zero or invalid values with defaults.
func (c *Config) fill() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Reading = c.Reading.Normalize()

	dc := DefaultCache()
	if c.Cache.ChunkSize <= 0 {
		c.Cache.ChunkSize = dc.ChunkSize
	}
	if c.Cache.PreloadDistance < 0 {
		c.Cache.PreloadDistance = dc.PreloadDistance
	}
	if c.Cache.MaxChunks <= 0 {
		c.Cache.MaxChunks = dc.MaxChunks
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = dc.SweepInterval
	}
	if c.Cache.StaleAfter <= 0 {
		c.Cache.StaleAfter = dc.StaleAfter
	}

	c.Layout = c.Layout.Normalize()

	dw := DefaultWatch()
	if c.Watch.PollInterval <= 0 {
		c.Watch.PollInterval = dw.PollInterval
	}
	if c.Watch.Threshold < 0 {
		c.Watch.Threshold = dw.Threshold
	}
}

// Normalize fills zero fields of s from the defaults.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if s.Margin < 0 {
		s.Margin = d.Margin
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.PageMode == "" {
		s.PageMode = d.PageMode
	}
	return s
}

// Normalize fills zero fields of l from the defaults. Chrome defaults from the
// file are merged over the built-in ones.
func (l Layout) Normalize() Layout {
	d := DefaultLayout()
	if l.SafetyMargin < 0 {
		l.SafetyMargin = d.SafetyMargin
	}
	if l.MinHeight <= 0 {
		l.MinHeight = d.MinHeight
	}
	merged := d.ChromeDefaults
	for k, v := range l.ChromeDefaults {
		merged[k] = v
	}
	l.ChromeDefaults = merged
	if l.SplitThreshold <= 0 {
		l.SplitThreshold = d.SplitThreshold
	}
	if l.GroupBudget <= 0 {
		l.GroupBudget = d.GroupBudget
	}
	if l.BisectIterations <= 0 {
		l.BisectIterations = d.BisectIterations
	}
	if l.YieldEvery <= 0 {
		l.YieldEvery = d.YieldEvery
	}
	if l.SettingsDebounce <= 0 {
		l.SettingsDebounce = d.SettingsDebounce
	}
	if l.ChromeDebounce <= 0 {
		l.ChromeDebounce = d.ChromeDebounce
	}
	return l
}
