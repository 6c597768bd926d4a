package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"checkin-backend/scanner"
	"checkin-backend/textmatch"
)

// Config is the scanner's YAML configuration file.
type Config struct {
	ServerURL       string        `yaml:"server_url"`
	DataDir         string        `yaml:"data_dir"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DebounceWindow  time.Duration `yaml:"debounce_window"`
	DrainInterval   time.Duration `yaml:"drain_interval"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	SearchLimit     int           `yaml:"search_limit"`
	DisplayTimezone string        `yaml:"display_timezone"`
	LogLevel        string        `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		ServerURL:       "http://localhost:8080",
		DataDir:         defaultDataDir(),
		RequestTimeout:  15 * time.Second,
		DebounceWindow:  scanner.DefaultDebounceWindow,
		DrainInterval:   scanner.DefaultDrainInterval,
		ProbeInterval:   scanner.DefaultProbeInterval,
		SearchLimit:     textmatch.DefaultLimit,
		DisplayTimezone: "UTC",
		LogLevel:        "warn",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "checkin-scanner")
	}
	return ".checkin-scanner"
}

// loadConfig reads path, falling back to $SCANNER_CONFIG. With neither
// set the defaults are returned. Fields absent from the file keep their
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv("SCANNER_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(file)
	return cfg, cfg.validate()
}

func (c *Config) merge(o Config) {
	if o.ServerURL != "" {
		c.ServerURL = o.ServerURL
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.RequestTimeout > 0 {
		c.RequestTimeout = o.RequestTimeout
	}
	if o.DebounceWindow > 0 {
		c.DebounceWindow = o.DebounceWindow
	}
	if o.DrainInterval > 0 {
		c.DrainInterval = o.DrainInterval
	}
	if o.ProbeInterval > 0 {
		c.ProbeInterval = o.ProbeInterval
	}
	if o.SearchLimit > 0 {
		c.SearchLimit = textmatch.ClampLimit(o.SearchLimit)
	}
	if o.DisplayTimezone != "" {
		c.DisplayTimezone = o.DisplayTimezone
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

func (c Config) validate() error {
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url must be an http(s) URL, got %q", c.ServerURL)
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("display_timezone: %w", err)
	}
	return nil
}
