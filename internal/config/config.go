// Package config loads drawgen settings from a YAML file, a .env file and
// DRAWGEN_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DRAWGEN_"

// Defaults.
const (
	DefaultBindingTolerance = 200.0
	DefaultMinExtent        = 1.0
	DefaultCoordinateLimit  = 1e6
	DefaultExtent           = 100.0
	DefaultJitterTolerance  = 1.0
	DefaultTextColor        = "#000000"
	DefaultFontSize         = 16.0
	DefaultMaxRevisions     = 40
	DefaultPruneSchedule    = "@every 10m"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultLogMaxSizeMB     = 50
)

type Config struct {
	DataDir      string `yaml:"data-dir" json:"data-dir"`
	DBPath       string `yaml:"db-path,omitempty" json:"db-path,omitempty"`
	LibrariesDir string `yaml:"libraries-dir,omitempty" json:"libraries-dir,omitempty"`

	Binding  BindingConfig  `yaml:"binding" json:"binding"`
	Geometry GeometryConfig `yaml:"geometry" json:"geometry"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Style    StyleConfig    `yaml:"style" json:"style"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// BindingConfig controls how connector endpoints attach to shapes.
type BindingConfig struct {
	// Tolerance is the farthest an endpoint may be from a shape's edge
	// midpoint and still bind to it.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	MinExtent float64 `yaml:"min-extent" json:"min-extent"`
}

type GeometryConfig struct {
	CoordinateLimit float64 `yaml:"coordinate-limit" json:"coordinate-limit"`
	DefaultExtent   float64 `yaml:"default-extent" json:"default-extent"`
}

type SyncConfig struct {
	JitterTolerance float64 `yaml:"jitter-tolerance" json:"jitter-tolerance"`
	AlignConnectors bool    `yaml:"align-connectors" json:"align-connectors"`
}

type StyleConfig struct {
	DefaultTextColor string  `yaml:"default-text-color" json:"default-text-color"`
	DefaultFontSize  float64 `yaml:"default-font-size" json:"default-font-size"`
}

type HistoryConfig struct {
	MaxRevisions  int    `yaml:"max-revisions" json:"max-revisions"`
	PruneSchedule string `yaml:"prune-schedule" json:"prune-schedule"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
	// File, when set, receives logs instead of stderr, rotated at MaxSizeMB.
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB int    `yaml:"max-size-mb" json:"max-size-mb"`
}

// Default returns a normalized configuration rooted at the user's data
// directory.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Load reads path (optional; a missing file is not an error), then envFile
// (optional), then DRAWGEN_* variables, and returns the normalized result.
func Load(path, envFile string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize trims strings and fills every unset field with its default.
func (c *Config) Normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	c.DBPath = strings.TrimSpace(c.DBPath)
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "drawgen.db")
	}
	c.LibrariesDir = strings.TrimSpace(c.LibrariesDir)
	if c.LibrariesDir == "" {
		c.LibrariesDir = filepath.Join(c.DataDir, "libraries")
	}

	if c.Binding.Tolerance == 0 {
		c.Binding.Tolerance = DefaultBindingTolerance
	}
	if c.Binding.MinExtent == 0 {
		c.Binding.MinExtent = DefaultMinExtent
	}
	if c.Geometry.CoordinateLimit == 0 {
		c.Geometry.CoordinateLimit = DefaultCoordinateLimit
	}
	if c.Geometry.DefaultExtent == 0 {
		c.Geometry.DefaultExtent = DefaultExtent
	}
	if c.Sync.JitterTolerance == 0 {
		c.Sync.JitterTolerance = DefaultJitterTolerance
	}
	c.Style.DefaultTextColor = strings.TrimSpace(c.Style.DefaultTextColor)
	if c.Style.DefaultTextColor == "" {
		c.Style.DefaultTextColor = DefaultTextColor
	}
	if c.Style.DefaultFontSize == 0 {
		c.Style.DefaultFontSize = DefaultFontSize
	}
	if c.History.MaxRevisions == 0 {
		c.History.MaxRevisions = DefaultMaxRevisions
	}
	c.History.PruneSchedule = strings.TrimSpace(c.History.PruneSchedule)
	if c.History.PruneSchedule == "" {
		c.History.PruneSchedule = DefaultPruneSchedule
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]float64{
		"binding.tolerance":         c.Binding.Tolerance,
		"binding.min-extent":        c.Binding.MinExtent,
		"geometry.coordinate-limit": c.Geometry.CoordinateLimit,
		"geometry.default-extent":   c.Geometry.DefaultExtent,
		"sync.jitter-tolerance":     c.Sync.JitterTolerance,
		"style.default-font-size":   c.Style.DefaultFontSize,
	}
	for _, key := range sortedKeys(positive) {
		if v := positive[key]; v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", key, v))
		}
	}
	if c.History.MaxRevisions < 1 {
		errs = append(errs, fmt.Errorf("history.max-revisions must be at least 1, got %d", c.History.MaxRevisions))
	}
	if _, err := cron.ParseStandard(c.History.PruneSchedule); err != nil {
		errs = append(errs, fmt.Errorf("history.prune-schedule: %w", err))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnv overrides fields from DRAWGEN_* variables. Keys are the YAML
// paths upper-cased with separators turned into underscores, e.g.
// DRAWGEN_BINDING_TOLERANCE.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":                 &c.DataDir,
		"DB_PATH":                  &c.DBPath,
		"LIBRARIES_DIR":            &c.LibrariesDir,
		"STYLE_DEFAULT_TEXT_COLOR": &c.Style.DefaultTextColor,
		"HISTORY_PRUNE_SCHEDULE":   &c.History.PruneSchedule,
		"LOGGING_LEVEL":            &c.Logging.Level,
		"LOGGING_FORMAT":           &c.Logging.Format,
		"LOGGING_FILE":             &c.Logging.File,
	}
	floats := map[string]*float64{
		"BINDING_TOLERANCE":         &c.Binding.Tolerance,
		"BINDING_MIN_EXTENT":        &c.Binding.MinExtent,
		"GEOMETRY_COORDINATE_LIMIT": &c.Geometry.CoordinateLimit,
		"GEOMETRY_DEFAULT_EXTENT":   &c.Geometry.DefaultExtent,
		"SYNC_JITTER_TOLERANCE":     &c.Sync.JitterTolerance,
		"STYLE_DEFAULT_FONT_SIZE":   &c.Style.DefaultFontSize,
	}
	ints := map[string]*int{
		"HISTORY_MAX_REVISIONS": &c.History.MaxRevisions,
		"LOGGING_MAX_SIZE_MB":   &c.Logging.MaxSizeMB,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	for key, dst := range floats {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SYNC_ALIGN_CONNECTORS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSYNC_ALIGN_CONNECTORS: %w", EnvPrefix, err)
		}
		c.Sync.AlignConnectors = b
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "drawgen")
	}
	return ".drawgen"
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
