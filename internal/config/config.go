// Package config provides configuration management for claude-reflections.
// Settings live in ~/.claude-reflections/settings.json under flat
// environment-style keys; the same REFLECTIONS_* names set in the
// environment override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/roip/claude-reflections/internal/analyze"
)

// Defaults for the recognized options.
const (
	DefaultIdleGapSeconds = 3600
	DefaultMaxResultLines = 100
	DefaultLookback       = 5
)

// dataDirName is the per-user directory holding settings and rule overrides.
const dataDirName = ".claude-reflections"

// Config holds runtime configuration for the analyzer.
type Config struct {
	// DumpRoot is the directory searched when no explicit dump path is
	// given. Discovery also descends into .claude/context-dumps beneath it.
	DumpRoot string
	// IdleGapSeconds is the smallest pause counted as idle time.
	IdleGapSeconds int
	// MaxResultLines bounds the tool result payload kept per event.
	// Negative keeps full payloads.
	MaxResultLines int
	// Lookback is the direction-change window in user messages.
	Lookback int
	// RulesPath points at an optional classifier rule override file. A
	// missing file falls back to the embedded rules.
	RulesPath string
	// Thresholds is the verdict threshold table.
	Thresholds analyze.Thresholds
}

// IdleGap returns the idle threshold as a duration.
func (c *Config) IdleGap() time.Duration {
	return time.Duration(c.IdleGapSeconds) * time.Second
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DumpRoot:       ".",
		IdleGapSeconds: DefaultIdleGapSeconds,
		MaxResultLines: DefaultMaxResultLines,
		Lookback:       DefaultLookback,
		RulesPath:      RulesFile(),
		Thresholds:     analyze.DefaultThresholds(),
	}
}

// DataDir returns the per-user data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// RulesFile returns the default rule override file path.
func RulesFile() string {
	return filepath.Join(DataDir(), "rules.yaml")
}

// EnsureDataDir creates the data directory when missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a settings file with the default values when none
// exists, so users have a template to edit.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(defaultSettings(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// settings is the on-disk shape. All fields are optional; absent keys keep
// their defaults. Keys mirror the environment variable names so both
// sources read alike.
type settings struct {
	DumpRoot       *string            `json:"REFLECTIONS_DUMP_ROOT,omitempty"`
	IdleGapSeconds *int               `json:"REFLECTIONS_IDLE_GAP_SECONDS,omitempty"`
	MaxResultLines *int               `json:"REFLECTIONS_MAX_RESULT_LINES,omitempty"`
	Lookback       *int               `json:"REFLECTIONS_LOOKBACK,omitempty"`
	RulesPath      *string            `json:"REFLECTIONS_RULES_PATH,omitempty"`
	Thresholds     *thresholdSettings `json:"REFLECTIONS_THRESHOLDS,omitempty"`
}

// thresholdSettings overrides individual metrics of the threshold table;
// metrics left out keep their defaults.
type thresholdSettings struct {
	ActiveHours      *analyze.Bound `json:"active_hours,omitempty"`
	ToolErrors       *analyze.Bound `json:"tool_errors,omitempty"`
	ErrorsPerHour    *analyze.Bound `json:"errors_per_hour,omitempty"`
	UserCorrections  *analyze.Bound `json:"user_corrections,omitempty"`
	DirectionChanges *analyze.Bound `json:"direction_changes,omitempty"`
	RealUserMessages *analyze.Bound `json:"real_user_messages,omitempty"`
	TranscriptLines  *analyze.Bound `json:"transcript_lines,omitempty"`
}

func defaultSettings() settings {
	def := Default()
	return settings{
		DumpRoot:       &def.DumpRoot,
		IdleGapSeconds: &def.IdleGapSeconds,
		MaxResultLines: &def.MaxResultLines,
		Lookback:       &def.Lookback,
		RulesPath:      &def.RulesPath,
	}
}

// Load builds the configuration from defaults, the settings file, and
// REFLECTIONS_* environment overrides, in that order. A missing or
// malformed settings file falls back to defaults rather than failing.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var s settings
		if err := json.Unmarshal(data, &s); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Malformed settings file, using defaults")
		} else {
			applySettings(cfg, s)
		}
	}

	applyEnv(cfg)

	cfg.DumpRoot = expandHome(cfg.DumpRoot)
	cfg.RulesPath = expandHome(cfg.RulesPath)
	return cfg, nil
}

var (
	cached     *Config
	cachedOnce sync.Once
)

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	cachedOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		cached = cfg
	})
	return cached
}

// applySettings overlays the non-nil settings fields onto cfg.
func applySettings(cfg *Config, s settings) {
	if s.DumpRoot != nil && *s.DumpRoot != "" {
		cfg.DumpRoot = *s.DumpRoot
	}
	if s.IdleGapSeconds != nil && *s.IdleGapSeconds > 0 {
		cfg.IdleGapSeconds = *s.IdleGapSeconds
	}
	if s.MaxResultLines != nil && *s.MaxResultLines != 0 {
		cfg.MaxResultLines = *s.MaxResultLines
	}
	if s.Lookback != nil && *s.Lookback > 0 {
		cfg.Lookback = *s.Lookback
	}
	if s.RulesPath != nil && *s.RulesPath != "" {
		cfg.RulesPath = *s.RulesPath
	}
	if s.Thresholds != nil {
		applyThresholds(&cfg.Thresholds, *s.Thresholds)
	}
}

func applyThresholds(t *analyze.Thresholds, s thresholdSettings) {
	if s.ActiveHours != nil {
		t.ActiveHours = *s.ActiveHours
	}
	if s.ToolErrors != nil {
		t.ToolErrors = *s.ToolErrors
	}
	if s.ErrorsPerHour != nil {
		t.ErrorsPerHour = *s.ErrorsPerHour
	}
	if s.UserCorrections != nil {
		t.UserCorrections = *s.UserCorrections
	}
	if s.DirectionChanges != nil {
		t.DirectionChanges = *s.DirectionChanges
	}
	if s.RealUserMessages != nil {
		t.RealUserMessages = *s.RealUserMessages
	}
	if s.TranscriptLines != nil {
		t.TranscriptLines = *s.TranscriptLines
	}
}

// applyEnv overlays REFLECTIONS_* environment variables onto cfg. The
// threshold table is file-only.
func applyEnv(cfg *Config) {
	if v := os.Getenv("REFLECTIONS_DUMP_ROOT"); v != "" {
		cfg.DumpRoot = v
	}
	if n, ok := envInt("REFLECTIONS_IDLE_GAP_SECONDS"); ok && n > 0 {
		cfg.IdleGapSeconds = n
	}
	if n, ok := envInt("REFLECTIONS_MAX_RESULT_LINES"); ok && n != 0 {
		cfg.MaxResultLines = n
	}
	if n, ok := envInt("REFLECTIONS_LOOKBACK"); ok && n > 0 {
		cfg.Lookback = n
	}
	if v := os.Getenv("REFLECTIONS_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
}

// envInt parses an integer environment variable. Unset or unparseable
// values report ok=false and are ignored.
func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring non-numeric setting")
		return 0, false
	}
	return n, true
}

// expandHome resolves a leading ~ against the user home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
