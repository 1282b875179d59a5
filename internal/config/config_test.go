package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roip/claude-reflections/internal/analyze"
)

// ConfigSuite is a test suite for config operations. Each test runs against
// a throwaway HOME so no real settings leak in.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// writeSettings creates the data dir with the given settings.json content.
func (s *ConfigSuite) writeSettings(content string) {
	s.Require().NoError(os.MkdirAll(DataDir(), 0o750))
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte(content), 0o600))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(".", cfg.DumpRoot)
	s.Equal(DefaultIdleGapSeconds, cfg.IdleGapSeconds)
	s.Equal(DefaultMaxResultLines, cfg.MaxResultLines)
	s.Equal(DefaultLookback, cfg.Lookback)
	s.Equal(RulesFile(), cfg.RulesPath)
	s.Equal(analyze.DefaultThresholds(), cfg.Thresholds)
}

// TestDataDir tests data directory path.
func (s *ConfigSuite) TestDataDir() {
	dir := DataDir()
	s.Contains(dir, ".claude-reflections")
}

// TestSettingsPath tests settings file path.
func (s *ConfigSuite) TestSettingsPath() {
	path := SettingsPath()
	s.Contains(path, "settings.json")
}

// TestRulesFile tests the rule override file path.
func (s *ConfigSuite) TestRulesFile() {
	path := RulesFile()
	s.Contains(path, "rules.yaml")
}

// TestEnsureDataDir tests data directory creation.
func (s *ConfigSuite) TestEnsureDataDir() {
	err := EnsureDataDir()
	s.NoError(err)

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
}

// TestEnsureSettings tests settings file creation.
func (s *ConfigSuite) TestEnsureSettings() {
	s.Require().NoError(EnsureDataDir())

	err := EnsureSettings()
	s.NoError(err)

	info, err := os.Stat(SettingsPath())
	s.NoError(err)
	s.False(info.IsDir())

	// Second call should not error (file exists)
	err = EnsureSettings()
	s.NoError(err)

	// The written template must load back to the defaults.
	cfg, err := Load()
	s.NoError(err)
	s.Equal(DefaultIdleGapSeconds, cfg.IdleGapSeconds)
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	err := EnsureAll()
	s.NoError(err)

	_, err = os.Stat(DataDir())
	s.NoError(err)
	_, err = os.Stat(SettingsPath())
	s.NoError(err)
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name            string
		settingsJSON    string
		expectedIdleGap int
		expectedLines   int
		expectedLook    int
	}{
		{
			name:            "no settings file",
			settingsJSON:    "",
			expectedIdleGap: DefaultIdleGapSeconds,
			expectedLines:   DefaultMaxResultLines,
			expectedLook:    DefaultLookback,
		},
		{
			name:            "custom idle gap",
			settingsJSON:    `{"REFLECTIONS_IDLE_GAP_SECONDS": 1800}`,
			expectedIdleGap: 1800,
			expectedLines:   DefaultMaxResultLines,
			expectedLook:    DefaultLookback,
		},
		{
			name:            "unlimited result lines",
			settingsJSON:    `{"REFLECTIONS_MAX_RESULT_LINES": -1}`,
			expectedIdleGap: DefaultIdleGapSeconds,
			expectedLines:   -1,
			expectedLook:    DefaultLookback,
		},
		{
			name:            "multiple settings",
			settingsJSON:    `{"REFLECTIONS_IDLE_GAP_SECONDS": 7200, "REFLECTIONS_MAX_RESULT_LINES": 50, "REFLECTIONS_LOOKBACK": 3}`,
			expectedIdleGap: 7200,
			expectedLines:   50,
			expectedLook:    3,
		},
		{
			name:            "zero and negative values ignored",
			settingsJSON:    `{"REFLECTIONS_IDLE_GAP_SECONDS": 0, "REFLECTIONS_LOOKBACK": -2}`,
			expectedIdleGap: DefaultIdleGapSeconds,
			expectedLines:   DefaultMaxResultLines,
			expectedLook:    DefaultLookback,
		},
		{
			name:            "invalid JSON returns defaults",
			settingsJSON:    `{invalid}`,
			expectedIdleGap: DefaultIdleGapSeconds,
			expectedLines:   DefaultMaxResultLines,
			expectedLook:    DefaultLookback,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			tempDir, err := os.MkdirTemp("", "config-test-*")
			s.Require().NoError(err)
			defer os.RemoveAll(tempDir)

			os.Setenv("HOME", tempDir)

			if tt.settingsJSON != "" {
				s.writeSettings(tt.settingsJSON)
			}

			cfg, err := Load()
			s.NoError(err)
			s.NotNil(cfg)
			s.Equal(tt.expectedIdleGap, cfg.IdleGapSeconds)
			s.Equal(tt.expectedLines, cfg.MaxResultLines)
			s.Equal(tt.expectedLook, cfg.Lookback)
		})
	}
}

// TestLoad_ThresholdOverride tests partial threshold table overrides.
func (s *ConfigSuite) TestLoad_ThresholdOverride() {
	s.writeSettings(`{
		"REFLECTIONS_THRESHOLDS": {
			"active_hours": {"healthy": 1, "warning": 2}
		}
	}`)

	cfg, err := Load()
	s.Require().NoError(err)

	s.Equal(analyze.Bound{Healthy: 1, Warning: 2}, cfg.Thresholds.ActiveHours)
	// Metrics not mentioned keep their defaults.
	s.Equal(analyze.DefaultThresholds().ToolErrors, cfg.Thresholds.ToolErrors)
}

// TestLoad_DumpRootAndRulesPath tests path settings with ~ expansion.
func (s *ConfigSuite) TestLoad_DumpRootAndRulesPath() {
	s.writeSettings(`{
		"REFLECTIONS_DUMP_ROOT": "~/projects/api",
		"REFLECTIONS_RULES_PATH": "/etc/reflections/rules.yaml"
	}`)

	cfg, err := Load()
	s.Require().NoError(err)

	s.Equal(filepath.Join(s.tempDir, "projects", "api"), cfg.DumpRoot)
	s.Equal("/etc/reflections/rules.yaml", cfg.RulesPath)
}

// TestLoad_EnvOverridesFile tests that environment variables win over the
// settings file.
func (s *ConfigSuite) TestLoad_EnvOverridesFile() {
	s.writeSettings(`{"REFLECTIONS_IDLE_GAP_SECONDS": 1800}`)

	os.Setenv("REFLECTIONS_IDLE_GAP_SECONDS", "900")
	defer os.Unsetenv("REFLECTIONS_IDLE_GAP_SECONDS")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(900, cfg.IdleGapSeconds)
}

// TestLoad_EnvInvalidIgnored tests that unparseable environment values fall
// back to the file value.
func (s *ConfigSuite) TestLoad_EnvInvalidIgnored() {
	s.writeSettings(`{"REFLECTIONS_IDLE_GAP_SECONDS": 1800}`)

	os.Setenv("REFLECTIONS_IDLE_GAP_SECONDS", "not-a-number")
	defer os.Unsetenv("REFLECTIONS_IDLE_GAP_SECONDS")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(1800, cfg.IdleGapSeconds)
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	cfg := Get()
	require.NotNil(t, cfg)
	assert.Greater(t, cfg.IdleGapSeconds, 0)
	assert.NotZero(t, cfg.Thresholds.ActiveHours)

	// Cached: a second call returns the same instance.
	assert.Same(t, cfg, Get())
}

func TestIdleGapDuration(t *testing.T) {
	cfg := &Config{IdleGapSeconds: 90}
	assert.Equal(t, "1m30s", cfg.IdleGap().String())
}

// TestExpandHome tests the ~ expansion helper.
func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no tilde",
			input:    "/var/dumps",
			expected: "/var/dumps",
		},
		{
			name:     "bare tilde",
			input:    "~",
			expected: home,
		},
		{
			name:     "tilde with path",
			input:    "~/dumps",
			expected: filepath.Join(home, "dumps"),
		},
		{
			name:     "relative path untouched",
			input:    "dumps",
			expected: "dumps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandHome(tt.input))
		})
	}
}
