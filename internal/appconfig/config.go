// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/treykane/ssh-profiles/internal/util"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// ProbeConfig controls the connectivity test.
type ProbeConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// JournalConfig controls the change journal in events.jsonl.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SecurityConfig controls how errors are shown to the user.
type SecurityConfig struct {
	RedactErrors bool `yaml:"redact_errors"`
}

// Config holds application-level configuration.
type Config struct {
	SSHConfigPath string         `yaml:"ssh_config_path"`
	MetadataPath  string         `yaml:"metadata_path,omitempty"`
	LogLevel      string         `yaml:"log_level"`
	Probe         ProbeConfig    `yaml:"probe"`
	UI            UIConfig       `yaml:"ui"`
	Journal       JournalConfig  `yaml:"journal"`
	Security      SecurityConfig `yaml:"security"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SSHConfigPath: "~/.ssh/config",
		LogLevel:      LogLevelInfo,
		Probe:         ProbeConfig{TimeoutSeconds: util.DefaultProbeTimeoutSeconds},
		UI:            UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
		Journal:       JournalConfig{Enabled: true},
		Security:      SecurityConfig{RedactErrors: true},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/ssh-profiles.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ssh-profiles"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "ssh-profiles"), nil
}

func dirFile(name string) (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

// RuntimeFilePath returns the full path to runtime.json.
func RuntimeFilePath() (string, error) { return dirFile("runtime.json") }

// EventsFilePath returns the full path to the events.jsonl change journal.
func EventsFilePath() (string, error) { return dirFile("events.jsonl") }

// HistoryFilePath returns the full path to history.json.
func HistoryFilePath() (string, error) { return dirFile("history.json") }

// DefaultMetadataPath returns <config dir>/metadata.yaml.
func DefaultMetadataPath() (string, error) { return dirFile("metadata.yaml") }

// ResolvedSSHConfigPath returns SSHConfigPath with ~ expanded.
func (c Config) ResolvedSSHConfigPath() string {
	return util.ExpandHome(c.SSHConfigPath)
}

// ResolvedMetadataPath returns MetadataPath with ~ expanded, or the default
// sidecar location when unset.
func (c Config) ResolvedMetadataPath() (string, error) {
	if strings.TrimSpace(c.MetadataPath) == "" {
		return DefaultMetadataPath()
	}
	return util.ExpandHome(c.MetadataPath), nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.SSHConfigPath) == "" {
		cfg.SSHConfigPath = def.SSHConfigPath
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	switch cfg.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		cfg.Probe.TimeoutSeconds = def.Probe.TimeoutSeconds
	}
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = def.UI.RefreshSeconds
	}
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
