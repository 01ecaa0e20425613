package appconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_CreatesDefaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SSHConfigPath != "~/.ssh/config" {
		t.Fatalf("unexpected ssh config path: %s", cfg.SSHConfigPath)
	}
	if cfg.Probe.TimeoutSeconds != 5 || cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Journal.Enabled {
		t.Fatal("expected journal.enabled default true")
	}
	if !cfg.Security.RedactErrors {
		t.Fatal("expected redact_errors default true")
	}
	if _, err := os.Stat(filepath.Join(xdg, "ssh-profiles", "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml to be created: %v", err)
	}
}

func TestLoad_NormalizesInvalidValues(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "ssh-profiles")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte(strings.Join([]string{
		"ssh_config_path: \"\"",
		"log_level: LOUD",
		"probe:",
		"  timeout_seconds: -4",
		"ui:",
		"  refresh_seconds: 0",
		"journal:",
		"  enabled: false",
		"",
	}, "\n"))
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SSHConfigPath != "~/.ssh/config" {
		t.Fatalf("expected default ssh config path, got %q", cfg.SSHConfigPath)
	}
	if cfg.LogLevel != LogLevelInfo {
		t.Fatalf("expected normalized log level, got %q", cfg.LogLevel)
	}
	if cfg.Probe.TimeoutSeconds != 5 || cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("expected normalized timings, got %+v", cfg)
	}
	if cfg.Journal.Enabled {
		t.Fatal("explicit journal.enabled=false must be kept")
	}
}

func TestResolvedPaths(t *testing.T) {
	home := t.TempDir()
	xdg := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg := Default()
	got := cfg.ResolvedSSHConfigPath()
	if want := filepath.Join(home, ".ssh", "config"); got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
	meta, err := cfg.ResolvedMetadataPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(xdg, "ssh-profiles", "metadata.yaml"); meta != want {
		t.Fatalf("want %s, got %s", want, meta)
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		LogLevelDebug: slog.LevelDebug,
		LogLevelInfo:  slog.LevelInfo,
		LogLevelWarn:  slog.LevelWarn,
		LogLevelError: slog.LevelError,
		"":            slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).Level(); got != want {
			t.Errorf("Level(%q): want %v, got %v", in, want, got)
		}
	}
}
