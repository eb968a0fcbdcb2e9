package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFileReadsTOMLFields(t *testing.T) {
	path := writeTOML(t, `
Address = "127.0.0.1"
Port = 9090
LogLevel = "debug"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Address != "127.0.0.1" || cfg.Port != 9090 || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestOverlayFileOnlyOverridesNonZeroFields(t *testing.T) {
	path := writeTOML(t, `
Port = 9999
`)
	cfg := &Config{Address: "0.0.0.0", Port: 8080, LogLevel: "info"}
	if err := cfg.overlayFile(path); err != nil {
		t.Fatalf("overlayFile: %v", err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("Port = %d, want 9999 (overridden by file)", cfg.Port)
	}
	if cfg.Address != "0.0.0.0" {
		t.Fatalf("Address = %q, want unchanged 0.0.0.0 (file left it unset)", cfg.Address)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want unchanged info", cfg.LogLevel)
	}
}

func TestLoadFileMissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
