package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidFullConfigResolvesStorePath(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
url: "https://example.com/tap"
store:
  path: "keys.csv"
  backup_suffix: "_backup.csv"
runtime:
  reader_index: 0
  timeout_millis: 2000
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := filepath.Join(tmp, "keys.csv")
	if cfg.Store.Path != want {
		t.Fatalf("expected resolved store path %q, got %q", want, cfg.Store.Path)
	}
}

func TestLoadEmulatorModeAllowsMinimalConfig(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "https://example.com/tap"
`)
	cfg, err := LoadWithMode(cfgPath, ValidationEmulator)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if cfg.URL != "https://example.com/tap" {
		t.Fatalf("unexpected url: %s", cfg.URL)
	}
}

func TestLoadFullFailsWithoutStorePath(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "https://example.com/tap"
runtime:
  reader_index: 0
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.store.path is required") {
		t.Fatalf("expected missing store path error, got %v", err)
	}
}

func TestLoadFullFailsWithoutReaderIndex(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "https://example.com/tap"
store:
  path: "keys.csv"
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.runtime.reader_index is required") {
		t.Fatalf("expected missing reader_index error, got %v", err)
	}
}

func TestLoadFailsOnInvalidURL(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "example.com/tap"
store:
  path: "keys.csv"
runtime:
  reader_index: 0
`)
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.url must be absolute") {
		t.Fatalf("expected invalid url error, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "https://example.com/tap"
store:
  path: "keys.csv"
  typo_field: true
runtime:
  reader_index: 0
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadDefaultsBackupSuffix(t *testing.T) {
	cfgPath := writeConfig(t, `
url: "https://example.com/tap"
store:
  path: "keys.csv"
runtime:
  reader_index: 0
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.BackupSuffix != "_backup.csv" {
		t.Fatalf("expected default backup suffix, got %q", cfg.Store.BackupSuffix)
	}
}
