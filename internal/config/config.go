// Package config loads the YAML configuration for the coin provisioning
// tools: where the key store lives, the SDM URL template, and reader/runtime
// settings.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationMode selects which fields Load requires. Emulator mode never
// touches a card or key store, so it skips everything except the URL.
type ValidationMode int

const (
	// ValidationFull requires every field needed to provision real tags.
	ValidationFull ValidationMode = iota
	// ValidationEmulator only requires the SDM URL template, since
	// emulate-sdm never opens a reader or key store.
	ValidationEmulator
)

// Config is the top-level on-disk shape, decoded with KnownFields(true) so
// a typo in the YAML fails loudly instead of silently defaulting.
type Config struct {
	URL     string        `yaml:"url"`
	Store   StoreConfig   `yaml:"store"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// StoreConfig locates the CSV key store.
type StoreConfig struct {
	Path         string `yaml:"path"`
	BackupSuffix string `yaml:"backup_suffix"`
}

// RuntimeConfig carries reader selection and per-APDU timeout.
type RuntimeConfig struct {
	ReaderIndex   *int `yaml:"reader_index"`
	TimeoutMillis *int `yaml:"timeout_millis"`
}

// Load reads and validates a config file in ValidationFull mode.
func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

// LoadWithMode reads, decodes, resolves relative paths against the config
// file's directory, and validates cfg per mode.
func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs ValidationFull.
func (c *Config) Validate() error { return c.ValidateWithMode(ValidationFull) }

// ValidateWithMode runs the checks appropriate to mode.
func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	switch mode {
	case ValidationEmulator:
		return nil
	case ValidationFull:
		return c.validateFullMode()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("config.url is required")
	}
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("config.url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config.url must be absolute (scheme and host)")
	}
	return nil
}

func (c *Config) validateFullMode() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("config.store.path is required")
	}
	if strings.TrimSpace(c.Store.BackupSuffix) == "" {
		c.Store.BackupSuffix = "_backup.csv"
	}
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	if c.Runtime.TimeoutMillis != nil && *c.Runtime.TimeoutMillis <= 0 {
		return fmt.Errorf("config.runtime.timeout_millis must be > 0")
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	c.Store.Path = resolvePath(dir, c.Store.Path)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
