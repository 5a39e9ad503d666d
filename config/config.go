// Package config loads and persists the application configuration at
// ~/.modoki/config.json. The on-disk file may carry // comments and
// trailing commas; Save always writes canonical JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/jsonc"
)

// Config holds the persisted settings. JSON keys are the stable on-disk
// names; zero values never reach disk because Load starts from Default.
type Config struct {
	Model               string `json:"model"`
	TimeoutSeconds      int    `json:"timeout"`
	AutoConfirm         bool   `json:"auto_confirm"`
	MaxContextMessages  int    `json:"max_context_messages"`
	CompactKeepRecent   int    `json:"compact_keep_recent"`
	AutoContext         bool   `json:"auto_context"`
	AutoContextMaxFiles int    `json:"auto_context_max_files"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Model:               "gpt-4.1-mini",
		TimeoutSeconds:      30,
		AutoConfirm:         false,
		MaxContextMessages:  200,
		CompactKeepRecent:   10,
		AutoContext:         true,
		AutoContextMaxFiles: 50,
	}
}

// Dir returns the configuration directory, ~/.modoki.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".modoki"), nil
}

// Path returns the configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the file at path and merges it over the defaults. A
// missing file is not an error. A malformed file is; the returned
// Config is still the usable defaults so callers may warn and continue.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return Default(), fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ApplyEnv overlays environment variables on top of the loaded file:
// MODOKI_MODEL, MODOKI_AUTO_CONFIRM, and MODOKI_TIMEOUT.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MODOKI_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("MODOKI_AUTO_CONFIRM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoConfirm = b
		}
	}
	if v := os.Getenv("MODOKI_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TimeoutSeconds = n
		}
	}
}

// Keys lists the configuration keys in display order.
func Keys() []string {
	return []string{
		"model",
		"timeout",
		"auto_confirm",
		"max_context_messages",
		"compact_keep_recent",
		"auto_context",
		"auto_context_max_files",
	}
}

// Get returns the value stored under a JSON key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "model":
		return c.Model, true
	case "timeout":
		return c.TimeoutSeconds, true
	case "auto_confirm":
		return c.AutoConfirm, true
	case "max_context_messages":
		return c.MaxContextMessages, true
	case "compact_keep_recent":
		return c.CompactKeepRecent, true
	case "auto_context":
		return c.AutoContext, true
	case "auto_context_max_files":
		return c.AutoContextMaxFiles, true
	}
	return nil, false
}

// Set parses raw according to the key's type and assigns it.
func (c *Config) Set(key, raw string) error {
	switch key {
	case "model":
		c.Model = raw
	case "auto_confirm", "auto_context":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		if key == "auto_confirm" {
			c.AutoConfirm = b
		} else {
			c.AutoContext = b
		}
	case "timeout", "max_context_messages", "compact_keep_recent", "auto_context_max_files":
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s expects a positive integer, got %q", key, raw)
		}
		switch key {
		case "timeout":
			c.TimeoutSeconds = n
		case "max_context_messages":
			c.MaxContextMessages = n
		case "compact_keep_recent":
			c.CompactKeepRecent = n
		case "auto_context_max_files":
			c.AutoContextMaxFiles = n
		}
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}
