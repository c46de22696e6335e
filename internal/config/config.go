// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages fondchat configuration.
//
// Configuration file locations (in order of precedence):
//   - path given explicitly
//   - ~/.fondchat/config.toml
//   - Built-in defaults
//
// Environment variables (FONDCHAT_URL, FONDCHAT_TOKEN, FONDCHAT_USER,
// FONDCHAT_MODE) override values from any file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/nordfund/fondchat/internal/util"
)

// Config is the complete fondchat configuration.
type Config struct {
	// Backend connection
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Chat behavior
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Local cache
	Cache CacheConfig `toml:"cache" json:"cache"`
}

// BackendConfig identifies the dashboard backend and user.
type BackendConfig struct {
	// URL is the backend base URL, e.g. "https://app.nordfund.se".
	URL string `toml:"url" json:"url"`
	// Token is the bearer token sent on every request.
	Token string `toml:"token" json:"token"`
	// UserID identifies the acting user for shares and invitations.
	UserID string `toml:"user_id" json:"user_id"`
	// Verbose enables request logging.
	Verbose bool `toml:"verbose" json:"verbose"`
}

// ChatConfig tunes conversation behavior.
type ChatConfig struct {
	// Mode is the model selector sent with completion requests.
	Mode string `toml:"mode" json:"mode"`
	// PollSeconds is the shared-session poll interval.
	PollSeconds int `toml:"poll_seconds" json:"poll_seconds"`
	// InvitationPollSeconds is the invitation poll interval.
	InvitationPollSeconds int `toml:"invitation_poll_seconds" json:"invitation_poll_seconds"`
}

// CacheConfig controls the local session cache.
type CacheConfig struct {
	// Enabled toggles the sqlite session mirror.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path overrides the database location. Empty means
	// ~/.fondchat/sessions.db.
	Path string `toml:"path" json:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{},
		Chat: ChatConfig{
			Mode:                  "standard",
			PollSeconds:           5,
			InvitationPollSeconds: 30,
		},
		Cache: CacheConfig{Enabled: true},
	}
}

// ConfigDir returns ~/.fondchat, creating it if needed.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	dir := filepath.Join(home, ".fondchat")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath resolves where the session cache database lives.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// Load reads the standard config file, falling back to defaults when it
// does not exist, then applies environment overrides.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads a specific config file. A missing file is not an
// error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg, nil
}

// Save writes the configuration to the standard location atomically.
func Save(cfg *Config) error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific file atomically.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// applyEnvOverrides layers FONDCHAT_* variables over file values.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("FONDCHAT_URL"); url != "" {
		cfg.Backend.URL = url
	}
	if token := os.Getenv("FONDCHAT_TOKEN"); token != "" {
		cfg.Backend.Token = token
	}
	if user := os.Getenv("FONDCHAT_USER"); user != "" {
		cfg.Backend.UserID = user
	}
	if mode := os.Getenv("FONDCHAT_MODE"); mode != "" {
		cfg.Chat.Mode = mode
	}
	if verbose := os.Getenv("FONDCHAT_VERBOSE"); verbose != "" {
		if v, err := strconv.ParseBool(verbose); err == nil {
			cfg.Backend.Verbose = v
		}
	}
}

// normalize clamps nonsense values back to defaults.
func (c *Config) normalize() {
	if c.Chat.Mode == "" {
		c.Chat.Mode = "standard"
	}
	if c.Chat.PollSeconds <= 0 {
		c.Chat.PollSeconds = 5
	}
	if c.Chat.InvitationPollSeconds <= 0 {
		c.Chat.InvitationPollSeconds = 30
	}
}
