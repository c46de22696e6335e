// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Chat.Mode != "standard" || cfg.Chat.PollSeconds != 5 || cfg.Chat.InvitationPollSeconds != 30 {
		t.Errorf("unexpected defaults: %+v", cfg.Chat)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should default on")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Chat.PollSeconds != 5 {
		t.Errorf("defaults not applied: %+v", cfg.Chat)
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Backend.URL = "https://app.example.com"
	cfg.Backend.UserID = "u1"
	cfg.Chat.PollSeconds = 8

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}
	got, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if got.Backend.URL != "https://app.example.com" || got.Chat.PollSeconds != 8 {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FONDCHAT_URL", "https://env.example.com")
	t.Setenv("FONDCHAT_USER", "env-user")
	t.Setenv("FONDCHAT_VERBOSE", "true")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Backend.URL != "https://env.example.com" || cfg.Backend.UserID != "env-user" || !cfg.Backend.Verbose {
		t.Errorf("env overrides not applied: %+v", cfg.Backend)
	}
}

func TestNormalizeClampsNonsense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[chat]\npoll_seconds = -3\nmode = \"\"\n"), 0600)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Chat.PollSeconds != 5 || cfg.Chat.Mode != "standard" {
		t.Errorf("normalize did not clamp: %+v", cfg.Chat)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("[backend]\nurl = \"https://a\"\n"), 0600)

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	os.WriteFile(path, []byte("[backend]\nurl = \"https://b\"\n"), 0600)

	select {
	case cfg := <-reloaded:
		if cfg.Backend.URL != "https://b" {
			t.Errorf("reloaded url = %q", cfg.Backend.URL)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}
