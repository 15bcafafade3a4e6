// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("RAG.TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.Token.SafetyMarginSecs != 5 {
		t.Errorf("Token.SafetyMarginSecs = %d, want 5", cfg.Token.SafetyMarginSecs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://tutor.example.com/api/v1/"
api_key = "key-123"
chatbot_id = "bot-1"

[rag]
top_k = 8

[storage]
backend = "sqlite"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.API.BaseURL != "https://tutor.example.com/api/v1" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.ChatbotID != "bot-1" {
		t.Errorf("ChatbotID = %q", cfg.API.ChatbotID)
	}
	if cfg.RAG.TopK != 8 {
		t.Errorf("TopK = %d, want 8", cfg.RAG.TopK)
	}
	if cfg.RAG.BaseURL != DefaultRAGBaseURL {
		t.Errorf("unset RAG.BaseURL should keep the default, got %q", cfg.RAG.BaseURL)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config permissions = %o, want 600", info.Mode().Perm())
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"api":{"chatbot_id":"json-bot"}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.API.ChatbotID != "json-bot" {
		t.Errorf("ChatbotID = %q, want json-bot", cfg.API.ChatbotID)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\napi_key = \"from-file\"\nchatbot_id = \"file-bot\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TUTORCHAT_API_KEY", "from-env")
	t.Setenv("TUTORCHAT_RAG_TOP_K", "3")
	t.Setenv("TUTORCHAT_STRICT_TOKENS", "true")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.API.APIKey)
	}
	if cfg.API.ChatbotID != "file-bot" {
		t.Errorf("unset env var must not clobber file value, got %q", cfg.API.ChatbotID)
	}
	if cfg.RAG.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.RAG.TopK)
	}
	if !cfg.Token.StrictFallback {
		t.Error("StrictFallback should be true")
	}
}

func TestLoad_UsesConfigHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TUTORCHAT_HOME", home)

	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("[log]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		t.Fatal(err)
	}
	if dataDir != filepath.Join(home, "data") {
		t.Errorf("DataDir = %q", dataDir)
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.API.ChatbotID = "saved-bot"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.API.ChatbotID != "saved-bot" {
		t.Errorf("ChatbotID = %q", loaded.API.ChatbotID)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid", func(c *Config) {}, "", false},
		{"bad api url", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url", true},
		{"missing host", func(c *Config) { c.RAG.BaseURL = "https://" }, "rag.base_url", true},
		{"top_k zero", func(c *Config) { c.RAG.TopK = 0 }, "rag.top_k", true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend", true},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redis_url", true},
		{"negative margin", func(c *Config) { c.Token.SafetyMarginSecs = -1 }, "token.safety_margin_secs", true},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level", true},
		{"negative live rate", func(c *Config) { c.Stream.LiveUpdatesPerSec = -2 }, "stream.live_updates_per_sec", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention %q", err, tt.field)
			}
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := Default()
	cfg.RAG.TopK = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(merr.Errors))
	}
	var ve ValidationError
	if !errors.As(merr.Errors[0], &ve) {
		t.Errorf("expected ValidationError, got %T", merr.Errors[0])
	}
}
