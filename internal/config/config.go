// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tutorchat.
//
// Configuration file locations (in order of precedence):
//   - ~/.tutorchat/config.toml
//   - ~/.tutorchat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"

	"github.com/jeranaias/tutorchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tutorchat configuration.
type Config struct {
	// Tutoring API (token issuance and streaming)
	API APIConfig `toml:"api" json:"api"`

	// Retrieval service (uploads and embedding search)
	RAG RAGConfig `toml:"rag" json:"rag"`

	// Durable chat storage
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Session token handling
	Token TokenConfig `toml:"token" json:"token"`

	// Streaming behaviour
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`
}

// APIConfig configures the tutoring API client.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://aitutor-api.vercel.app/api/v1
	BaseURL string `toml:"base_url" json:"base_url" env:"TUTORCHAT_API_URL"`
	// APIKey is sent as a bearer credential on token and stream requests
	APIKey string `toml:"api_key" json:"api_key" env:"TUTORCHAT_API_KEY"`
	// ChatbotID selects the tutor persona
	ChatbotID string `toml:"chatbot_id" json:"chatbot_id" env:"TUTORCHAT_CHATBOT_ID"`
	// TimeoutSecs bounds token requests; streams are bounded by cancellation
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" env:"TUTORCHAT_API_TIMEOUT"`
}

// RAGConfig configures the retrieval client.
type RAGConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url" env:"TUTORCHAT_RAG_URL"`
	APIKey      string `toml:"api_key" json:"api_key" env:"TUTORCHAT_RAG_KEY"`
	TopK        int    `toml:"top_k" json:"top_k" env:"TUTORCHAT_RAG_TOP_K"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs" env:"TUTORCHAT_RAG_TIMEOUT"`
}

// StorageConfig selects the kvstore backend.
type StorageConfig struct {
	// Backend is one of: file, sqlite, redis, memory
	Backend string `toml:"backend" json:"backend" env:"TUTORCHAT_STORAGE"`
	// Dir holds the file and sqlite stores (empty = ~/.tutorchat/data)
	Dir string `toml:"dir" json:"dir" env:"TUTORCHAT_DATA_DIR"`
	// RedisURL is used when Backend is "redis"
	RedisURL string `toml:"redis_url" json:"redis_url" env:"TUTORCHAT_REDIS_URL"`
	// RedisPrefix namespaces keys on a shared server
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix" env:"TUTORCHAT_REDIS_PREFIX"`
}

// TokenConfig configures session token issuance.
type TokenConfig struct {
	// FallbackToken is used when issuance fails (empty = fail the turn)
	FallbackToken string `toml:"fallback_token" json:"fallback_token" env:"TUTORCHAT_FALLBACK_TOKEN"`
	// SafetyMarginSecs is subtracted from the server-reported lifetime
	SafetyMarginSecs int `toml:"safety_margin_secs" json:"safety_margin_secs" env:"TUTORCHAT_TOKEN_MARGIN"`
	// StrictFallback reports issuance failures instead of using FallbackToken
	StrictFallback bool `toml:"strict_fallback" json:"strict_fallback" env:"TUTORCHAT_STRICT_TOKENS"`
}

// StreamConfig configures the streaming turn.
type StreamConfig struct {
	// MaxResponseMB caps a single streamed response body
	MaxResponseMB int `toml:"max_response_mb" json:"max_response_mb" env:"TUTORCHAT_MAX_RESPONSE_MB"`
	// LiveUpdatesPerSec throttles live redraws (0 = every progress event)
	LiveUpdatesPerSec float64 `toml:"live_updates_per_sec" json:"live_updates_per_sec" env:"TUTORCHAT_LIVE_RATE"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `toml:"level" json:"level" env:"TUTORCHAT_LOG_LEVEL"`
	// NoColor disables ANSI colors even on a terminal
	NoColor bool `toml:"no_color" json:"no_color" env:"TUTORCHAT_NO_COLOR"`
}

// Defaults for the hosted services.
const (
	DefaultAPIBaseURL = "https://aitutor-api.vercel.app/api/v1"
	DefaultRAGBaseURL = "https://rag-api-llm.up.railway.app"
	DefaultTopK       = 5
)

// Default returns a config populated with built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     DefaultAPIBaseURL,
			TimeoutSecs: 60,
		},
		RAG: RAGConfig{
			BaseURL:     DefaultRAGBaseURL,
			TopK:        DefaultTopK,
			TimeoutSecs: 60,
		},
		Storage: StorageConfig{
			Backend:     "file",
			RedisPrefix: "tutorchat:",
		},
		Token: TokenConfig{
			SafetyMarginSecs: 5,
		},
		Stream: StreamConfig{
			MaxResponseMB: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// APITimeout returns the token request timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// RAGTimeout returns the retrieval request timeout.
func (c *Config) RAGTimeout() time.Duration {
	return time.Duration(c.RAG.TimeoutSecs) * time.Second
}

// TokenMargin returns the expiry safety margin.
func (c *Config) TokenMargin() time.Duration {
	return time.Duration(c.Token.SafetyMarginSecs) * time.Second
}

// MaxResponseBytes returns the stream body cap in bytes.
func (c *Config) MaxResponseBytes() int64 {
	return int64(c.Stream.MaxResponseMB) * 1024 * 1024
}

// DataDir returns the storage directory, defaulting under ConfigDir.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the tutorchat configuration directory path.
// TUTORCHAT_HOME overrides the default ~/.tutorchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("TUTORCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tutorchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files hold API keys and should be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// finish applies env overrides, fills blanks and validates.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in values a file explicitly blanked.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.RAG.BaseURL == "" {
		cfg.RAG.BaseURL = defaults.RAG.BaseURL
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaults.RAG.TopK
	}
	if cfg.RAG.TimeoutSecs == 0 {
		cfg.RAG.TimeoutSecs = defaults.RAG.TimeoutSecs
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Stream.MaxResponseMB == 0 {
		cfg.Stream.MaxResponseMB = defaults.Stream.MaxResponseMB
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	cfg.API.BaseURL = strings.TrimSuffix(cfg.API.BaseURL, "/")
	cfg.RAG.BaseURL = strings.TrimSuffix(cfg.RAG.BaseURL, "/")
}

// ApplyEnvOverrides overlays TUTORCHAT_* environment variables. Unset
// variables leave the loaded values untouched.
//
// Supported environment variables:
//   - TUTORCHAT_API_URL, TUTORCHAT_API_KEY, TUTORCHAT_CHATBOT_ID
//   - TUTORCHAT_RAG_URL, TUTORCHAT_RAG_KEY, TUTORCHAT_RAG_TOP_K
//   - TUTORCHAT_STORAGE, TUTORCHAT_DATA_DIR, TUTORCHAT_REDIS_URL
//   - TUTORCHAT_FALLBACK_TOKEN, TUTORCHAT_STRICT_TOKENS
//   - TUTORCHAT_LOG_LEVEL, TUTORCHAT_NO_COLOR
func (c *Config) ApplyEnvOverrides() error {
	return env.Parse(c)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML.
// SECURITY: Written 0600 because the file carries API keys.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# tutorchat configuration file\n")
	b.WriteString("# Environment variables (TUTORCHAT_*) override these values.\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := validateURL(c.API.BaseURL); err != nil {
		add("api.base_url", "%v", err)
	}
	if c.API.TimeoutSecs < 0 {
		add("api.timeout_secs", "must not be negative, got %d", c.API.TimeoutSecs)
	}

	if err := validateURL(c.RAG.BaseURL); err != nil {
		add("rag.base_url", "%v", err)
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > 50 {
		add("rag.top_k", "must be between 1 and 50, got %d", c.RAG.TopK)
	}
	if c.RAG.TimeoutSecs < 0 {
		add("rag.timeout_secs", "must not be negative, got %d", c.RAG.TimeoutSecs)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "file", "sqlite", "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			add("storage.redis_url", "required when backend is redis")
		}
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, redis, memory", c.Storage.Backend)
	}

	if c.Token.SafetyMarginSecs < 0 {
		add("token.safety_margin_secs", "must not be negative, got %d", c.Token.SafetyMarginSecs)
	}

	if c.Stream.MaxResponseMB < 1 {
		add("stream.max_response_mb", "must be at least 1, got %d", c.Stream.MaxResponseMB)
	}
	if c.Stream.LiveUpdatesPerSec < 0 {
		add("stream.live_updates_per_sec", "must not be negative, got %g", c.Stream.LiveUpdatesPerSec)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	return result.ErrorOrNil()
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL '%s': %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s': scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s': missing host", raw)
	}
	return nil
}
