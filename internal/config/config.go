// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for exilebridge.
//
// Configuration is read from a TOML file with sensible built-in defaults and
// environment variable overrides. The loaded configuration is immutable for
// the lifetime of the process.
//
// File location (in order of precedence):
//   - path passed explicitly to Load
//   - ~/.exilebridge/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete exilebridge configuration.
type Config struct {
	// LogLevel controls log verbosity: "debug", "info", "warn", "error"
	LogLevel string `toml:"log_level"`

	// Server contains the inbound HTTP server configuration.
	Server ServerConfig `toml:"server"`

	// Trade contains the upstream trade search API configuration.
	Trade TradeConfig `toml:"trade"`

	// Chat contains the chat backend configuration.
	Chat ChatConfig `toml:"chat"`

	// RateLimit contains inbound admission control configuration.
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	// Port is the TCP port the server listens on.
	Port int `toml:"port"`
}

// TradeConfig contains the upstream trade search configuration.
type TradeConfig struct {
	// BaseURL is the trade API base URL.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs is the per-request timeout for trade searches.
	TimeoutSecs int `toml:"timeout_secs"`
	// DefaultLeague is used when a request does not name a league.
	DefaultLeague string `toml:"default_league"`
	// MaxRPS is the outbound request rate ceiling (token bucket refill).
	// Keep this below the upstream's published quota.
	MaxRPS float64 `toml:"max_rps"`
	// Burst is the outbound token bucket size.
	Burst int `toml:"burst"`
}

// ChatConfig contains the chat backend configuration.
type ChatConfig struct {
	// BaseURL is the chat backend base URL.
	BaseURL string `toml:"base_url"`
	// Model is the model identifier sent with each message.
	Model string `toml:"model"`
	// InsightTimeoutSecs bounds insight generation calls. Generative
	// responses are slower than trade searches, so this is the longer of
	// the two upstream timeouts.
	InsightTimeoutSecs int `toml:"insight_timeout_secs"`
	// ProxyTimeoutSecs bounds relayed /api/chat calls.
	ProxyTimeoutSecs int `toml:"proxy_timeout_secs"`
}

// RateLimitConfig contains inbound admission control configuration.
//
// The limiter exists because the trade API has a published rate ceiling;
// exceeding it risks the whole service being blocked upstream. Limit and
// window must stay at or below that ceiling.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per window per client.
	Limit int `toml:"limit"`
	// WindowSecs is the window length in seconds.
	WindowSecs int `toml:"window_secs"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",

		Server: ServerConfig{
			Port: 8081,
		},

		Trade: TradeConfig{
			BaseURL:       "https://www.pathofexile.com/api/trade2",
			TimeoutSecs:   10,
			DefaultLeague: "Hardcore",
			MaxRPS:        0.75,
			Burst:         5,
		},

		Chat: ChatConfig{
			BaseURL:            "http://localhost:3080",
			Model:              "Multimodal Lite",
			InsightTimeoutSecs: 15,
			ProxyTimeoutSecs:   30,
		},

		RateLimit: RateLimitConfig{
			Limit:      45,
			WindowSecs: 60,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// ConfigDir returns the exilebridge configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".exilebridge"), nil
}

// ConfigPath returns the default path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load loads configuration from the given path, falling back to the default
// config file location and then to built-in defaults. Environment overrides
// are applied last, before validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies EXILEBRIDGE_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EXILEBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("EXILEBRIDGE_TRADE_URL"); v != "" {
		c.Trade.BaseURL = v
	}
	if v := os.Getenv("EXILEBRIDGE_CHAT_URL"); v != "" {
		c.Chat.BaseURL = v
	}
	if v := os.Getenv("EXILEBRIDGE_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("EXILEBRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// validLogLevels is the set of accepted log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values that would make the service
// misbehave at runtime. A config that fails validation is a startup fault,
// not a per-request error.
func (c *Config) Validate() error {
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in range 1-65535, got %d", c.Server.Port)
	}

	if err := validateURL("trade.base_url", c.Trade.BaseURL); err != nil {
		return err
	}
	if err := validateURL("chat.base_url", c.Chat.BaseURL); err != nil {
		return err
	}

	if c.Trade.TimeoutSecs <= 0 {
		return fmt.Errorf("trade.timeout_secs must be positive, got %d", c.Trade.TimeoutSecs)
	}
	if c.Trade.MaxRPS <= 0 {
		return fmt.Errorf("trade.max_rps must be positive, got %v", c.Trade.MaxRPS)
	}
	if c.Trade.Burst < 1 {
		return fmt.Errorf("trade.burst must be at least 1, got %d", c.Trade.Burst)
	}
	if c.Trade.DefaultLeague == "" {
		return fmt.Errorf("trade.default_league must not be empty")
	}

	if c.Chat.InsightTimeoutSecs <= 0 {
		return fmt.Errorf("chat.insight_timeout_secs must be positive, got %d", c.Chat.InsightTimeoutSecs)
	}
	if c.Chat.ProxyTimeoutSecs <= 0 {
		return fmt.Errorf("chat.proxy_timeout_secs must be positive, got %d", c.Chat.ProxyTimeoutSecs)
	}

	if c.RateLimit.Limit < 1 {
		return fmt.Errorf("rate_limit.limit must be at least 1, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.WindowSecs < 1 {
		return fmt.Errorf("rate_limit.window_secs must be at least 1, got %d", c.RateLimit.WindowSecs)
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, raw)
	}
	return nil
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// TradeTimeout returns the trade search timeout as a duration.
func (c *Config) TradeTimeout() time.Duration {
	return time.Duration(c.Trade.TimeoutSecs) * time.Second
}

// InsightTimeout returns the insight generation timeout as a duration.
func (c *Config) InsightTimeout() time.Duration {
	return time.Duration(c.Chat.InsightTimeoutSecs) * time.Second
}

// ProxyTimeout returns the chat proxy timeout as a duration.
func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.Chat.ProxyTimeoutSecs) * time.Second
}

// RateLimitWindow returns the admission window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSecs) * time.Second
}
