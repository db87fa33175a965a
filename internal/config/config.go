// Package config holds all dyschat configuration: backend endpoints,
// identity-provider settings, free-tier limits, and logging controls.
// Config is read from ~/.dyschat/config.yaml with DYSCHAT_* env overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all dyschat configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend API configuration
	Backend BackendConfig `yaml:"backend"`

	// Identity provider (Auth0) configuration
	Auth AuthConfig `yaml:"auth"`

	// Free-tier limits
	Limits LimitsConfig `yaml:"limits"`

	// Onboarding behavior
	Onboarding OnboardingConfig `yaml:"onboarding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the backend API client.
type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	FallbackURL string `yaml:"fallback_url"` // optional secondary target for manual failover

	// Endpoint paths, relative to the base URL.
	SessionPath   string `yaml:"session_path"`
	ProfilePath   string `yaml:"profile_path"`
	QueryPath     string `yaml:"query_path"`
	IncrementPath string `yaml:"increment_path"`
	FeedbackPath  string `yaml:"feedback_path"`

	Timeout string `yaml:"timeout"`
}

// AuthConfig configures the Auth0 authorization-code login flow.
type AuthConfig struct {
	Domain       string `yaml:"domain"`
	ClientID     string `yaml:"client_id"`
	Audience     string `yaml:"audience"`
	Scope        string `yaml:"scope"`
	CallbackPort int    `yaml:"callback_port"`
}

// LimitsConfig holds the free-tier gating constants.
type LimitsConfig struct {
	FreeDailyQuestions int `yaml:"free_daily_questions"`
	MaxMessageLength   int `yaml:"max_message_length"`
}

// SkipMode selects what happens when the user skips onboarding.
type SkipMode string

const (
	// SkipSuppress hides the onboarding form for the rest of this run
	// without persisting anything server-side.
	SkipSuppress SkipMode = "suppress"
	// SkipPlaceholder persists a minimal placeholder profile so the
	// server-side record converges to completed.
	SkipPlaceholder SkipMode = "placeholder"
)

// OnboardingConfig configures the profile-completion gate.
type OnboardingConfig struct {
	SkipMode SkipMode `yaml:"skip_mode"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dyschat",
		Version: "2.0.0",
		Backend: BackendConfig{
			BaseURL:       "https://chatdys-backend.fly.dev",
			SessionPath:   "/api/user/session",
			ProfilePath:   "/api/user/complete-profile",
			QueryPath:     "/api/query",
			IncrementPath: "/api/user/increment-question",
			FeedbackPath:  "/api/feedback",
			Timeout:       "5m",
		},
		Auth: AuthConfig{
			Domain:       "dev-5040302010.us.auth0.com",
			ClientID:     "fqzwP9fpJrY0c7FINxADguJhxjrOqnwV",
			Audience:     "https://api.chatdys.com/",
			Scope:        "openid profile email offline_access",
			CallbackPort: 51930,
		},
		Limits: LimitsConfig{
			FreeDailyQuestions: 5,
			MaxMessageLength:   2000,
		},
		Onboarding: OnboardingConfig{
			SkipMode: SkipSuppress,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns the directory where dyschat state lives (~/.dyschat).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dyschat"), nil
}

// File returns the full path to the config file.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration from disk, falling back to defaults when the
// file is missing, then applies environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := File()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to disk.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := File()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets environment variables win over file values.
// Useful for pointing a dev build at a staging backend without editing
// the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DYSCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DYSCHAT_BACKEND_FALLBACK_URL"); v != "" {
		c.Backend.FallbackURL = v
	}
	if v := os.Getenv("DYSCHAT_AUTH0_DOMAIN"); v != "" {
		c.Auth.Domain = v
	}
	if v := os.Getenv("DYSCHAT_AUTH0_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("DYSCHAT_AUTH0_AUDIENCE"); v != "" {
		c.Auth.Audience = v
	}
	if v := os.Getenv("DYSCHAT_FREE_DAILY_QUESTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Limits.FreeDailyQuestions = n
		}
	}
	if v := os.Getenv("DYSCHAT_SKIP_MODE"); v != "" {
		switch SkipMode(v) {
		case SkipSuppress, SkipPlaceholder:
			c.Onboarding.SkipMode = SkipMode(v)
		}
	}
	if v := os.Getenv("DYSCHAT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}
