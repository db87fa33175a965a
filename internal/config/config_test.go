package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempHome redirects ~ so tests never touch the real ~/.dyschat.
func useTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "dyschat", cfg.Name)
	assert.Equal(t, "https://chatdys-backend.fly.dev", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/query", cfg.Backend.QueryPath)
	assert.Equal(t, 5, cfg.Limits.FreeDailyQuestions)
	assert.Equal(t, 2000, cfg.Limits.MaxMessageLength)
	assert.Equal(t, SkipSuppress, cfg.Onboarding.SkipMode)
	assert.False(t, cfg.Logging.DebugMode)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	useTempHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Backend.BaseURL, cfg.Backend.BaseURL)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := useTempHome(t)

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://staging.example.com"
	cfg.Limits.FreeDailyQuestions = 10
	cfg.Onboarding.SkipMode = SkipPlaceholder
	require.NoError(t, Save(cfg))

	if _, err := os.Stat(filepath.Join(home, ".dyschat", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", loaded.Backend.BaseURL)
	assert.Equal(t, 10, loaded.Limits.FreeDailyQuestions)
	assert.Equal(t, SkipPlaceholder, loaded.Onboarding.SkipMode)
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	home := useTempHome(t)
	dir := filepath.Join(home, ".dyschat")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644))

	cfg, err := Load()
	require.Error(t, err)
	assert.Equal(t, DefaultConfig().Backend.BaseURL, cfg.Backend.BaseURL, "malformed config must still yield usable defaults")
}

func TestEnvOverrides(t *testing.T) {
	useTempHome(t)
	t.Setenv("DYSCHAT_BACKEND_URL", "https://dev.example.com")
	t.Setenv("DYSCHAT_BACKEND_FALLBACK_URL", "https://dev-fallback.example.com")
	t.Setenv("DYSCHAT_AUTH0_DOMAIN", "dev.auth0.example")
	t.Setenv("DYSCHAT_FREE_DAILY_QUESTIONS", "3")
	t.Setenv("DYSCHAT_SKIP_MODE", "placeholder")
	t.Setenv("DYSCHAT_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://dev.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "https://dev-fallback.example.com", cfg.Backend.FallbackURL)
	assert.Equal(t, "dev.auth0.example", cfg.Auth.Domain)
	assert.Equal(t, 3, cfg.Limits.FreeDailyQuestions)
	assert.Equal(t, SkipPlaceholder, cfg.Onboarding.SkipMode)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestEnvOverridesRejectInvalidValues(t *testing.T) {
	useTempHome(t)
	t.Setenv("DYSCHAT_FREE_DAILY_QUESTIONS", "not-a-number")
	t.Setenv("DYSCHAT_SKIP_MODE", "banish")
	t.Setenv("DYSCHAT_DEBUG", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limits.FreeDailyQuestions)
	assert.Equal(t, SkipSuppress, cfg.Onboarding.SkipMode)
	assert.False(t, cfg.Logging.DebugMode)
}
