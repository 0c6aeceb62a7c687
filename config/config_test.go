package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CALENDLY_API_TOKEN", "")
	t.Setenv("DATABASE_DSN", "")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, 8, cfg.Session.MaxFunctionCalls)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "booking.db", cfg.Database.DSN)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
	assert.Contains(t, cfg.Platforms.OpenTable.URL, "opentable.com")
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("CALENDLY_API_TOKEN", "cal-token")

	cfg, err := Load(writeConfig(t, "llm:\n  provider: gemini\n  api_key: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.Equal(t, "cal-token", cfg.Platforms.Calendly.APIToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
