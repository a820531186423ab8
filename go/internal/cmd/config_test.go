package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_REQUIRE_OWNER", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SESSION_TTL", "90m")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.RequireOwner)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Minute, cfg.Engine.SessionTTL)
	assert.Equal(t, time.Second, cfg.Engine.TickInterval)
}

func TestLoadConfigFileOverridesTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livescore.yaml")
	body := `
engine:
  tick_interval: 500ms
  sweep_interval: 30s
persist:
  shards: 4
  max_retries: 2
relay:
  skip: []
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Engine.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval)
	assert.Equal(t, 2*time.Hour, cfg.Engine.SessionTTL)
	assert.Equal(t, 4, cfg.Persist.Shards)
	assert.Equal(t, 2, cfg.Persist.MaxRetries)
	assert.Empty(t, cfg.Relay.Skip)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
