package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLASSBOARD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, "relay", cfg.Transport.Mode)
	assert.Equal(t, 4*time.Second, cfg.Session.SyncInterval)
	assert.Equal(t, 80*time.Millisecond, cfg.Session.FlushInterval)
	assert.Equal(t, 2*time.Second, cfg.Session.ReconnectDelay)
	assert.Equal(t, 64, cfg.Session.LogCapacity)
	assert.Equal(t, float64(800), cfg.Session.CanvasWidth)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
environment: prod
server:
  listen_address: ":9090"
transport:
  mode: redis
  redis_addr: "redis:6379"
session:
  sync_interval: 10s
  log_capacity: 256
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))
	t.Setenv("CLASSBOARD_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "redis", cfg.Transport.Mode)
	assert.Equal(t, "redis:6379", cfg.Transport.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.Session.SyncInterval)
	assert.Equal(t, 256, cfg.Session.LogCapacity)
	assert.True(t, cfg.IsProduction())

	// untouched sections keep their defaults
	assert.Equal(t, 80*time.Millisecond, cfg.Session.FlushInterval)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CLASSBOARD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CLASSBOARD_TRANSPORT_MODE", "memory")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Transport.Mode)
	assert.Equal(t, "cache:6379", cfg.Transport.RedisAddr)
}

func TestParamConversions(t *testing.T) {
	t.Setenv("CLASSBOARD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	dp := cfg.DrawingParams()
	assert.Equal(t, float64(800), dp.CanvasWidth)
	assert.Equal(t, float64(600), dp.CanvasHeight)
	assert.Equal(t, float64(10), dp.EraserPad)

	rp := cfg.RenderParams()
	assert.Equal(t, 0.05, rp.PressureOffset)
	assert.Equal(t, 1.6, rp.MaxWidthScale)
}
