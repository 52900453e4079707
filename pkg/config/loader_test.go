package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
	"github.com/Vamsi-o/collaborative-workspace/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(logging.Discard(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Server.Address())
	assert.Empty(t, cfg.Server.Auth.JWTSecret)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 25*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, "redis", cfg.Backbone.Driver)
	assert.Equal(t, "localhost:6379", cfg.Backbone.Redis.Addr())
	assert.Equal(t, "code-execution", cfg.Jobs.Queue)
	assert.Equal(t, 2*time.Second, cfg.Jobs.SimulatedDelay)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
  connectionLimit:
    maxPerUser: 3
    mode: cycle
backbone:
  driver: memory
jobs:
  concurrency: 4
  simulatedDelay: 50ms
`), 0o600))

	t.Setenv("GOPRESENCE_SERVER_AUTH_JWTSECRET", "from-env")
	t.Setenv("GOPRESENCE_LOG_LEVEL", "debug")

	cfg, err := config.Load(logging.Discard(), path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "cycle"}, cfg.Server.ConnectionLimit)
	assert.Equal(t, "memory", cfg.Backbone.Driver)
	assert.Equal(t, 4, cfg.Jobs.Concurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.Jobs.SimulatedDelay)
	assert.Equal(t, "from-env", cfg.Server.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WS_PORT", "3100")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("JWT_SECRET", "legacy")

	cfg, err := config.Load(logging.Discard(), "config")
	require.NoError(t, err)
	assert.Equal(t, 3100, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Backbone.Redis.Addr())
	assert.Equal(t, "legacy", cfg.Server.Auth.JWTSecret)

	// the prefixed name takes precedence
	t.Setenv("GOPRESENCE_SERVER_AUTH_JWTSECRET", "prefixed")
	cfg, err = config.Load(logging.Discard(), "config")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Server.Auth.JWTSecret)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOPRESENCE_BACKBONE_DRIVER", "kafka")
	t.Setenv("GOPRESENCE_JOBS_CONCURRENCY", "0")

	_, err := config.Load(logging.Discard(), "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backbone.driver")
	assert.Contains(t, err.Error(), "jobs.concurrency")
}
