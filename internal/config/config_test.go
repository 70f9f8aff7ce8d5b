package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/config"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Broker.Backend)
	require.Equal(t, "memory", cfg.Audit.Store)
	require.True(t, cfg.Auth.RequireAuth)
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "nats")
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("REQUIRE_AUTH", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "nats", cfg.Broker.Backend)
	require.Equal(t, "s3cr3t", cfg.Auth.JWTSecret)
	require.False(t, cfg.Auth.RequireAuth)
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("PROGRESSD_TEST_REDIS_ADDR", "redis.internal:6380")

	dir := t.TempDir()
	path := dir + "/config.json"
	raw := `{
		"server": {"host": "0.0.0.0", "port": 9090, "readTimeout": 5, "writeTimeout": 5},
		"broker": {"backend": "redis", "redis": {"addr": "${PROGRESSD_TEST_REDIS_ADDR}", "password": "", "db": 0}, "nats": {"url": "", "bucket": ""}},
		"audit": {"store": "memory", "postgresDsn": ""},
		"auth": {"jwtSecret": "x", "tokenExpiration": 60, "requireAuth": true},
		"metrics": {"enablePrometheus": false, "updateInterval": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", cfg.Broker.Redis.Addr)
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.json")
	require.Error(t, err)
}
