package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/harm-index/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harmindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Database.Path, cfg.Database.Path)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
database:
  path: /var/lib/harmindex/harm.db
scheduler:
  interval: 30m
  concurrency: 8
log:
  mode: development
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind, "unset keys keep defaults")
	assert.Equal(t, "/var/lib/harmindex/harm.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "development", cfg.Log.Mode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("HARMINDEX_PORT", "7070")
	t.Setenv("HARMINDEX_DB_PATH", ":memory:")
	t.Setenv("HARMINDEX_LOG_MODE", "Development")
	t.Setenv("HARMINDEX_RATES_FILE", "/etc/harmindex/rates.json")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "development", cfg.Log.Mode)
	assert.Equal(t, "/etc/harmindex/rates.json", cfg.Engine.RatesFile)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := config.Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "log:\n  mode: verbose\n"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "scheduler:\n  interval: 5s\n"))
	assert.Error(t, err)

	t.Setenv("HARMINDEX_PORT", "eighty")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	for _, mode := range []string{"production", "development"} {
		logger, err := config.LogConfig{Mode: mode}.NewLogger()
		require.NoError(t, err, mode)
		assert.NotNil(t, logger)
	}

	prod, err := config.LogConfig{Mode: "production"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(-1), "debug disabled in production")
}
