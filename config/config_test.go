package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/forecast-recon/config"
	"github.com/warp/forecast-recon/recon"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recon.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "recon.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Engine.PoolClaimedForecasts)
	assert.True(t, cfg.Engine.Epsilon.Equal(decimal.RequireFromString("0.1")))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// GIVEN: A file that sets some keys and leaves others out
	// WHEN: Loading it
	// THEN: Set keys win, the rest keep their defaults

	path := writeConfig(t, `
[server]
port = 9090

[engine]
epsilon = "0.5"
delay_ratio_max = "1.25"
pool_claimed_forecasts = false

[log]
level = "debug"
development = true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "recon.db", cfg.Store.Path)
	assert.True(t, cfg.Engine.Epsilon.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Engine.DelayRatioMin.Equal(decimal.RequireFromString("0.90")))
	assert.True(t, cfg.Engine.DelayRatioMax.Equal(decimal.RequireFromString("1.25")))
	assert.False(t, cfg.Engine.PoolClaimedForecasts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 9090\n[store]\npath = \"file.db\"\n")

	t.Setenv("RECON_PORT", "7070")
	t.Setenv("RECON_DB", ":memory:")
	t.Setenv("RECON_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("RECON_PORT", "eighty")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestEngineConfig_Recon(t *testing.T) {
	cfg := config.Default()
	rc, err := cfg.Engine.Recon()
	require.NoError(t, err)
	assert.True(t, rc.Epsilon.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 12, rc.Calendar.Len())

	cfg.Engine.DelayRatioMin = decimal.RequireFromString("1.2")
	_, err = cfg.Engine.Recon()
	assert.ErrorIs(t, err, recon.ErrInvalidConfig)
}

func TestStoreConfig_RetentionPolicy(t *testing.T) {
	maxAge, interval, err := config.Default().Store.RetentionPolicy()
	require.NoError(t, err)
	assert.Zero(t, maxAge, "retention is off by default")
	assert.Equal(t, time.Hour, interval)

	sc := config.StoreConfig{Retention: "720h", PruneInterval: "10m"}
	maxAge, interval, err = sc.RetentionPolicy()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, maxAge)
	assert.Equal(t, 10*time.Minute, interval)

	_, _, err = config.StoreConfig{Retention: "a month"}.RetentionPolicy()
	assert.Error(t, err)

	_, _, err = config.StoreConfig{PruneInterval: "0s"}.RetentionPolicy()
	assert.Error(t, err)
}
