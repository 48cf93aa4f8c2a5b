/*
Package config loads service settings from a TOML file.

FILE FORMAT (all keys optional, defaults shown):

  [server]
  port = 8080
  allowed_origins = ["http://localhost:5173", "http://localhost:8080"]

  [store]
  path = "recon.db"
  retention = ""          # e.g. "720h"; empty keeps runs forever
  keep_runs = 20          # newest runs never pruned
  prune_interval = "1h"

  [engine]
  epsilon = "0.1"
  delay_ratio_min = "0.90"
  delay_ratio_max = "1.10"
  pool_claimed_forecasts = true

  [log]
  level = "info"
  development = false

ENVIRONMENT OVERRIDES:
  RECON_PORT, RECON_DB, RECON_LOG_LEVEL win over the file.

Engine thresholds are TOML strings so they reach decimal.Decimal without
a float round trip.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/recon"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Engine EngineConfig `toml:"engine"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type StoreConfig struct {
	Path          string `toml:"path"`
	Retention     string `toml:"retention"`
	KeepRuns      int    `toml:"keep_runs"`
	PruneInterval string `toml:"prune_interval"`
}

// RetentionPolicy parses the retention settings. A zero maxAge means runs
// are kept forever.
func (s StoreConfig) RetentionPolicy() (maxAge, interval time.Duration, err error) {
	if s.Retention != "" {
		if maxAge, err = time.ParseDuration(s.Retention); err != nil {
			return 0, 0, fmt.Errorf("store.retention: %w", err)
		}
	}
	interval = time.Hour
	if s.PruneInterval != "" {
		if interval, err = time.ParseDuration(s.PruneInterval); err != nil {
			return 0, 0, fmt.Errorf("store.prune_interval: %w", err)
		}
	}
	if maxAge < 0 || interval <= 0 {
		return 0, 0, errors.New("store: retention must be >= 0 and prune_interval > 0")
	}
	return maxAge, interval, nil
}

type EngineConfig struct {
	Epsilon              decimal.Decimal `toml:"epsilon"`
	DelayRatioMin        decimal.Decimal `toml:"delay_ratio_min"`
	DelayRatioMax        decimal.Decimal `toml:"delay_ratio_max"`
	PoolClaimedForecasts bool            `toml:"pool_claimed_forecasts"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Store: StoreConfig{Path: "recon.db", KeepRuns: 20, PruneInterval: "1h"},
		Engine: EngineConfig{
			Epsilon:              num("0.1"),
			DelayRatioMin:        num("0.90"),
			DelayRatioMax:        num("1.10"),
			PoolClaimedForecasts: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults (plus environment overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RECON_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECON_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RECON_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("RECON_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Recon builds the engine config on the default calendar and validates it.
func (e EngineConfig) Recon() (recon.Config, error) {
	cfg := recon.DefaultConfig()
	cfg.Epsilon = e.Epsilon
	cfg.DelayRatioMin = e.DelayRatioMin
	cfg.DelayRatioMax = e.DelayRatioMax
	cfg.PoolClaimedForecasts = e.PoolClaimedForecasts
	if err := cfg.Validate(); err != nil {
		return recon.Config{}, err
	}
	return cfg, nil
}
