// Package config holds the harmindex application configuration.
//
// Configuration is resolved in order, later sources winning:
//   - Default() values
//   - YAML file passed to Load
//   - Environment variables
//   - command-line flags (applied by the caller)
//
// Environment Variables:
//
//	HARMINDEX_DB_PATH    - SQLite database path (":memory:" for ephemeral)
//	HARMINDEX_PORT       - HTTP port
//	HARMINDEX_LOG_MODE   - "production" or "development"
//	HARMINDEX_RATES_FILE - JSON rate table replacing the built-in presets
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all harmindex configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	RatesFile       string `yaml:"rates_file"`        // empty = built-in presets
	RiskWeightsFile string `yaml:"risk_weights_file"` // empty = built-in weights
}

type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // "production" or "development"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:        "127.0.0.1",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Database: DatabaseConfig{
			Path: "./harmindex.db",
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    time.Hour,
			Concurrency: 4,
		},
		Log: LogConfig{
			Mode: "production",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HARMINDEX_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("HARMINDEX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HARMINDEX_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("HARMINDEX_LOG_MODE"); v != "" {
		c.Log.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("HARMINDEX_RATES_FILE"); v != "" {
		c.Engine.RatesFile = v
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Log.Mode {
	case "production", "development":
	default:
		return fmt.Errorf("log.mode %q: want production or development", c.Log.Mode)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval %s below 1m", c.Scheduler.Interval)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
