// Package config loads rulesyncd's own configuration: where the catalog
// database lives, the status-cache TTL, the RPC rate limit, and logging —
// the ambient settings the core itself needs to start up, as distinct from
// the catalog's `settings` KV table (internal/catalog.GetSetting) which
// holds per-deployment artifact-facing settings like storage_mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is rulesyncd's process configuration, loaded from a YAML file with
// environment overrides, mirroring the teacher's LoadWithEnv shape.
type Config struct {
	DBPath string      `yaml:"db_path"`
	Cache  CacheConfig `yaml:"cache"`
	RPC    RPCConfig   `yaml:"rpc"`
	Import ImportConfig `yaml:"import"`
	Log    LogConfig   `yaml:"log"`
}

// CacheConfig tunes the status projection's actual-state scan cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// RPCConfig tunes the RPC boundary's listen address and rate limit.
type RPCConfig struct {
	Port                int `yaml:"port"`
	RateLimitPerWindow  int `yaml:"rate_limit_per_window"`
	RateLimitWindowSecs int `yaml:"rate_limit_window_secs"`
}

// ImportConfig tunes the import pipeline's size ceiling.
type ImportConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// LogConfig controls the package-level loggers' verbosity and destination.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration rulesyncd starts with absent a
// config file or environment override.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:        30 * time.Second,
			MaxEntries: 5000,
		},
		RPC: RPCConfig{
			Port:                8080,
			RateLimitPerWindow:  30,
			RateLimitWindowSecs: 10,
		},
		Import: ImportConfig{
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if dbPath := getenv("RULESYNC_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if port := getenv("RULESYNC_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.RPC.Port = p
		}
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rulesync", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rulesync", "config.yaml")
}

// DefaultDBPath returns the catalog database path when none was configured:
// `~/.config/rulesync/rulesync.db`, alongside the config file itself.
func DefaultDBPath(home string) string {
	return filepath.Join(home, ".config", "rulesync", "rulesync.db")
}
