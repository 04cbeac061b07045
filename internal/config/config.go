package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the coordinator process configuration
type Config struct {
	// ListenAddr is the address the HTTP/WebSocket server binds to
	ListenAddr string `json:"listen_addr"`
	// MaxConnections caps concurrently accepted TCP connections (0 = unlimited)
	MaxConnections int `json:"max_connections"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`

	// DatabasePath is the SQLite file backing the user/project store
	DatabasePath string `json:"database_path"`

	// TokenSecret is the HMAC signing key for bearer tokens. Loaded into
	// protected memory at startup and wiped from this struct.
	TokenSecret string `json:"token_secret"`
	// TokenTTLSeconds is the lifetime of issued bearer tokens
	TokenTTLSeconds int `json:"token_ttl_seconds"`

	// SweepIntervalSeconds is the garbage collector interval
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	// MaxProjectLockHoldSeconds force-releases project locks held longer
	// than this (0 disables the lease)
	MaxProjectLockHoldSeconds int `json:"max_project_lock_hold_seconds"`
}

// DefaultConfig returns a config with sane defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:                "localhost:8940",
		MaxConnections:            512,
		LogLevel:                  "info",
		LogPath:                   "",
		DatabasePath:              filepath.Join(defaultStateDir(), "waveroom.db"),
		TokenTTLSeconds:           int((24 * time.Hour).Seconds()),
		SweepIntervalSeconds:      int((5 * time.Minute).Seconds()),
		MaxProjectLockHoldSeconds: int((10 * time.Minute).Seconds()),
	}
}

// Load reads the config file at path, merging it over defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.ListenAddr == "" {
		config.ListenAddr = "localhost:8940"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = filepath.Join(defaultStateDir(), "waveroom.db")
	}
	if config.TokenTTLSeconds <= 0 {
		config.TokenTTLSeconds = int((24 * time.Hour).Seconds())
	}
	if config.SweepIntervalSeconds <= 0 {
		config.SweepIntervalSeconds = int((5 * time.Minute).Seconds())
	}

	return config, nil
}

// Save writes the config as indented JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// SweepInterval returns the GC interval as a duration
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// MaxProjectLockHold returns the project lock lease as a duration
func (c *Config) MaxProjectLockHold() time.Duration {
	return time.Duration(c.MaxProjectLockHoldSeconds) * time.Second
}

// TokenTTL returns the bearer token lifetime as a duration
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "waveroom")
	}
	return filepath.Join(os.TempDir(), "waveroom")
}
