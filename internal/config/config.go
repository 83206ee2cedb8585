// Package config provides 12-factor configuration for the midiview host.
//
// Configuration is loaded from environment variables with sensible
// defaults. CLI flags can override environment variables for development
// flexibility.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Bridge  BridgeConfig
	Logging LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8700"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StorageConfig holds host-durable storage configuration.
type StorageConfig struct {
	Path string `envconfig:"STORAGE_PATH" default:"/tmp/midiview-storage"`
}

// BridgeConfig holds sandbox bridge configuration.
type BridgeConfig struct {
	ReadLimitBytes  int64 `envconfig:"BRIDGE_READ_LIMIT" default:"33554432"`
	LayoutTimeoutMS int   `envconfig:"LAYOUT_TIMEOUT_MS" default:"2000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// LayoutTimeout returns the layout readiness deadline as a duration.
func (b BridgeConfig) LayoutTimeout() time.Duration {
	return time.Duration(b.LayoutTimeoutMS) * time.Millisecond
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8700",
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Path: "/tmp/midiview-storage",
		},
		Bridge: BridgeConfig{
			ReadLimitBytes:  32 << 20,
			LayoutTimeoutMS: 2000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
