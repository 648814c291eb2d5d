// Package config holds all previewkit configuration.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all previewkit configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Build pipeline settings
	Build BuildConfig `yaml:"build"`

	// External package registry
	Registry RegistryConfig `yaml:"registry"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// BuildConfig configures the bundler pipeline.
type BuildConfig struct {
	// Workers bounds the resolve+transform pool per build.
	Workers int `yaml:"workers"`
	// ModuleCacheSize bounds the shared module-record LRU.
	ModuleCacheSize int `yaml:"module_cache_size"`
	// ArtifactCacheSize bounds the bundle artifact LRU.
	ArtifactCacheSize int `yaml:"artifact_cache_size"`
	// DiagnosticCap caps collected diagnostics per build.
	DiagnosticCap int `yaml:"diagnostic_cap"`
}

// RegistryConfig configures external package resolution.
type RegistryConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	CacheSize int    `yaml:"cache_size"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}
	return &Config{
		Server: ServerConfig{
			Addr:            ":8620",
			ReadTimeout:     "30s",
			ShutdownTimeout: "10s",
		},
		Build: BuildConfig{
			Workers:           workers,
			ModuleCacheSize:   512,
			ArtifactCacheSize: 64,
			DiagnosticCap:     200,
		},
		Registry: RegistryConfig{
			BaseURL:   "https://esm.sh",
			Timeout:   "5s",
			CacheSize: 128,
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// field the file omits, then applies environment overrides. An empty
// path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PREVIEWKIT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PREVIEWKIT_REGISTRY_URL"); v != "" {
		c.Registry.BaseURL = v
	}
	if v := os.Getenv("PREVIEWKIT_REGISTRY_TIMEOUT"); v != "" {
		c.Registry.Timeout = v
	}
	if v := os.Getenv("PREVIEWKIT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Build.Workers = n
		}
	}
	if v := os.Getenv("PREVIEWKIT_DEBUG"); v != "" {
		c.Logging.Debug = v == "1" || v == "true"
	}
}

func (c *Config) validate() error {
	if c.Build.Workers < 1 {
		return fmt.Errorf("build.workers must be positive, got %d", c.Build.Workers)
	}
	if c.Build.DiagnosticCap < 1 {
		return fmt.Errorf("build.diagnostic_cap must be positive, got %d", c.Build.DiagnosticCap)
	}
	if _, err := c.RegistryTimeout(); err != nil {
		return fmt.Errorf("registry.timeout: %w", err)
	}
	return nil
}

// RegistryTimeout parses the registry timeout duration.
func (c *Config) RegistryTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Registry.Timeout)
}
