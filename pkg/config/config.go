// Package config loads pizzazd configuration from an optional YAML file
// overlaid with environment variables. Environment always wins, so a
// containerized deployment can override any file setting.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pizzaz/pizzazd/pkg/ratelimit"
)

// Environment variable names.
const (
	EnvPort             = "PORT"
	EnvManifestPath     = "WIDGETS_MANIFEST_PATH"
	EnvRefreshToken     = "WIDGETS_REFRESH_TOKEN"
	EnvRefreshRateLimit = "WIDGETS_REFRESH_RATE_LIMIT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
)

// DefaultManifestPath is where the widget manifest is looked up unless
// configured otherwise.
const DefaultManifestPath = "assets/widgets.json"

// Config holds the pizzazd process configuration.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port"`

	// ManifestPath locates the widget manifest file.
	ManifestPath string `yaml:"manifestPath"`

	// RefreshToken gates the refresh endpoint. Empty disables it.
	RefreshToken string `yaml:"refreshToken"`

	// RefreshRateLimit is the refresh throttle as "<count>/<window>",
	// e.g. "10/60s". Malformed values fall back to the default.
	RefreshRateLimit string `yaml:"refreshRateLimit"`

	// LogLevel and LogFormat configure the process logger.
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:         8000,
		ManifestPath: DefaultManifestPath,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if path is non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = DefaultManifestPath
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv(EnvManifestPath); v != "" {
		c.ManifestPath = v
	}
	if v := os.Getenv(EnvRefreshToken); v != "" {
		c.RefreshToken = v
	}
	if v := os.Getenv(EnvRefreshRateLimit); v != "" {
		c.RefreshRateLimit = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
}

// RateLimit parses the configured refresh throttle. A malformed spec falls
// back to the default and logs a warning rather than failing startup.
func (c *Config) RateLimit(log *slog.Logger) ratelimit.Spec {
	if c.RefreshRateLimit == "" {
		return ratelimit.DefaultSpec()
	}
	spec, err := ratelimit.ParseSpec(c.RefreshRateLimit)
	if err != nil {
		if log != nil {
			log.Warn("invalid refresh rate limit, using default",
				"value", c.RefreshRateLimit,
				"default", fmt.Sprintf("%d/%s", ratelimit.DefaultLimit, ratelimit.DefaultWindow),
				"error", err)
		}
		return ratelimit.DefaultSpec()
	}
	return spec
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
