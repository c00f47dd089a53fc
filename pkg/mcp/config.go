package mcp

import (
	"errors"
	"fmt"
	"time"
)

// Config holds MCP server configuration.
type Config struct {
	// Path is the HTTP endpoint path (e.g., "/mcp").
	Path string `json:"path" yaml:"path"`

	// SessionTimeout is the idle timeout for sessions.
	// Sessions are expired after this duration of inactivity.
	SessionTimeout time.Duration `json:"sessionTimeout" yaml:"sessionTimeout"`

	// MaxSessions is the maximum number of concurrent sessions.
	MaxSessions int `json:"maxSessions" yaml:"maxSessions"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:           "/mcp",
		SessionTimeout: 30 * time.Minute,
		MaxSessions:    100,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got %q", c.Path)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("maxSessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.SessionTimeout < time.Second {
		return errors.New("sessionTimeout must be at least 1 second")
	}
	return nil
}
