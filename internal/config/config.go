package config

import (
	"errors"
	"fmt"
	"net"
)

// Config represents the unified configuration structure
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Security      SecurityConfig      `json:"security" yaml:"security"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	HotReload     HotReloadConfig     `json:"hot_reload" yaml:"hot_reload"`
	Events        EventsConfig        `json:"events" yaml:"events"`
}

// EventsConfig controls the probe state-change event stream
type EventsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Replay sends previously published changes to newly connected clients
	Replay bool `json:"replay" yaml:"replay"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Security:      DefaultSecurityConfig(),
		Observability: DefaultObservabilityConfig(),
		HotReload:     DefaultHotReloadConfig(),
		Events:        DefaultEventsConfig(),
	}
}

// DefaultEventsConfig returns default event stream configuration
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Enabled: true,
		Replay:  false,
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("security: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	if err := c.HotReload.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hot_reload: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// GetMetricsAddress returns the dedicated metrics listener address, or an
// empty string when metrics are only served on the main listener
func (c *Config) GetMetricsAddress() string {
	if !c.Observability.Metrics.Enabled || c.Server.MetricsPort == "" {
		return ""
	}
	return net.JoinHostPort(c.Server.Host, c.Server.MetricsPort)
}

// IsRateLimitEnabled returns whether rate limiting is enabled
func (c *Config) IsRateLimitEnabled() bool {
	return c.Security.RateLimit.Enabled
}
