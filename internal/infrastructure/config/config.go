package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/paths"
)

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sessions  SessionConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SessionConfig holds orchestrator limits and command resolution settings.
type SessionConfig struct {
	MaxSessions        int           `envconfig:"MAX_SESSIONS" default:"5"`
	BufferMaxLines     int           `envconfig:"BUFFER_MAX_LINES" default:"10000"`
	BufferMaxBytes     int           `envconfig:"BUFFER_MAX_BYTES" default:"1048576"`
	PausedBufferRatio  float64       `envconfig:"PAUSED_BUFFER_RATIO" default:"0.5"`
	RemovalGrace       time.Duration `envconfig:"SESSION_REMOVAL_GRACE" default:"5s"`
	ProcessIdleTimeout time.Duration `envconfig:"PROCESS_IDLE_TIMEOUT" default:"0s"`
	DefaultShell       string        `envconfig:"DEFAULT_SHELL"`
	AgentConfig        string        `envconfig:"AGENT_CONFIG"`
	AllowedRoots       []string      `envconfig:"ALLOWED_PROJECT_ROOTS"`
}

// PolicyConfig holds client-side persistence and timeout settings.
type PolicyConfig struct {
	MaxSessions       int           `envconfig:"MAX_SESSIONS" default:"5"`
	InactivityTimeout time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"30m"`
	BackgroundTimeout time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"10m"`
	StorePath         string        `envconfig:"TERMCTL_STORE" default:"~/.termctl/sessions.db"`
}

// Validate rejects settings the orchestrator cannot run with.
func (c SessionConfig) Validate() error {
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.MaxSessions)
	}
	if c.BufferMaxLines <= 0 || c.BufferMaxBytes <= 0 {
		return fmt.Errorf("buffer caps must be positive, got %d lines / %d bytes", c.BufferMaxLines, c.BufferMaxBytes)
	}
	if c.PausedBufferRatio <= 0 || c.PausedBufferRatio > 1 {
		return fmt.Errorf("PAUSED_BUFFER_RATIO must be in (0, 1], got %v", c.PausedBufferRatio)
	}
	return nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Sessions.Validate(); err != nil {
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
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sessions: SessionConfig{
			MaxSessions:       5,
			BufferMaxLines:    10000,
			BufferMaxBytes:    1024 * 1024,
			PausedBufferRatio: 0.5,
			RemovalGrace:      5 * time.Second,
		},
	}
}

// LoadPolicy loads client policy configuration from environment variables.
func LoadPolicy() (*PolicyConfig, error) {
	var cfg PolicyConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}
	return &cfg, nil
}

// DefaultPolicy returns default client policy configuration.
func DefaultPolicy() *PolicyConfig {
	return &PolicyConfig{
		MaxSessions:       5,
		InactivityTimeout: 30 * time.Minute,
		BackgroundTimeout: 10 * time.Minute,
		StorePath:         paths.DefaultStore,
	}
}
