// Package config provides configuration for the chat relay.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (explicit path or CHAT_RELAY_CONFIG)
//  3. Environment variable overrides
//  4. SSM Parameter Store overrides when a parameter prefix is set
//  5. Validation
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config holds all configuration for the chat relay.
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Gateway     GatewayConfig  `yaml:"gateway"`
	Upstream    UpstreamConfig `yaml:"upstream"`
	Log         LogConfig      `yaml:"log"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	ParamPrefix string         `yaml:"param_prefix"` // optional SSM prefix
}

// ServerConfig holds HTTP server settings. There is no write timeout so that
// long streams are not cut off.
type ServerConfig struct {
	Port              int           `yaml:"port"`                // default: 8000
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`    // default: 15s
}

// GatewayConfig holds the request limits enforced before any upstream call.
type GatewayConfig struct {
	AllowedModels    []string `yaml:"allowed_models"`
	DefaultModel     string   `yaml:"default_model"`
	CredentialPrefix string   `yaml:"credential_prefix"` // default: "sk-"
	MaxHistory       int      `yaml:"max_history"`       // default: 50
	MaxTextLength    int      `yaml:"max_text_length"`   // default: 10000
}

// UpstreamConfig holds completion provider settings.
type UpstreamConfig struct {
	BaseURL     string        `yaml:"base_url"`     // default: https://api.openai.com/v1
	IdleTimeout time.Duration `yaml:"idle_timeout"` // default: 60s
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	File   string `yaml:"file"`   // optional rotating log file
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: /metrics
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8000,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Gateway: GatewayConfig{
			AllowedModels:    []string{"gpt-4.1-mini", "gpt-4o-mini", "gpt-3.5-turbo"},
			DefaultModel:     "gpt-4.1-mini",
			CredentialPrefix: "sk-",
			MaxHistory:       50,
			MaxTextLength:    10000,
		},
		Upstream: UpstreamConfig{
			BaseURL:     "https://api.openai.com/v1",
			IdleTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Gateway.AllowedModels) == 0 {
		return errors.New("gateway.allowed_models must not be empty")
	}
	for _, m := range c.Gateway.AllowedModels {
		if strings.TrimSpace(m) == "" {
			return errors.New("gateway.allowed_models must not contain empty entries")
		}
	}
	if !slices.Contains(c.Gateway.AllowedModels, c.Gateway.DefaultModel) {
		return fmt.Errorf("gateway.default_model %q is not in gateway.allowed_models", c.Gateway.DefaultModel)
	}
	if strings.TrimSpace(c.Gateway.CredentialPrefix) == "" {
		return errors.New("gateway.credential_prefix must not be empty")
	}
	if c.Gateway.MaxHistory <= 0 {
		return errors.New("gateway.max_history must be positive")
	}
	if c.Gateway.MaxTextLength <= 0 {
		return errors.New("gateway.max_text_length must be positive")
	}
	if c.Upstream.IdleTimeout < 0 {
		return errors.New("upstream.idle_timeout must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}
