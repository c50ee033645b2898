package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chat-relay/internal/integrations/paramstore"
)

// Load builds a Config from defaults, an optional YAML file and environment
// overrides. SSM overrides are applied separately with ApplyParams because
// they need AWS credentials.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CHAT_RELAY_CONFIG")
}

// loadYAMLFile parses path into cfg. Fields absent from the file keep their
// current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("ALLOWED_MODELS"); v != "" {
		cfg.Gateway.AllowedModels = splitList(v)
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		cfg.Gateway.DefaultModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid UPSTREAM_IDLE_TIMEOUT %q: %w", v, err)
		}
		cfg.Upstream.IdleTimeout = d
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	if v := os.Getenv("PARAM_PREFIX"); v != "" {
		cfg.ParamPrefix = v
	}
	return nil
}

// ApplyParams overrides the model allow-list and default model from SSM
// parameters under cfg.ParamPrefix:
//
//	<prefix>/config/allowed_models  comma-separated model IDs
//	<prefix>/config/default_model   one model ID
//
// Missing parameters leave the current values in place. The result is
// validated again.
func ApplyParams(ctx context.Context, getter paramstore.Getter, cfg *Config) error {
	if getter == nil {
		return errors.New("config: param getter must not be nil")
	}
	prefix := strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if prefix == "" {
		return errors.New("config: parameter prefix must not be empty")
	}

	models, err := optionalParam(ctx, getter, prefix+"/config/allowed_models")
	if err != nil {
		return err
	}
	if models != "" {
		cfg.Gateway.AllowedModels = splitList(models)
	}

	model, err := optionalParam(ctx, getter, prefix+"/config/default_model")
	if err != nil {
		return err
	}
	if model != "" {
		cfg.Gateway.DefaultModel = strings.TrimSpace(model)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

func optionalParam(ctx context.Context, getter paramstore.Getter, name string) (string, error) {
	v, err := getter.GetParameter(ctx, name)
	if errors.Is(err, paramstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("config: load %s: %w", name, err)
	}
	return strings.TrimSpace(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
