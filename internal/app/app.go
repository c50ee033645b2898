// Package app wires configuration, logging, the upstream client and the HTTP
// handler into a runnable relay. It is shared by the server and Lambda
// entry points so both serve identical routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/openai"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/logging"
	"chat-relay/internal/usecase"
)

// App is a fully wired relay.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Handler *handler.Handler
	Routes  http.Handler

	logCloser io.Closer
}

type options struct {
	params   paramstore.Getter
	upstream usecase.ChatStreamer
	logger   *slog.Logger
}

type Option func(*options)

// WithParamGetter replaces the SSM-backed parameter source.
func WithParamGetter(g paramstore.Getter) Option {
	return func(o *options) { o.params = g }
}

// WithUpstream replaces the OpenAI client.
func WithUpstream(s usecase.ChatStreamer) Option {
	return func(o *options) { o.upstream = s }
}

// WithLogger skips building a logger from cfg.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the relay from cfg. When cfg.ParamPrefix is set, SSM overrides
// are applied to cfg before anything else reads it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}

	// ---- Logging ----
	if o.logger != nil {
		a.Logger = o.logger
	} else {
		logger, closer, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("app: logging: %w", err)
		}
		a.Logger, a.logCloser = logger, closer
	}

	// ---- Parameter Store ----
	if cfg.ParamPrefix != "" {
		getter := o.params
		if getter == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, a.fail(fmt.Errorf("app: load aws config: %w", err))
			}
			client, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, a.fail(fmt.Errorf("app: paramstore: %w", err))
			}
			getter = client
		}
		if err := config.ApplyParams(ctx, getter, cfg); err != nil {
			return nil, a.fail(err)
		}
	}

	// ---- Upstream ----
	upstream := o.upstream
	if upstream == nil {
		client, err := openai.NewClient(openai.WithBaseURL(cfg.Upstream.BaseURL))
		if err != nil {
			return nil, a.fail(fmt.Errorf("app: openai client: %w", err))
		}
		upstream = client
	}

	// ---- Use cases ----
	validator, err := usecase.NewValidator(usecase.Policy{
		AllowedModels:    cfg.Gateway.AllowedModels,
		DefaultModel:     cfg.Gateway.DefaultModel,
		CredentialPrefix: cfg.Gateway.CredentialPrefix,
		MaxHistory:       cfg.Gateway.MaxHistory,
		MaxTextLength:    cfg.Gateway.MaxTextLength,
	})
	if err != nil {
		return nil, a.fail(fmt.Errorf("app: validator: %w", err))
	}
	relay, err := usecase.NewRelayService(upstream, cfg.Upstream.IdleTimeout)
	if err != nil {
		return nil, a.fail(fmt.Errorf("app: relay: %w", err))
	}
	chat, err := usecase.NewChatService(validator, relay)
	if err != nil {
		return nil, a.fail(fmt.Errorf("app: chat service: %w", err))
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chat, a.Logger)
	if err != nil {
		return nil, a.fail(fmt.Errorf("app: handler: %w", err))
	}
	a.Handler = h
	if cfg.Metrics.Enabled {
		a.Routes = h.Routes(cfg.Metrics.Path, promhttp.Handler())
	} else {
		a.Routes = h.Routes("", nil)
	}

	a.Logger.Info("chat relay configured",
		"allowed_models", cfg.Gateway.AllowedModels,
		"default_model", cfg.Gateway.DefaultModel,
		"upstream", cfg.Upstream.BaseURL,
		"idle_timeout", cfg.Upstream.IdleTimeout.String(),
		"metrics", cfg.Metrics.Enabled,
	)
	return a, nil
}

// Close releases the log file, if any.
func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

func (a *App) fail(err error) error {
	_ = a.Close()
	return err
}
