package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"chat-relay/handler"
	"chat-relay/internal/app"
	"chat-relay/internal/config"
)

// The function must be deployed behind a Function URL with invoke mode
// RESPONSE_STREAM, otherwise the body is buffered until the stream ends.
func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	// The Function URL has no scrape endpoint.
	cfg.Metrics.Enabled = false

	// ---- Application ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build relay", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	adapter, err := handler.NewLambdaAdapter(a.Routes, a.Logger)
	if err != nil {
		slog.Error("failed to create lambda adapter", "err", err)
		os.Exit(1)
	}

	lambda.Start(adapter.Handle)
}
