package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"github.com/fyrsmithlabs/mcpgate/internal/gateway"
	"github.com/fyrsmithlabs/mcpgate/internal/logging"
	"github.com/fyrsmithlabs/mcpgate/internal/ratelimit"
	"github.com/fyrsmithlabs/mcpgate/internal/redact"
	"github.com/fyrsmithlabs/mcpgate/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mcpgate HTTP gateway",
	Long: `Start the HTTP gateway and serve the configured MCP servers.

The gateway listens until SIGINT or SIGTERM, then drains in-flight
requests within the configured shutdown timeout.

Examples:
  # Start with the default config file
  mcpgate serve

  # Start with an explicit config file
  mcpgate serve --config ./mcpgate.yaml

  # Override the listen port
  MCPGATE_GATEWAY_PORT=8080 mcpgate serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return &config.ConfigError{Field: "servers", Reason: "at least one server entry is required"}
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting mcpgate",
		zap.String("version", version),
		zap.Int("servers", len(cfg.Servers)),
		zap.Int("port", cfg.Gateway.Port),
		zap.Duration("shutdown_timeout", cfg.Gateway.ShutdownTimeout.Duration()),
	)

	redactor, err := redact.New(&cfg.Redaction, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redactor: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limit:         cfg.RateLimit.Limit,
		Window:        cfg.RateLimit.Window.Duration(),
		SweepInterval: cfg.RateLimit.SweepInterval.Duration(),
	}, logger)
	defer limiter.Stop()

	metrics := mcp.NewMetrics(logger)

	clients := make(map[string]*mcp.Client, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		client, err := mcp.NewClient(sc, limiter, redactor, logger, mcp.WithMetrics(metrics))
		if err != nil {
			return fmt.Errorf("failed to create client for server %s: %w", sc.ID, err)
		}
		clients[sc.ID] = client
	}
	defer func() {
		for id, client := range clients {
			if err := client.Close(); err != nil && !errors.Is(err, mcp.ErrClientClosed) {
				logger.Warn("failed to close client", zap.String("server_id", id), zap.Error(err))
			}
		}
	}()

	srv, err := gateway.NewServer(clients, redactor, logger, &cfg.Gateway)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
