package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"github.com/fyrsmithlabs/mcpgate/internal/logging"
	"github.com/fyrsmithlabs/mcpgate/internal/ratelimit"
	"github.com/fyrsmithlabs/mcpgate/internal/redact"
	"github.com/fyrsmithlabs/mcpgate/pkg/mcp"
)

var (
	callServerID string
	callArgs     string
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool on a configured server",
	Long: `Invoke a single tool call without starting the gateway.

The result is printed to stdout as JSON. Diagnostics go to stderr so
output can be piped.

Examples:
  # Call a tool on the default server
  mcpgate call echo --args '{"msg":"hi"}'

  # Call a tool on a specific server
  mcpgate call search --server docs --args '{"query":"retry"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callServerID, "server", "", "server id (default: first configured server)")
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as JSON")
}

func runCall(cmd *cobra.Command, args []string) error {
	tool := args[0]

	var rawArgs json.RawMessage
	if err := json.Unmarshal([]byte(callArgs), &rawArgs); err != nil {
		return fmt.Errorf("--args must be valid JSON: %w", err)
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return &config.ConfigError{Field: "servers", Reason: "at least one server entry is required"}
	}

	serverID := callServerID
	if serverID == "" {
		serverID = cfg.Servers[0].ID
	}
	sc, ok := cfg.Server(serverID)
	if !ok {
		return fmt.Errorf("unknown server %q", serverID)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

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

	client, err := mcp.NewClient(*sc, limiter, redactor, logger)
	if err != nil {
		return fmt.Errorf("failed to create client for server %s: %w", serverID, err)
	}
	defer func() {
		if err := client.Close(); err != nil && !errors.Is(err, mcp.ErrClientClosed) {
			fmt.Fprintf(os.Stderr, "warning: failed to close client: %v\n", err)
		}
	}()

	result, err := client.Call(cmd.Context(), tool, rawArgs)
	if err != nil {
		return fmt.Errorf("tool call failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
