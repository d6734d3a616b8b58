package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides the default config file location
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "HTTP gateway for Model Context Protocol servers",
	Long: `mcpgate exposes configured MCP servers behind a single HTTP surface.

Servers are declared in a YAML config file with one of three transports:
a child process speaking newline-delimited JSON over stdio, a Server-Sent
Events stream, or a stateless HTTPS endpoint. Every call goes through a
per-key rate limiter, and all logged payloads pass through secret
redaction first.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/mcpgate/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpgate by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
