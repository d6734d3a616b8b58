// Mcpgate bridges Model Context Protocol servers behind one HTTP
// gateway and a uniform client, with rate limiting and redaction
// applied around every call.
//
// Usage:
//
//	# Start the gateway with defaults
//	mcpgate serve
//
//	# One-shot tool call against a configured server
//	mcpgate call echo --args '{"msg":"hi"}'
//
// Configuration is loaded from ~/.config/mcpgate/config.yaml and
// MCPGATE_* environment variables. See internal/config for details.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
