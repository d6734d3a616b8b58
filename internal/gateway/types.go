package gateway

import (
	"encoding/json"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
)

// ToolsCallRequest is the request body for POST /tools/call.
type ToolsCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ToolsResponse is the response body for GET /tools.
type ToolsResponse struct {
	Servers  []ServerInfo `json:"servers"`
	Metadata Envelope     `json:"metadata"`
}

// ServerInfo describes one configured server entry.
type ServerInfo struct {
	ID        string               `json:"id"`
	Transport config.TransportKind `json:"transport"`
}

// Envelope is the correlation metadata attached to gateway responses.
type Envelope struct {
	Service       string `json:"service"`
	CorrelationID string `json:"correlationId"`
	DurationMs    int64  `json:"durationMs"`
}

// ErrorResponse is the error body for failed calls.
type ErrorResponse struct {
	Error        string   `json:"error"`
	RetryAfterMs int64    `json:"retryAfterMs,omitempty"`
	Metadata     Envelope `json:"metadata"`
}
