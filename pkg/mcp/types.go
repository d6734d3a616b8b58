package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is one in-flight tool invocation. ID is unique per call and
// correlates the eventual Response.
type Request struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	IssuedAt  time.Time       `json:"-"`
}

// Response correlates back to a Request by ID. Exactly one of Result
// or Error is set. Responses with no matching in-flight request are
// dropped and logged, never delivered.
type Response struct {
	ID         string          `json:"id"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *WireError      `json:"error,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// WireError is a tool-level error reported by the server.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// CallPayload is the wire form of a tool call body for HTTP endpoints:
// {"name": ..., "arguments": ...}.
type CallPayload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the decoded result payload of a successful call.
type ToolResult struct {
	Tool     string         `json:"tool"`
	Content  []Content      `json:"content"`
	Metadata ResultMetadata `json:"metadata"`
}

// Content is one result block. Only "text" is produced today.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResultMetadata carries the correlation envelope attached to every
// result.
type ResultMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}
