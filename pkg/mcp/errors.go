package mcp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransportClosed is returned for operations attempted after a
	// transport has been disposed, and wraps the failure delivered to
	// calls left in flight when the channel terminates.
	ErrTransportClosed = errors.New("mcp: transport closed")

	// ErrClientClosed is returned for any method called after
	// Client.Close. Programmer error: fail fast, never retry.
	ErrClientClosed = errors.New("mcp: client closed")

	// ErrNotConnected is returned by Send before Connect has
	// established the channel.
	ErrNotConnected = errors.New("mcp: transport not connected")
)

// ConnectError wraps a failure to establish a transport channel.
// Retrying is caller policy; the transport itself never retries beyond
// the single SSE reconnect attempt.
type ConnectError struct {
	ServerID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcp: connect %s: %v", e.ServerID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError wraps a failed write, tagged with the originating request
// id so callers can correlate it without parsing messages.
type SendError struct {
	RequestID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mcp: send %s: %v", e.RequestID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// TimeoutError reports that no matching response arrived within the
// call budget. The pending entry and its timer are released before
// this is returned.
type TimeoutError struct {
	RequestID string
	Budget    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp: request %s timed out after %s", e.RequestID, e.Budget)
}
