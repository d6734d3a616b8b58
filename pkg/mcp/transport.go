package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"go.uber.org/zap"
)

// maxFrameSize bounds a single inbound frame or response body.
const maxFrameSize = 4 * 1024 * 1024

// Transport carries requests and responses over one underlying
// channel. Implementations form a closed set selected by
// config.TransportKind.
type Transport interface {
	// Connect establishes the channel. Idempotent: connecting while
	// already connected is a no-op.
	Connect(ctx context.Context) error

	// Send writes one request onto the channel. Fails with
	// ErrNotConnected before Connect and ErrTransportClosed after
	// Close.
	Send(ctx context.Context, req *Request) error

	// OnResponse registers the response handler. Responses are
	// delivered in channel arrival order, which is not necessarily
	// request order. A nil handler drops responses with a warning.
	OnResponse(fn func(*Response))

	// OnClose registers a handler invoked exactly once when the
	// channel terminates, with the cause (nil on explicit Close).
	OnClose(fn func(error))

	// Close releases the channel resources. Safe to call multiple
	// times; subsequent Sends fail with ErrTransportClosed.
	Close() error
}

// NewTransport selects the transport variant for cfg.
func NewTransport(cfg config.ServerConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		return newStdioTransport(cfg, logger), nil
	case config.TransportSSE:
		return newSSETransport(cfg, logger), nil
	case config.TransportHTTPS:
		return newHTTPSTransport(cfg, logger), nil
	default:
		return nil, &config.ConfigError{
			Field:  "transport",
			Reason: fmt.Sprintf("unsupported kind %q (server %s)", cfg.Transport, cfg.ID),
		}
	}
}

// Compile-time checks that all variants implement Transport.
var (
	_ Transport = (*stdioTransport)(nil)
	_ Transport = (*sseTransport)(nil)
	_ Transport = (*httpsTransport)(nil)
)
