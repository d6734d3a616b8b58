package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"github.com/fyrsmithlabs/mcpgate/internal/logging"
	"github.com/fyrsmithlabs/mcpgate/internal/ratelimit"
	"github.com/fyrsmithlabs/mcpgate/internal/redact"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCallTimeout = 30 * time.Second

// Client exposes one uniform call surface over a configured server.
// It exclusively owns its transport and the underlying channel
// resource; nothing outside the Client may reach into either.
//
// The rate limiter and redactor are injected by the process bootstrap
// rather than held as package state, so independent Clients can
// coexist in one process without cross-contamination.
type Client struct {
	cfg      config.ServerConfig
	limiter  *ratelimit.Limiter
	redactor *redact.Redactor
	logger   *zap.Logger
	metrics  *Metrics

	mu        sync.Mutex
	transport Transport
	closed    bool
	pending   map[string]chan callResult
}

// callResult is the per-request completion handle: exactly one value
// is delivered per in-flight call, carrying either the matched
// response or the failure that ended it.
type callResult struct {
	resp *Response
	err  error
}

// Option customizes a Client.
type Option func(*Client)

// WithMetrics attaches call instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for cfg. The transport is established
// lazily on the first call, not here.
func NewClient(cfg config.ServerConfig, limiter *ratelimit.Limiter, redactor *redact.Redactor, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		return nil, fmt.Errorf("mcp: limiter is required")
	}
	if redactor == nil {
		return nil, fmt.Errorf("mcp: redactor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:      cfg,
		limiter:  limiter,
		redactor: redactor,
		logger:   logger.Named("client").With(zap.String("server_id", cfg.ID)),
		pending:  make(map[string]chan callResult),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("client configured", zap.String("transport", string(cfg.Transport)))
	for name, value := range cfg.Headers {
		c.logger.Debug("request header configured",
			zap.String("header", name),
			logging.Secret("value", value),
		)
	}
	return c, nil
}

// Call invokes a tool and waits for its result. Arguments must be
// JSON-serializable. Callers receive either a result or one of the
// typed errors; raw network and process errors never surface here.
func (c *Client) Call(ctx context.Context, tool string, args any) (*ToolResult, error) {
	start := time.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.mu.Unlock()

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("mcp: arguments for %s are not serializable: %w", tool, err)
	}

	key := c.cfg.ID + "." + tool
	if err := c.limiter.Allow(key); err != nil {
		c.metrics.recordRateLimited(ctx, c.cfg.ID, tool)
		return nil, err
	}

	transport, err := c.ensureTransport(ctx)
	if err != nil {
		c.metrics.recordCall(ctx, c.cfg.ID, tool, time.Since(start), err)
		return nil, err
	}

	req := &Request{
		ID:        uuid.NewString(),
		Name:      tool,
		Arguments: raw,
		IssuedAt:  start,
	}
	ch := c.register(req.ID)
	defer c.release(req.ID)

	timeout := c.cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := transport.Send(callCtx, req); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{RequestID: req.ID, Budget: timeout}
		}
		c.metrics.recordCall(ctx, c.cfg.ID, tool, time.Since(start), err)
		return nil, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			c.metrics.recordCall(ctx, c.cfg.ID, tool, time.Since(start), res.err)
			return nil, res.err
		}
		return c.finish(ctx, tool, req, res.resp, start)

	case <-callCtx.Done():
		var cerr error
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			cerr = &TimeoutError{RequestID: req.ID, Budget: timeout}
		} else {
			cerr = callCtx.Err()
		}
		c.metrics.recordCall(ctx, c.cfg.ID, tool, time.Since(start), cerr)
		return nil, cerr
	}
}

// Close disposes the Client and its transport. Must be called exactly
// once; any use after Close fails fast with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	t := c.transport
	c.mu.Unlock()

	if t != nil {
		return t.Close()
	}
	return nil
}

// ensureTransport lazily creates and connects the transport on first
// use. Concurrent first calls race benignly: the loser closes its own
// instance and uses the winner's.
func (c *Client) ensureTransport(ctx context.Context) (Transport, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c.transport != nil {
		t := c.transport
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	t, err := NewTransport(c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	t.OnResponse(c.handleResponse)
	t.OnClose(func(cause error) { c.handleTransportClosed(t, cause) })

	if err := t.Connect(ctx); err != nil {
		_ = t.Close()
		var ce *ConnectError
		if errors.As(err, &ce) || errors.Is(err, ErrTransportClosed) {
			return nil, err
		}
		return nil, &ConnectError{ServerID: c.cfg.ID, Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close()
		return nil, ErrClientClosed
	}
	if c.transport != nil {
		existing := c.transport
		c.mu.Unlock()
		_ = t.Close()
		return existing, nil
	}
	c.transport = t
	c.mu.Unlock()
	return t, nil
}

func (c *Client) register(id string) chan callResult {
	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// release removes per-call state. Runs on every call exit, so a
// timeout or cancellation never leaks its pending entry.
func (c *Client) release(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// handleResponse matches an inbound response to its in-flight call.
// Responses without a matching request id are dropped and logged.
func (c *Client) handleResponse(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping unmatched response", zap.String("id", resp.ID))
		return
	}
	ch <- callResult{resp: resp}
}

// handleTransportClosed fails everything in flight on the terminated
// transport and clears it so the next call spawns a fresh handle.
// A handle is never reused after disposal.
func (c *Client) handleTransportClosed(t Transport, cause error) {
	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	pending := c.pending
	c.pending = make(map[string]chan callResult)
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Warn("transport closed with calls in flight",
			zap.Int("in_flight", len(pending)),
			zap.Error(cause),
		)
	}
	for id, ch := range pending {
		ch <- callResult{err: &SendError{RequestID: id, Err: ErrTransportClosed}}
	}
}

// finish decodes the matched response, fills the correlation envelope
// and emits redacted telemetry. Redaction happens only here, after the
// untouched payload is on its way back to the caller.
func (c *Client) finish(ctx context.Context, tool string, req *Request, resp *Response, start time.Time) (*ToolResult, error) {
	elapsed := time.Since(start)

	if resp.Error != nil {
		err := fmt.Errorf("mcp: tool %s: %w", tool, resp.Error)
		c.logger.Debug("tool call failed",
			zap.String("tool", tool),
			zap.String("request_id", req.ID),
			zap.Duration("duration", elapsed),
			zap.Error(resp.Error),
		)
		c.metrics.recordCall(ctx, c.cfg.ID, tool, elapsed, err)
		return nil, err
	}

	var result ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		derr := fmt.Errorf("mcp: decoding result for %s: %w", tool, err)
		c.metrics.recordCall(ctx, c.cfg.ID, tool, elapsed, derr)
		return nil, derr
	}
	if result.Metadata.CorrelationID == "" {
		result.Metadata.CorrelationID = req.ID
	}
	if result.Metadata.DurationMs == 0 {
		result.Metadata.DurationMs = elapsed.Milliseconds()
	}

	c.logger.Debug("tool call completed",
		zap.String("tool", tool),
		zap.String("request_id", req.ID),
		zap.Duration("duration", elapsed),
		zap.ByteString("arguments", c.redactor.RedactRaw(req.Arguments)),
		zap.ByteString("result", c.redactor.RedactRaw(resp.Result)),
	)
	c.metrics.recordCall(ctx, c.cfg.ID, tool, elapsed, nil)
	return &result, nil
}

// ServerID returns the id of the configured server this client talks to.
func (c *Client) ServerID() string {
	return c.cfg.ID
}

// TransportKind returns the configured transport kind.
func (c *Client) TransportKind() config.TransportKind {
	return c.cfg.Transport
}
