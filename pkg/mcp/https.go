package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"go.uber.org/zap"
)

// httpsTransport performs one independent HTTP request per call.
// There is no persistent channel: Connect is a no-op and every Send
// does the network round trip directly, delivering the response
// through the registered handler before returning. Per-call state
// lives in the shared rate limiter, whose sweep bounds it when many
// distinct callers hit sporadically.
type httpsTransport struct {
	cfg    config.ServerConfig
	logger *zap.Logger
	http   *http.Client

	mu         sync.Mutex
	closed     bool
	onResponse func(*Response)
	onClose    func(error)

	closeOnce sync.Once
}

func newHTTPSTransport(cfg config.ServerConfig, logger *zap.Logger) *httpsTransport {
	return &httpsTransport{
		cfg:    cfg,
		logger: logger.Named("https").With(zap.String("server_id", cfg.ID)),
		http:   &http.Client{},
	}
}

func (t *httpsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	return nil
}

func (t *httpsTransport) Send(ctx context.Context, req *Request) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &SendError{RequestID: req.ID, Err: ErrTransportClosed}
	}
	t.mu.Unlock()

	payload, err := json.Marshal(CallPayload{Name: req.Name, Arguments: req.Arguments})
	if err != nil {
		return &SendError{RequestID: req.ID, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return &SendError{RequestID: req.ID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v.Value())
	}

	httpResp, err := t.http.Do(httpReq)
	if err != nil {
		// Network faults become typed send errors; raw transport
		// errors never cross the client boundary.
		return &SendError{RequestID: req.ID, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxFrameSize))
	if err != nil {
		return &SendError{RequestID: req.ID, Err: err}
	}

	resp := &Response{ID: req.ID, ReceivedAt: time.Now()}
	if httpResp.StatusCode != http.StatusOK {
		resp.Error = &WireError{Code: httpResp.StatusCode, Message: strings.TrimSpace(string(body))}
	} else {
		resp.Result = body
	}

	t.deliver(resp)
	return nil
}

func (t *httpsTransport) OnResponse(fn func(*Response)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResponse = fn
}

func (t *httpsTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *httpsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.closeOnce.Do(func() {
		t.mu.Lock()
		fn := t.onClose
		t.onResponse = nil
		t.onClose = nil
		t.mu.Unlock()
		if fn != nil {
			fn(nil)
		}
	})
	return nil
}

func (t *httpsTransport) deliver(resp *Response) {
	t.mu.Lock()
	fn := t.onResponse
	t.mu.Unlock()

	if fn == nil {
		t.logger.Warn("no response handler registered, dropping response", zap.String("id", resp.ID))
		return
	}
	fn(resp)
}
