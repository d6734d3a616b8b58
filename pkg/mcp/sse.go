package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"go.uber.org/zap"
)

// sseTransport holds one long-lived text/event-stream open for
// responses and POSTs each request to the same endpoint. When the
// stream breaks it attempts exactly one reconnection before surfacing
// a connection-lost error to whatever is still pending.
type sseTransport struct {
	cfg    config.ServerConfig
	logger *zap.Logger
	http   *http.Client

	mu         sync.Mutex
	connected  bool
	closed     bool
	cancel     context.CancelFunc
	onResponse func(*Response)
	onClose    func(error)

	closeOnce sync.Once
}

func newSSETransport(cfg config.ServerConfig, logger *zap.Logger) *sseTransport {
	return &sseTransport{
		cfg:    cfg,
		logger: logger.Named("sse").With(zap.String("server_id", cfg.ID)),
		http:   &http.Client{},
	}
}

func (t *sseTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	// The stream outlives the Connect call, so it gets its own
	// lifetime, ended only by Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	body, err := t.openStream(streamCtx)
	if err != nil {
		cancel()
		return &ConnectError{ServerID: t.cfg.ID, Err: err}
	}

	t.mu.Lock()
	t.connected = true
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(streamCtx, body)
	return nil
}

func (t *sseTransport) openStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v.Value())
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (t *sseTransport) Send(ctx context.Context, req *Request) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &SendError{RequestID: req.ID, Err: ErrTransportClosed}
	}
	if !t.connected {
		t.mu.Unlock()
		return &SendError{RequestID: req.ID, Err: ErrNotConnected}
	}
	t.mu.Unlock()

	payload, err := json.Marshal(req)
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
		return &SendError{RequestID: req.ID, Err: err}
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxFrameSize))

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		return &SendError{RequestID: req.ID, Err: fmt.Errorf("server returned status %d", httpResp.StatusCode)}
	}
	return nil
}

func (t *sseTransport) OnResponse(fn func(*Response)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResponse = fn
}

func (t *sseTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.transitionClosed(nil)

	// Drop callback references so a discarded transport retains
	// nothing of its owner.
	t.mu.Lock()
	t.onResponse = nil
	t.onClose = nil
	t.mu.Unlock()
	return nil
}

// readLoop consumes the stream, reconnecting once per disruption. A
// delivery on the current stream resets the reconnect budget.
func (t *sseTransport) readLoop(ctx context.Context, body io.ReadCloser) {
	attempts := 0
	for {
		delivered, err := t.consume(body)
		body.Close()

		if ctx.Err() != nil || t.isClosed() {
			t.transitionClosed(nil)
			return
		}
		if delivered > 0 {
			attempts = 0
		}
		attempts++
		if attempts > 1 {
			t.transitionClosed(&ConnectError{ServerID: t.cfg.ID, Err: fmt.Errorf("event stream lost: %w", err)})
			return
		}

		t.logger.Warn("event stream interrupted, reconnecting", zap.Error(err))
		next, rerr := t.openStream(ctx)
		if rerr != nil {
			if ctx.Err() != nil || t.isClosed() {
				t.transitionClosed(nil)
				return
			}
			t.transitionClosed(&ConnectError{ServerID: t.cfg.ID, Err: rerr})
			return
		}
		body = next
	}
}

// consume parses SSE lines, dispatching one response per event.
// Returns how many events were delivered and why the stream ended.
func (t *sseTransport) consume(body io.Reader) (int, error) {
	delivered := 0
	var data bytes.Buffer

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() > 0 {
				t.dispatch(data.Bytes())
				delivered++
				data.Reset()
			}
		default:
			// event:, id:, retry: and comment lines carry nothing
			// needed for response correlation.
		}
	}

	if err := scanner.Err(); err != nil {
		return delivered, err
	}
	return delivered, io.EOF
}

func (t *sseTransport) dispatch(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.ID == "" {
		t.logger.Warn("discarding malformed event", zap.Int("bytes", len(data)))
		return
	}
	resp.ReceivedAt = time.Now()

	t.mu.Lock()
	fn := t.onResponse
	t.mu.Unlock()

	// A cleared or never-registered callback is skipped, not an error.
	if fn == nil {
		t.logger.Warn("no response handler registered, dropping event", zap.String("id", resp.ID))
		return
	}
	fn(&resp)
}

func (t *sseTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *sseTransport) transitionClosed(cause error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.connected = false
		fn := t.onClose
		t.mu.Unlock()

		if cause != nil {
			t.logger.Warn("event stream closed", zap.Error(cause))
		}
		if fn != nil {
			fn(cause)
		}
	})
}
