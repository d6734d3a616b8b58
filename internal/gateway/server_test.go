package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"github.com/fyrsmithlabs/mcpgate/internal/ratelimit"
	"github.com/fyrsmithlabs/mcpgate/internal/redact"
	"github.com/fyrsmithlabs/mcpgate/pkg/mcp"
)

// newTestGateway builds a gateway over one HTTPS-transport client
// backed by an in-process echo server.
func newTestGateway(t *testing.T, limit int) *Server {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload mcp.CallPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mcp.ToolResult{
			Tool:    payload.Name,
			Content: []mcp.Content{{Type: "text", Text: "hi"}},
		})
	}))
	t.Cleanup(backend.Close)

	limiter := ratelimit.New(ratelimit.Config{Limit: limit, Window: 10 * time.Second, SweepInterval: time.Hour}, zap.NewNop())
	t.Cleanup(limiter.Stop)

	redactor, err := redact.New(redact.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	cfg := config.ServerConfig{
		ID:        "s1",
		Transport: config.TransportHTTPS,
		URL:       backend.URL,
		Timeout:   config.Duration(5 * time.Second),
	}
	client, err := mcp.NewClient(cfg, limiter, redactor, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	srv, err := NewServer(
		map[string]*mcp.Client{"s1": client},
		redactor,
		zap.NewNop(),
		&config.GatewayConfig{Host: "localhost", Port: 0, DefaultServer: "s1"},
	)
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mcpgate", resp.Service)
}

func TestTools(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ToolsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "s1", resp.Servers[0].ID)
	assert.Equal(t, config.TransportHTTPS, resp.Servers[0].Transport)
	assert.Equal(t, "mcpgate", resp.Metadata.Service)
	assert.NotEmpty(t, resp.Metadata.CorrelationID)
}

func TestToolsCall(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"echo","arguments":{"msg":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result mcp.ToolResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "echo", result.Tool)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hi", result.Content[0].Text)
	assert.NotEmpty(t, result.Metadata.CorrelationID)
}

func TestToolsCallServerPrefix(t *testing.T) {
	srv := newTestGateway(t, 50)

	// "s1.echo" resolves to server s1, tool echo.
	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"s1.echo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result mcp.ToolResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "echo", result.Tool)

	// An unknown prefix is not routing syntax, just a tool name with a
	// dot in it, sent to the default server.
	rec = doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"nope.echo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "nope.echo", result.Tool)
}

func TestToolsCallMissingName(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsCallMalformedBody(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsCallRateLimited(t *testing.T) {
	srv := newTestGateway(t, 2)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"echo"}`)
		require.Equal(t, http.StatusOK, rec.Code, "call %d within the limit", i+1)
	}

	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"echo"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp.Error)
	assert.Greater(t, resp.RetryAfterMs, int64(0))
}

func TestToolsCallUpstreamFailure(t *testing.T) {
	// Backend that is already gone: the send fails at the network level.
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := dead.URL
	dead.Close()

	limiter := ratelimit.New(ratelimit.Config{Limit: 50, Window: 10 * time.Second, SweepInterval: time.Hour}, zap.NewNop())
	t.Cleanup(limiter.Stop)
	redactor, err := redact.New(redact.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	client, err := mcp.NewClient(config.ServerConfig{
		ID:        "s1",
		Transport: config.TransportHTTPS,
		URL:       url,
		Timeout:   config.Duration(2 * time.Second),
	}, limiter, redactor, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	srv, err := NewServer(map[string]*mcp.Client{"s1": client}, redactor, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/tools/call", `{"name":"echo"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	redactor, err := redact.New(redact.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = NewServer(nil, redactor, zap.NewNop(), nil)
	assert.Error(t, err, "no clients")

	srv := newTestGateway(t, 50)
	_, err = NewServer(srv.clients, nil, zap.NewNop(), nil)
	assert.Error(t, err, "no redactor")

	_, err = NewServer(srv.clients, redactor, nil, nil)
	assert.Error(t, err, "no logger")

	_, err = NewServer(srv.clients, redactor, zap.NewNop(), &config.GatewayConfig{DefaultServer: "ghost"})
	assert.Error(t, err, "default server must exist")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestGateway(t, 50)

	rec := doRequest(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
