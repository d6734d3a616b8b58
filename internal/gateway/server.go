// Package gateway exposes the MCP client layer over HTTP.
//
// The gateway owns one Client per configured server and routes
// POST /tools/call bodies to them. Tool names may be prefixed with a
// server id ("s1.echo"); unprefixed names go to the default server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"github.com/fyrsmithlabs/mcpgate/internal/ratelimit"
	"github.com/fyrsmithlabs/mcpgate/internal/redact"
	"github.com/fyrsmithlabs/mcpgate/pkg/mcp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "mcpgate"

// Server provides the HTTP endpoints.
type Server struct {
	echo          *echo.Echo
	clients       map[string]*mcp.Client
	defaultServer string
	redactor      *redact.Redactor
	logger        *zap.Logger
	cfg           *config.GatewayConfig
}

// NewServer creates a gateway over the given clients. The clients map
// is keyed by server id; the gateway does not own their lifecycle
// beyond routing calls.
func NewServer(clients map[string]*mcp.Client, redactor *redact.Redactor, logger *zap.Logger, cfg *config.GatewayConfig) (*Server, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("gateway: at least one client is required")
	}
	if redactor == nil {
		return nil, fmt.Errorf("gateway: redactor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("gateway: logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &config.GatewayConfig{Host: "localhost", Port: 9091}
	}

	defaultServer := cfg.DefaultServer
	if defaultServer == "" {
		for id := range clients {
			defaultServer = id
			break
		}
	}
	if _, ok := clients[defaultServer]; !ok {
		return nil, fmt.Errorf("gateway: default server %q has no client", defaultServer)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:          e,
		clients:       clients,
		defaultServer: defaultServer,
		redactor:      redactor,
		logger:        logger,
		cfg:           cfg,
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/tools", s.handleTools)
	s.echo.POST("/tools/call", s.handleToolsCall)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: serviceName})
}

func (s *Server) handleTools(c echo.Context) error {
	start := time.Now()

	servers := make([]ServerInfo, 0, len(s.clients))
	for id, client := range s.clients {
		servers = append(servers, ServerInfo{ID: id, Transport: client.TransportKind()})
	}

	return c.JSON(http.StatusOK, ToolsResponse{
		Servers:  servers,
		Metadata: s.envelope(c, start),
	})
}

func (s *Server) handleToolsCall(c echo.Context) error {
	start := time.Now()

	var req ToolsCallRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid tools/call request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}

	client, tool := s.route(req.Name)
	if client == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown tool %q", req.Name))
	}

	s.logger.Debug("dispatching tool call",
		zap.String("tool", tool),
		zap.String("server_id", client.ServerID()),
		zap.ByteString("arguments", s.redactor.RedactRaw(req.Arguments)),
	)

	result, err := client.Call(c.Request().Context(), tool, req.Arguments)
	if err != nil {
		return s.callError(c, start, err)
	}

	if result.Metadata.CorrelationID == "" {
		result.Metadata.CorrelationID = c.Response().Header().Get(echo.HeaderXRequestID)
	}
	if result.Metadata.DurationMs == 0 {
		result.Metadata.DurationMs = time.Since(start).Milliseconds()
	}

	return c.JSON(http.StatusOK, result)
}

// route resolves a call name to a client. A "server.tool" prefix wins
// when the prefix names a configured server; everything else goes to
// the default.
func (s *Server) route(name string) (*mcp.Client, string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		if client, ok := s.clients[name[:i]]; ok {
			return client, name[i+1:]
		}
	}
	return s.clients[s.defaultServer], name
}

// callError maps client errors onto HTTP statuses. Rate limiting is
// not a fault: it gets 429 plus a Retry-After header.
func (s *Server) callError(c echo.Context, start time.Time, err error) error {
	var rlErr *ratelimit.Error
	var toErr *mcp.TimeoutError
	var connErr *mcp.ConnectError

	env := s.envelope(c, start)

	switch {
	case errors.As(err, &rlErr):
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(rlErr.RetryAfter.Seconds())+1))
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:        "rate limit exceeded",
			RetryAfterMs: rlErr.RetryAfter.Milliseconds(),
			Metadata:     env,
		})

	case errors.As(err, &toErr):
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Metadata: env})

	case errors.As(err, &connErr), errors.Is(err, mcp.ErrTransportClosed):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Metadata: env})

	case errors.Is(err, mcp.ErrClientClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Metadata: env})

	default:
		s.logger.Error("tool call failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Metadata: env})
	}
}

func (s *Server) envelope(c echo.Context, start time.Time) Envelope {
	return Envelope{
		Service:       serviceName,
		CorrelationID: c.Response().Header().Get(echo.HeaderXRequestID),
		DurationMs:    time.Since(start).Milliseconds(),
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting gateway", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway")
	return s.echo.Shutdown(ctx)
}
