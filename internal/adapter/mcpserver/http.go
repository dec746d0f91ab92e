package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/middleware"
)

// mcpEndpoint is the streamable HTTP endpoint path.
const mcpEndpoint = "/mcp"

// Metrics counts tool calls across all transports.
type Metrics struct {
	ToolCallsTotal  atomic.Int64
	ToolErrorsTotal atomic.Int64
}

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Tools         struct {
		Registered  int   `json:"registered"`
		CallsTotal  int64 `json:"calls_total"`
		ErrorsTotal int64 `json:"errors_total"`
	} `json:"tools"`
}

// HTTPServer serves the MCP streamable HTTP transport.
type HTTPServer struct {
	srv       *Server
	cfg       config.ServerConfig
	httpSrv   *http.Server
	mu        sync.Mutex
	boundAddr string
	ready     chan struct{}
}

// NewHTTPServer creates an HTTP transport for s.
func NewHTTPServer(s *Server, cfg config.ServerConfig) *HTTPServer {
	return &HTTPServer{srv: s, cfg: cfg, ready: make(chan struct{})}
}

// Handler returns the routed and middleware-wrapped handler. ctx bounds the
// rate limiter's janitor goroutine.
func (h *HTTPServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(mcpEndpoint, server.NewStreamableHTTPServer(h.srv.mcp,
		server.WithEndpointPath(mcpEndpoint),
	))
	mux.HandleFunc("/api/v1/status", h.statusHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(h.srv.logger),
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: h.cfg.RateLimit.RequestsPerMin,
			BurstSize:      h.cfg.RateLimit.Burst,
			TrustedProxies: h.cfg.RateLimit.TrustedProxies,
		}),
	)
}

// Start listens on the configured address and serves until ctx is
// cancelled. A listen failure is returned immediately.
func (h *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp http listen: %w", err)
	}

	h.mu.Lock()
	h.boundAddr = listener.Addr().String()
	h.httpSrv = &http.Server{
		Handler:           h.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.mu.Unlock()
	close(h.ready)

	h.srv.logger.Info("mcp server listening", "transport", "http", "addr", h.boundAddr, "endpoint", mcpEndpoint)

	go func() {
		<-ctx.Done()
		_ = h.Stop(context.Background())
	}()

	if err := h.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("mcp http serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.httpSrv
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Ready is closed once the listener is bound.
func (h *HTTPServer) Ready() <-chan struct{} { return h.ready }

// BoundAddr returns the address the server bound to. Only valid after Ready.
func (h *HTTPServer) BoundAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boundAddr
}

func (h *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp StatusResponse
	resp.Name = h.srv.opts.Name
	resp.Version = h.srv.opts.Version
	resp.UptimeSeconds = int64(time.Since(h.srv.startTime).Seconds())
	resp.Tools.Registered = len(h.srv.registry.List())
	resp.Tools.CallsTotal = h.srv.metrics.ToolCallsTotal.Load()
	resp.Tools.ErrorsTotal = h.srv.metrics.ToolErrorsTotal.Load()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ListenAndServe is a convenience wrapper that starts an HTTPServer for s.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	return NewHTTPServer(s, cfg).Start(ctx)
}
