package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaizen/internal/artifacts"
	"github.com/ashita-ai/kaizen/internal/auth"
	"github.com/ashita-ai/kaizen/internal/backend"
	"github.com/ashita-ai/kaizen/internal/health"
	"github.com/ashita-ai/kaizen/internal/ratelimit"
	"github.com/ashita-ai/kaizen/internal/service/cards"
	"github.com/ashita-ai/kaizen/internal/service/dispatch"
	"github.com/ashita-ai/kaizen/internal/service/learning"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// Server is the Kaizen HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): JWTMgr, Limiter, HealthChecker, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB          *storage.DB
	Artifacts   *artifacts.Store
	Backend     *backend.Client
	CardBuilder *cards.Builder
	DispatchSvc *dispatch.Service
	LearningSvc *learning.Engine
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr        *auth.JWTManager
	HealthChecker *health.Checker
	Limiter       ratelimit.Limiter
	MCPServer     *mcpserver.MCPServer

	// Operator credential for POST /auth/token. Empty disables key auth.
	OperatorKeyHash string

	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
	MaxBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:              cfg.DB,
		JWTMgr:          cfg.JWTMgr,
		OperatorKeyHash: cfg.OperatorKeyHash,
		Artifacts:       cfg.Artifacts,
		Backend:         cfg.Backend,
		CardBuilder:     cfg.CardBuilder,
		DispatchSvc:     cfg.DispatchSvc,
		LearningSvc:     cfg.LearningSvc,
		HealthChecker:   cfg.HealthChecker,
		Logger:          cfg.Logger,
		Version:         cfg.Version,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Write endpoints get a per-IP limit; reads stay unthrottled.
	writeRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth (no token required, rate limited by IP).
	mux.Handle("POST /auth/token", writeRL(http.HandlerFunc(h.HandleAuthToken)))

	// Run store.
	mux.HandleFunc("GET /runs", h.HandleListRuns)
	mux.HandleFunc("GET /runs/stats", h.HandleRunStats)
	mux.HandleFunc("GET /runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /runs/{run_id}/artifacts/{filename}", h.HandleGetArtifact)
	mux.HandleFunc("GET /runs/{run_id}/task", h.HandleGetTask)

	// Ingestion (rate limited).
	mux.Handle("POST /ingest/runs", writeRL(http.HandlerFunc(h.HandleIngestRuns)))

	// Dispatch (rate limited).
	mux.Handle("POST /runs/{run_id}/rerun", writeRL(http.HandlerFunc(h.HandleRerun)))
	mux.Handle("POST /runs/{run_id}/fix-task", writeRL(http.HandlerFunc(h.HandleFixTask)))

	// CI-fix tracker.
	mux.Handle("POST /ci-fix/events", writeRL(http.HandlerFunc(h.HandleCiFixEvent)))
	mux.HandleFunc("GET /ci-fix/runs", h.HandleListCiFixRuns)
	mux.HandleFunc("GET /ci-fix/runs/{run_id}", h.HandleGetCiFixRun)

	// Learning loop.
	mux.Handle("POST /learning/signals", writeRL(http.HandlerFunc(h.HandleRecordSignal)))
	mux.HandleFunc("GET /learning/stats", h.HandleLearningStats)

	// MCP StreamableHTTP transport (auth required via middleware chain).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers for use in tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
