package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kaizen/internal/artifacts"
	"github.com/ashita-ai/kaizen/internal/auth"
	"github.com/ashita-ai/kaizen/internal/backend"
	"github.com/ashita-ai/kaizen/internal/config"
	"github.com/ashita-ai/kaizen/internal/health"
	"github.com/ashita-ai/kaizen/internal/mcp"
	"github.com/ashita-ai/kaizen/internal/ratelimit"
	"github.com/ashita-ai/kaizen/internal/server"
	"github.com/ashita-ai/kaizen/internal/service/cards"
	"github.com/ashita-ai/kaizen/internal/service/dispatch"
	"github.com/ashita-ai/kaizen/internal/service/learning"
	"github.com/ashita-ai/kaizen/internal/storage"
	"github.com/ashita-ai/kaizen/internal/telemetry"
	"github.com/ashita-ai/kaizen/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("KAIZEN_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("kaizen starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager. Only wired into the server when an operator key
	// hash is configured; otherwise the write surface is open (dev mode).
	var jwtMgr *auth.JWTManager
	if cfg.OperatorKeyHash != "" {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	} else {
		logger.Warn("auth: disabled (no KAIZEN_OPERATOR_KEY_HASH)")
	}

	// Execution backend client and connectivity poller.
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	checker := health.NewChecker(backendClient, cfg.HealthInterval, logger)
	go checker.Run(ctx)

	// Artifact store and card builder.
	artifactStore := artifacts.NewStore(cfg.ArtifactRoot)
	cardBuilder := cards.NewBuilder(artifactStore)

	// Services shared by HTTP and MCP handlers.
	dispatchSvc := dispatch.New(db, backendClient, artifactStore, logger)
	learningSvc := learning.New(db, cfg.MismatchTop, logger)

	mcpSrv := mcp.New(db, learningSvc, version, logger)

	// Rate limiter for the write surface.
	var limiter ratelimit.Limiter
	if cfg.DispatchRateLimit > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.DispatchRateLimit, cfg.DispatchRateBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.DispatchRateLimit, "burst", cfg.DispatchRateBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:              db,
		Artifacts:       artifactStore,
		Backend:         backendClient,
		CardBuilder:     cardBuilder,
		DispatchSvc:     dispatchSvc,
		LearningSvc:     learningSvc,
		Logger:          logger,
		JWTMgr:          jwtMgr,
		HealthChecker:   checker,
		Limiter:         limiter,
		MCPServer:       mcpSrv.MCPServer(),
		OperatorKeyHash: cfg.OperatorKeyHash,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		Version:         version,
		MaxBodyBytes:    cfg.MaxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("kaizen shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("kaizen stopped")
	return nil
}
