package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/kaizen/internal/artifacts"
	"github.com/ashita-ai/kaizen/internal/auth"
	"github.com/ashita-ai/kaizen/internal/backend"
	"github.com/ashita-ai/kaizen/internal/health"
	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/service/cards"
	"github.com/ashita-ai/kaizen/internal/service/dispatch"
	"github.com/ashita-ai/kaizen/internal/service/learning"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db              *storage.DB
	jwtMgr          *auth.JWTManager
	operatorKeyHash string
	artifacts       *artifacts.Store
	backend         *backend.Client
	cardBuilder     *cards.Builder
	dispatchSvc     *dispatch.Service
	learningSvc     *learning.Engine
	healthChecker   *health.Checker
	logger          *slog.Logger
	startedAt       time.Time
	version         string
	maxBodyBytes    int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): JWTMgr, HealthChecker.
type HandlersDeps struct {
	DB              *storage.DB
	JWTMgr          *auth.JWTManager
	OperatorKeyHash string
	Artifacts       *artifacts.Store
	Backend         *backend.Client
	CardBuilder     *cards.Builder
	DispatchSvc     *dispatch.Service
	LearningSvc     *learning.Engine
	HealthChecker   *health.Checker
	Logger          *slog.Logger
	Version         string
	MaxBodyBytes    int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:              d.DB,
		jwtMgr:          d.JWTMgr,
		operatorKeyHash: d.OperatorKeyHash,
		artifacts:       d.Artifacts,
		backend:         d.Backend,
		cardBuilder:     d.CardBuilder,
		dispatchSvc:     d.DispatchSvc,
		learningSvc:     d.LearningSvc,
		healthChecker:   d.HealthChecker,
		logger:          d.Logger,
		startedAt:       time.Now(),
		version:         d.Version,
		maxBodyBytes:    d.MaxBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token. The operator key is verified
// against the configured argon2id hash; a dummy verification runs when auth
// is unconfigured so response timing does not reveal which case was hit.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.Operator == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "operator and api_key are required")
		return
	}

	if h.jwtMgr == nil || h.operatorKeyHash == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, h.operatorKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.Operator)
	if err != nil {
		h.logger.Error("token issuance failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	h.logger.Info("token issued", "operator", req.Operator)
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Backend:  string(health.StatusChecking),
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}

	// An unreachable execution backend degrades the service but does not
	// make it unhealthy: reads keep working from stored data.
	if h.healthChecker != nil {
		backendStatus, checkedAt := h.healthChecker.Snapshot()
		resp.Backend = string(backendStatus)
		if !checkedAt.IsZero() {
			resp.BackendCheckedAt = &checkedAt
		}
		if backendStatus == health.StatusDisconnected && status == "healthy" {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, r, httpStatus, resp)
}
