package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaizen/internal/auth"
	"github.com/ashita-ai/kaizen/internal/testutil"
)

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	requestIDMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddleware_Passthrough(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/runs", nil)
	req.Header.Set("X-Request-ID", "req-from-client")
	requestIDMiddleware(inner).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-from-client", seen)
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	authMiddleware(jwtMgr, inner).ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := jwtMgr.IssueToken("ops")
	require.NoError(t, err)

	var operator string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			operator = claims.Operator
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authMiddleware(jwtMgr, inner).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", operator)
}

func TestAuthMiddleware_HealthExempt(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	authMiddleware(jwtMgr, inner).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	recoveryMiddleware(testutil.TestLogger(), inner).ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
