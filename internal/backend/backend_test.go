package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/testutil"
)

func TestSubmitTask(t *testing.T) {
	var got SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tasks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(SubmitResponse{TaskID: "task_99"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testutil.TestLogger())
	resp, err := c.SubmitTask(context.Background(), SubmitRequest{
		TraceID:     "tr_rerun_run_1_abc12345",
		ParentRunID: "run_1",
		Payload:     model.TaskPayload{UserID: "u1", Target: "repo", Content: "fix it"},
	})
	require.NoError(t, err)
	assert.Equal(t, "task_99", resp.TaskID)
	assert.Equal(t, "tr_rerun_run_1_abc12345", got.TraceID)
	assert.Equal(t, "u1", got.Payload.UserID)
}

func TestGetTaskPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/runs/run_1/task", r.URL.Path)
		json.NewEncoder(w).Encode(model.TaskPayload{ //nolint:errcheck
			UserID: "u1", Target: "repo", Content: "original task", ProjectRoot: "/src",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testutil.TestLogger())
	payload, err := c.GetTaskPayload(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, "original task", payload.Content)
	assert.Equal(t, "/src", payload.ProjectRoot)
}

func TestUpstreamErrorPreservesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("agent pool exhausted")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testutil.TestLogger())
	_, err := c.GetTaskPayload(context.Background(), "run_1")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, "agent pool exhausted", upstream.Body)
}

func TestTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond, testutil.TestLogger())
	err := c.Health(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	var upstream *UpstreamError
	assert.False(t, errors.As(err, &upstream))
}

func TestHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testutil.TestLogger())
	require.NoError(t, c.Health(context.Background()))
}
