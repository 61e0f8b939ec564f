// Package backend is the HTTP client for the execution backend, the external
// agent service that actually performs fix runs. Only its HTTP contract is
// relied on here; this service never reaches into its storage.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/kaizen/internal/model"
)

// ErrTimeout marks a backend call that ran out of time. It is distinct from
// UpstreamError so the HTTP layer can report UPSTREAM_TIMEOUT instead of
// UPSTREAM_UNAVAILABLE.
var ErrTimeout = errors.New("backend request timed out")

// UpstreamError is a non-2xx backend response. Status and body are preserved
// verbatim so they can be forwarded to the caller for diagnosis.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// SubmitRequest is a new task handed to the backend.
type SubmitRequest struct {
	TraceID     string            `json:"trace_id"`
	ParentRunID string            `json:"parent_run_id,omitempty"`
	Payload     model.TaskPayload `json:"payload"`
}

// SubmitResponse is the backend's acknowledgement of a submitted task. The
// run itself materializes later through the ingest path; callers resolve it
// by polling runs filtered on the trace id.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// Client calls the execution backend over HTTP with a bounded per-request
// timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SubmitTask submits a new task for execution.
func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/tasks", req, &resp)
	return resp, err
}

// GetTaskPayload fetches the originally submitted task for a run, as needed
// to replay it on a rerun.
func (c *Client) GetTaskPayload(ctx context.Context, runID string) (model.TaskPayload, error) {
	var payload model.TaskPayload
	err := c.do(ctx, http.MethodGet, "/runs/"+runID+"/task", nil, &payload)
	return payload, err
}

// Health probes the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("backend: %s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		c.logger.Warn("backend request failed",
			"method", method, "path", path, "status", resp.StatusCode)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("backend: decode response: %w", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
