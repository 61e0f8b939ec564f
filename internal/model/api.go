package model

import (
	"fmt"
	"time"
)

// Error codes returned in the error envelope. Dashboards branch on these to
// distinguish "no data" from "backend down", so UPSTREAM_* codes must never
// be collapsed into INTERNAL_ERROR.
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ErrCodePartialFailure      = "PARTIAL_FAILURE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
// Upstream is set when the error wraps an execution-backend failure; it
// carries the upstream status and body verbatim so operators can diagnose
// backend outages from the response alone.
type ErrorDetail struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Upstream *UpstreamDetail `json:"upstream,omitempty"`
}

// UpstreamDetail is the verbatim upstream failure attached to an error.
type UpstreamDetail struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// ResponseMeta is attached to every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RunList is the payload of GET /runs. Pagination is keyset-based behind an
// opaque cursor so pages stay stable under concurrent inserts.
type RunList struct {
	Runs       []Run  `json:"runs"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// CiFixRunList is the payload of GET /ci-fix/runs.
type CiFixRunList struct {
	Runs    []CiFixRun `json:"runs"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

// DispatchResult is the payload of POST /runs/{run_id}/rerun and
// POST /runs/{run_id}/fix-task. ParentRunID is set for reruns only.
type DispatchResult struct {
	TaskID      string `json:"task_id"`
	TraceID     string `json:"trace_id"`
	ParentRunID string `json:"parent_run_id,omitempty"`
}

// RecordSignalRequest is the body of POST /learning/signals. Recommended and
// reason are looked up from the run's summary card server-side; the client
// supplies only the run and the action the human chose.
type RecordSignalRequest struct {
	RunID  string         `json:"run_id"`
	Chosen Recommendation `json:"chosen"`
}

// Validate checks the signal request.
func (r RecordSignalRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if !ValidRecommendation(r.Chosen) {
		return fmt.Errorf("chosen must be one of retry, rerun, fix, noop")
	}
	return nil
}

// IngestRunRequest is one run record reported by the execution backend.
// The same shape serves creation and status progression; the storage layer
// applies it append-mostly, keyed on run_id.
type IngestRunRequest struct {
	RunID       string            `json:"run_id"`
	TraceID     string            `json:"trace_id"`
	TaskID      string            `json:"task_id"`
	Status      RunStatus         `json:"status"`
	Passed      bool              `json:"passed"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
	DurationMS  *int64            `json:"duration_ms,omitempty"`
	Changes     *int              `json:"changes,omitempty"`
	ErrorStage  *string           `json:"error_stage,omitempty"`
	ErrorCode   *string           `json:"error_code,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
	ParentRunID *string           `json:"parent_run_id,omitempty"`
}

// Validate checks the ingest record.
func (r IngestRunRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if r.TraceID == "" {
		return fmt.Errorf("trace_id is required")
	}
	if !ValidRunStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	for name := range r.Artifacts {
		if err := ValidateArtifactName(name); err != nil {
			return err
		}
	}
	return nil
}

// IngestBatchRequest is the body of POST /ingest/runs.
type IngestBatchRequest struct {
	Runs []IngestRunRequest `json:"runs"`
}

// IngestItemResult is the per-item outcome of a batch ingest. Error carries
// the raw failure text for failed items; a batch never collapses into a
// single aggregate boolean.
type IngestItemResult struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IngestBatchResult is the payload of POST /ingest/runs.
type IngestBatchResult struct {
	Accepted int                `json:"accepted"`
	Failed   int                `json:"failed"`
	Items    []IngestItemResult `json:"items"`
}

// CiFixEventRequest is the body of POST /ci-fix/events. The first DETECTED
// event for a run creates the tracked record; identifying fields are taken
// from whichever event carries them first.
type CiFixEventRequest struct {
	RunID        string         `json:"run_id"`
	EventType    CiFixEventType `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Agent        *string        `json:"agent,omitempty"`
	Result       *string        `json:"result,omitempty"`
	Issue        string         `json:"issue,omitempty"`
	SHA          string         `json:"sha,omitempty"`
	WorkflowName string         `json:"workflow_name,omitempty"`
	Project      string         `json:"project,omitempty"`
}

// Validate checks the tracker event.
func (r CiFixEventRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if !ValidCiFixEventType(r.EventType) {
		return fmt.Errorf("invalid event_type %q", r.EventType)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// HealthResponse is the payload of GET /health. Backend carries the last
// observed reachability of the execution backend so dashboards can tell
// "no data" apart from "backend down".
type HealthResponse struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	Postgres         string     `json:"postgres"`
	Backend          string     `json:"backend"`
	BackendCheckedAt *time.Time `json:"backend_checked_at,omitempty"`
	Uptime           int64      `json:"uptime_seconds"`
}

// AuthTokenRequest is the body of POST /auth/token.
type AuthTokenRequest struct {
	Operator string `json:"operator"`
	APIKey   string `json:"api_key"`
}

// AuthTokenResponse is the payload of POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
