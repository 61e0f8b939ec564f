// Package model defines the core domain types for Kaizen.
//
// Types correspond directly to database tables and API payloads. Runs are
// append-mostly: a run progresses created -> started -> completed/failed and
// is immutable once completed_at is set, except for the summary card attached
// at terminal state and the learning signals recorded against it. Corrective
// actions never edit a run; they create a new one with parent_run_id set.
package model

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a task execution.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusStarted   RunStatus = "started"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ValidRunStatus reports whether s is one of the four run states.
func ValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusCreated, RunStatusStarted, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further progression.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ErrCodeTimeout is the reserved error_code value counted as a timeout
// in run statistics.
const ErrCodeTimeout = "TIMEOUT"

// Run is one recorded execution attempt of a dispatched task.
//
// The run_id is assigned by the execution backend, which means it only
// becomes known after the backend accepts work; callers that submit a task
// hold a trace_id immediately and resolve the run_id by polling the list
// endpoint filtered on that trace.
type Run struct {
	RunID          string            `json:"run_id"`
	TraceID        string            `json:"trace_id"`
	TaskID         string            `json:"task_id"`
	Status         RunStatus         `json:"status"`
	Passed         bool              `json:"passed"`
	Provider       string            `json:"provider,omitempty"`
	Model          string            `json:"model,omitempty"`
	DurationMS     *int64            `json:"duration_ms,omitempty"`
	Changes        *int              `json:"changes,omitempty"`
	ErrorStage     *string           `json:"error_stage,omitempty"`
	ErrorCode      *string           `json:"error_code,omitempty"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
	ArtifactHashes map[string]string `json:"artifact_hashes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	SummaryCard    *SummaryCard      `json:"summary_card,omitempty"`
	ParentRunID    *string           `json:"parent_run_id,omitempty"`
}

// ErrorCodeValue returns the run's error code or "" when unset.
func (r Run) ErrorCodeValue() string {
	if r.ErrorCode == nil {
		return ""
	}
	return *r.ErrorCode
}

// ArtifactNames lists the artifact filenames recorded on the run.
func (r Run) ArtifactNames() []string {
	names := make([]string, 0, len(r.Artifacts))
	for name := range r.Artifacts {
		names = append(names, name)
	}
	return names
}

// AllowedArtifacts is the enumerated allow-list of artifact filenames the
// service will ever read or serve. Fetching anything else fails before any
// I/O is attempted: the filename doubles as a path component, so this is a
// security boundary, not a convenience limit.
var AllowedArtifacts = map[string]bool{
	"patch.diff":         true,
	"stdout.log":         true,
	"stderr.log":         true,
	"result.json":        true,
	"conversation.jsonl": true,
}

// ValidateArtifactName rejects any filename outside the allow-list.
func ValidateArtifactName(name string) error {
	if !AllowedArtifacts[name] {
		return fmt.Errorf("artifact name %q is not allowed", name)
	}
	return nil
}

// RunFilters are the filter parameters for listing runs.
type RunFilters struct {
	Status   *RunStatus
	TraceID  string // substring match
	Provider string
	Model    string
	Since    *time.Time
}

// RunStats is an aggregate over runs within a sliding time window.
type RunStats struct {
	Total        int              `json:"total"`
	Completed    int              `json:"completed"`
	Failed       int              `json:"failed"`
	Timeouts     int              `json:"timeouts"`
	ByErrorStage []StageCount     `json:"by_error_stage"`
	ByErrorCode  []ErrorCodeCount `json:"by_error_code"`
}

// StageCount is one error_stage bucket in run statistics.
type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// ErrorCodeCount is one error_code bucket in run statistics.
type ErrorCodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// TaskPayload is the originally submitted task, fetched from the execution
// backend when dispatching a rerun.
type TaskPayload struct {
	UserID      string `json:"user_id"`
	Target      string `json:"target"`
	Content     string `json:"content"`
	ProjectRoot string `json:"project_root"`
}
