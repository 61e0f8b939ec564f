package model

import "time"

// CiFixStatus is the state of a tracked CI-fix workflow.
type CiFixStatus string

const (
	CiFixDetected   CiFixStatus = "DETECTED"
	CiFixInProgress CiFixStatus = "IN_PROGRESS"
	CiFixDone       CiFixStatus = "DONE"
	CiFixUnknown    CiFixStatus = "UNKNOWN"
)

// ValidCiFixStatus reports whether s is a known tracker state.
func ValidCiFixStatus(s CiFixStatus) bool {
	switch s {
	case CiFixDetected, CiFixInProgress, CiFixDone, CiFixUnknown:
		return true
	}
	return false
}

// CiFixEventType is an incoming tracker event.
type CiFixEventType string

const (
	CiFixEventDetected   CiFixEventType = "DETECTED"
	CiFixEventFixStarted CiFixEventType = "FIX_STARTED"
	CiFixEventFixDone    CiFixEventType = "FIX_DONE"
)

// ValidCiFixEventType reports whether t is a known event type.
func ValidCiFixEventType(t CiFixEventType) bool {
	switch t {
	case CiFixEventDetected, CiFixEventFixStarted, CiFixEventFixDone:
		return true
	}
	return false
}

// CiFixEvent is one entry in a CI-fix run's audit log. Events are recorded
// unconditionally, including out-of-order or duplicate ones; ordering
// violations surface in the derived status, never as rejected events.
type CiFixEvent struct {
	EventType CiFixEventType `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     *string        `json:"agent,omitempty"`
	Result    *string        `json:"result,omitempty"`
}

// CiFixRun tracks one detect -> fix -> done workflow. Status and the SLO
// timers are derived from the event log: TStart and TFix measure seconds
// from detection to fix start and fix completion respectively, and stay nil
// whenever the event sequence violates the expected ordering (status UNKNOWN)
// rather than ever reporting a negative duration.
type CiFixRun struct {
	RunID        string       `json:"run_id"`
	Status       CiFixStatus  `json:"status"`
	Events       []CiFixEvent `json:"events"`
	DetectedAt   *time.Time   `json:"detected_at,omitempty"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	DoneAt       *time.Time   `json:"done_at,omitempty"`
	TStart       *float64     `json:"t_start,omitempty"`
	TFix         *float64     `json:"t_fix,omitempty"`
	Issue        string       `json:"issue,omitempty"`
	SHA          string       `json:"sha,omitempty"`
	WorkflowName string       `json:"workflow_name,omitempty"`
	Project      string       `json:"project,omitempty"`
}
