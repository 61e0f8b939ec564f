package model

import (
	"time"

	"github.com/google/uuid"
)

// LearningSignal pairs a human decision with the machine recommendation it
// followed or overrode. Recommended and Reason are copied from the run's
// summary card at recording time, never recomputed later: the statistics must
// reflect what was actually recommended at decision time even after the rule
// set changes. Append-only.
type LearningSignal struct {
	ID          uuid.UUID      `json:"id"`
	RunID       string         `json:"run_id"`
	Recommended Recommendation `json:"recommended"`
	Reason      string         `json:"reason"`
	Chosen      Recommendation `json:"chosen"`
	TS          time.Time      `json:"ts"`
}

// Mismatch reports whether the operator overrode the recommendation.
// Acceptance is strict equality; no equivalence classes between actions.
func (s LearningSignal) Mismatch() bool {
	return s.Chosen != s.Recommended
}

// SignalContext is a learning signal joined with the error code of the run
// it was recorded against, as needed for the by_error_code breakdown.
type SignalContext struct {
	LearningSignal
	ErrorCode string `json:"error_code,omitempty"`
}

// Bucket is one breakdown cell in learning statistics. Rate is
// accepted/total; noop recommendations never enter a bucket's denominator.
type Bucket struct {
	Total    int     `json:"total"`
	Accepted int     `json:"accepted"`
	Rate     float64 `json:"rate"`
}

// LearningStats is the derived reconciliation aggregate over a time window.
// It is computed on demand from the signal log, never stored.
type LearningStats struct {
	PeriodDays      int                       `json:"period_days"`
	TotalActions    int                       `json:"total_actions"`
	AcceptanceRate  float64                   `json:"acceptance_rate"`
	ByRecommended   map[string]Bucket         `json:"by_recommended"`
	ByReason        map[string]Bucket         `json:"by_reason"`
	ByErrorCode     map[string]Bucket         `json:"by_error_code"`
	ConfusionMatrix map[string]map[string]int `json:"confusion_matrix"`
	MismatchTop     []LearningSignal          `json:"mismatch_top"`
}
