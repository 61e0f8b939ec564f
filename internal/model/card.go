package model

import "fmt"

// Recommendation enumerates the corrective actions a summary card can suggest.
type Recommendation string

const (
	RecommendRetry Recommendation = "retry"
	RecommendRerun Recommendation = "rerun"
	RecommendFix   Recommendation = "fix"
	RecommendNoop  Recommendation = "noop"
)

// ValidRecommendation reports whether r is one of the four enumerated actions.
func ValidRecommendation(r Recommendation) bool {
	switch r {
	case RecommendRetry, RecommendRerun, RecommendFix, RecommendNoop:
		return true
	}
	return false
}

// EvidenceLink points at a region of a run artifact supporting the card's
// decision. Artifact is a filename from the run's artifact map, never a path.
type EvidenceLink struct {
	Artifact string  `json:"artifact"`
	LineFrom *int    `json:"line_from,omitempty"`
	LineTo   *int    `json:"line_to,omitempty"`
	Note     *string `json:"note,omitempty"`
}

// SummaryCard is the generated verdict and recommended action for a terminal
// run. A card is built exactly once per run and never regenerated after a
// learning signal has been recorded against it.
type SummaryCard struct {
	Decision       string         `json:"decision"`
	Hypothesis     string         `json:"hypothesis"`
	Confidence     float64        `json:"confidence"`
	KeyPoints      []string       `json:"key_points"`
	EvidenceLinks  []EvidenceLink `json:"evidence_links"`
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"` // identifier of the rule that produced the recommendation
	GeneratedBy    string         `json:"generated_by,omitempty"`
}

// Validate checks the card's internal invariants against the run it
// summarizes. A dangling evidence link is a generation bug, so validation
// failures here must abort card construction rather than surface later as a
// broken render.
func (c SummaryCard) Validate(run Run) error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", c.Confidence)
	}
	if !ValidRecommendation(c.Recommendation) {
		return fmt.Errorf("invalid recommendation %q", c.Recommendation)
	}
	for i, ev := range c.EvidenceLinks {
		if _, ok := run.Artifacts[ev.Artifact]; !ok {
			return fmt.Errorf("evidence_links[%d] references unknown artifact %q", i, ev.Artifact)
		}
		if ev.LineFrom != nil && *ev.LineFrom < 1 {
			return fmt.Errorf("evidence_links[%d] line_from must be >= 1", i)
		}
		if ev.LineFrom != nil && ev.LineTo != nil && *ev.LineTo < *ev.LineFrom {
			return fmt.Errorf("evidence_links[%d] line_to precedes line_from", i)
		}
	}
	return nil
}
