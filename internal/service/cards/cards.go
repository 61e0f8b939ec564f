// Package cards builds summary cards for terminal runs.
//
// A card is the machine's verdict on a finished run: what happened, why, and
// which corrective action to take next. Recommendations come from an ordered
// rule table keyed on the run's error taxonomy fields (error_stage and
// error_code are first-class columns, never re-parsed out of log text). The
// first matching rule wins and its identifier is recorded as the card's
// reason, which is what the reconciliation engine later aggregates by.
package cards

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ashita-ai/kaizen/internal/model"
)

// generatedBy tags cards with the rule set revision that produced them.
const generatedBy = "rules/v1"

// ArtifactReader supplies artifact content for evidence extraction.
// artifacts.Store satisfies it.
type ArtifactReader interface {
	Read(run model.Run, name string) ([]byte, error)
}

// Builder constructs summary cards. The reader may be nil; evidence links are
// then still emitted for artifacts recorded on the run, just without content
// excerpts in the key points.
type Builder struct {
	reader ArtifactReader
}

// NewBuilder creates a Builder.
func NewBuilder(reader ArtifactReader) *Builder {
	return &Builder{reader: reader}
}

// rule is one row of the recommendation table. Rules are evaluated in order
// and the first match wins.
type rule struct {
	id         string // recorded as the card's reason
	matches    func(run model.Run) bool
	recommend  model.Recommendation
	confidence float64
	hypothesis string
}

// flakyStages are pipeline stages whose failures are predominantly
// environmental rather than caused by the change under test.
var flakyStages = map[string]bool{
	"e2e":         true,
	"integration": true,
	"deploy":      true,
}

var rules = []rule{
	{
		id:         "passed",
		matches:    func(r model.Run) bool { return r.Status == model.RunStatusCompleted && r.Passed },
		recommend:  model.RecommendNoop,
		confidence: 0.95,
		hypothesis: "the run completed and its checks passed; no corrective action is needed",
	},
	{
		id:         "timeout",
		matches:    func(r model.Run) bool { return r.ErrorCodeValue() == model.ErrCodeTimeout },
		recommend:  model.RecommendRetry,
		confidence: 0.8,
		hypothesis: "the run hit its time budget; a retry under normal load is likely to pass",
	},
	{
		id:         "flaky_stage",
		matches:    func(r model.Run) bool { return r.ErrorStage != nil && flakyStages[*r.ErrorStage] },
		recommend:  model.RecommendRerun,
		confidence: 0.6,
		hypothesis: "the failing stage is one where transient environment failures dominate; rerun before changing anything",
	},
	{
		id:         "failure_with_patch",
		matches: func(r model.Run) bool {
			_, hasPatch := r.Artifacts["patch.diff"]
			return !r.Passed && hasPatch
		},
		recommend:  model.RecommendFix,
		confidence: 0.7,
		hypothesis: "the run produced a patch but still failed; the patch needs correction, not a replay",
	},
	{
		id:         "unclassified_failure",
		matches:    func(r model.Run) bool { return true },
		recommend:  model.RecommendRerun,
		confidence: 0.3,
		hypothesis: "the failure does not match a known pattern; rerun to gather more signal",
	},
}

// Build constructs and validates the summary card for a terminal run. It is
// an error to call it for a run that is still in flight.
func (b *Builder) Build(run model.Run) (model.SummaryCard, error) {
	if !run.Status.Terminal() {
		return model.SummaryCard{}, fmt.Errorf("cards: run %s is not terminal (%s)", run.RunID, run.Status)
	}

	var matched rule
	for _, r := range rules {
		if r.matches(run) {
			matched = r
			break
		}
	}

	card := model.SummaryCard{
		Decision:       decisionText(run),
		Hypothesis:     matched.hypothesis,
		Confidence:     matched.confidence,
		KeyPoints:      b.keyPoints(run),
		EvidenceLinks:  evidenceLinks(run),
		Recommendation: matched.recommend,
		Reason:         matched.id,
		GeneratedBy:    generatedBy,
	}

	if err := card.Validate(run); err != nil {
		return model.SummaryCard{}, fmt.Errorf("cards: card for run %s failed validation: %w", run.RunID, err)
	}
	return card, nil
}

func decisionText(run model.Run) string {
	if run.Status == model.RunStatusCompleted && run.Passed {
		return "run passed"
	}
	var sb strings.Builder
	sb.WriteString("run " + string(run.Status))
	if run.ErrorStage != nil {
		sb.WriteString(" in stage " + *run.ErrorStage)
	}
	if code := run.ErrorCodeValue(); code != "" {
		sb.WriteString(" (" + code + ")")
	}
	return sb.String()
}

func (b *Builder) keyPoints(run model.Run) []string {
	points := []string{}
	if run.ErrorStage != nil {
		points = append(points, "error_stage: "+*run.ErrorStage)
	}
	if code := run.ErrorCodeValue(); code != "" {
		points = append(points, "error_code: "+code)
	}
	if run.Changes != nil {
		points = append(points, fmt.Sprintf("%d files changed", *run.Changes))
	}
	if excerpt := b.stderrTail(run); excerpt != "" {
		points = append(points, "stderr: "+excerpt)
	}
	return points
}

// stderrTail returns the last non-empty line of stderr.log, if readable.
func (b *Builder) stderrTail(run model.Run) string {
	if b.reader == nil {
		return ""
	}
	if _, ok := run.Artifacts["stderr.log"]; !ok {
		return ""
	}
	content, err := b.reader.Read(run, "stderr.log")
	if err != nil {
		return ""
	}
	lines := bytes.Split(bytes.TrimSpace(content), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(string(lines[i])); line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return ""
}

// evidenceLinks points at the artifacts most relevant to the verdict. Only
// artifacts actually recorded on the run are referenced.
func evidenceLinks(run model.Run) []model.EvidenceLink {
	links := []model.EvidenceLink{}
	for _, name := range []string{"patch.diff", "stderr.log", "result.json"} {
		if _, ok := run.Artifacts[name]; ok {
			links = append(links, model.EvidenceLink{Artifact: name})
		}
	}
	return links
}
