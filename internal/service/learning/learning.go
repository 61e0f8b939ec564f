// Package learning reconciles human decisions against machine
// recommendations and aggregates the outcomes into tuning statistics.
//
// A signal freezes the recommendation as it stood when the human decided:
// recommended and reason are copied from the run's summary card at recording
// time and never recomputed, so acceptance rates stay honest across rule set
// revisions. Statistics are a pure fold over the signal log for a window; the
// engine stores nothing derived.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// SignalStore is the slice of the storage layer the engine needs.
type SignalStore interface {
	GetRun(ctx context.Context, runID string) (model.Run, error)
	InsertSignal(ctx context.Context, sig model.LearningSignal) error
	ListSignalsSince(ctx context.Context, since time.Time) ([]model.SignalContext, error)
}

// Engine records signals and computes reconciliation statistics.
type Engine struct {
	store       SignalStore
	mismatchTop int
	logger      *slog.Logger
}

// New creates an Engine. mismatchTop caps the mismatch worklist length.
func New(store SignalStore, mismatchTop int, logger *slog.Logger) *Engine {
	if mismatchTop <= 0 {
		mismatchTop = 20
	}
	return &Engine{store: store, mismatchTop: mismatchTop, logger: logger}
}

// RecordSignal appends a learning signal for the run. The recommendation and
// its reason are taken from the run's stored summary card; a run without a
// card fails with storage.ErrNoCard because there is nothing to reconcile
// against.
func (e *Engine) RecordSignal(ctx context.Context, req model.RecordSignalRequest) (model.LearningSignal, error) {
	if err := req.Validate(); err != nil {
		return model.LearningSignal{}, err
	}

	run, err := e.store.GetRun(ctx, req.RunID)
	if err != nil {
		return model.LearningSignal{}, err
	}
	if run.SummaryCard == nil {
		return model.LearningSignal{}, fmt.Errorf("run %s: %w", run.RunID, storage.ErrNoCard)
	}

	sig := model.LearningSignal{
		ID:          uuid.New(),
		RunID:       run.RunID,
		Recommended: run.SummaryCard.Recommendation,
		Reason:      run.SummaryCard.Reason,
		Chosen:      req.Chosen,
		TS:          time.Now().UTC(),
	}
	if err := e.store.InsertSignal(ctx, sig); err != nil {
		return model.LearningSignal{}, err
	}

	e.logger.Info("learning signal recorded",
		"run_id", sig.RunID, "recommended", sig.Recommended,
		"chosen", sig.Chosen, "mismatch", sig.Mismatch())
	return sig, nil
}

// windows maps the accepted period selectors to day counts.
var windows = map[string]int{
	"24h": 1,
	"7d":  7,
}

// ComputeStats aggregates signals over the named window ("24h" or "7d").
func (e *Engine) ComputeStats(ctx context.Context, window string) (model.LearningStats, error) {
	days, ok := windows[window]
	if !ok {
		return model.LearningStats{}, fmt.Errorf("unknown stats window %q, want 24h or 7d", window)
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	signals, err := e.store.ListSignalsSince(ctx, since)
	if err != nil {
		return model.LearningStats{}, err
	}
	return Fold(signals, days, e.mismatchTop), nil
}

// Fold reduces a batch of signals into statistics. It is a pure function:
// signal order does not matter, so out-of-order appended timestamps cannot
// corrupt the counts.
//
// Acceptance means chosen == recommended, strictly. Signals whose
// recommendation was noop are excluded from every acceptance denominator
// (a human cannot reject a no-op) but still appear in total_actions and the
// confusion matrix.
func Fold(signals []model.SignalContext, periodDays, mismatchTop int) model.LearningStats {
	stats := model.LearningStats{
		PeriodDays:      periodDays,
		TotalActions:    len(signals),
		ByRecommended:   map[string]model.Bucket{},
		ByReason:        map[string]model.Bucket{},
		ByErrorCode:     map[string]model.Bucket{},
		ConfusionMatrix: map[string]map[string]int{},
		MismatchTop:     []model.LearningSignal{},
	}

	var total, accepted int
	var mismatches []model.LearningSignal

	for _, sc := range signals {
		row := stats.ConfusionMatrix[string(sc.Recommended)]
		if row == nil {
			row = map[string]int{}
			stats.ConfusionMatrix[string(sc.Recommended)] = row
		}
		row[string(sc.Chosen)]++

		if sc.Mismatch() {
			mismatches = append(mismatches, sc.LearningSignal)
		}

		if sc.Recommended == model.RecommendNoop {
			continue
		}

		ok := !sc.Mismatch()
		total++
		if ok {
			accepted++
		}
		bump(stats.ByRecommended, string(sc.Recommended), ok)
		bump(stats.ByReason, sc.Reason, ok)
		if sc.ErrorCode != "" {
			bump(stats.ByErrorCode, sc.ErrorCode, ok)
		}
	}

	if total > 0 {
		stats.AcceptanceRate = float64(accepted) / float64(total)
	}

	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].TS.After(mismatches[j].TS)
	})
	if len(mismatches) > mismatchTop {
		mismatches = mismatches[:mismatchTop]
	}
	stats.MismatchTop = mismatches

	return stats
}

func bump(buckets map[string]model.Bucket, key string, accepted bool) {
	b := buckets[key]
	b.Total++
	if accepted {
		b.Accepted++
	}
	b.Rate = float64(b.Accepted) / float64(b.Total)
	buckets[key] = b
}
