// Package cifix derives CI-fix tracker state from an event log.
//
// The event log is the source of truth and grows unconditionally: every
// incoming event is recorded for audit, including duplicates and events
// arriving out of order. All tracker state (status, lifecycle timestamps,
// SLO timers) is a pure fold over that log, so a replay of the same events
// always yields the same state.
package cifix

import (
	"time"

	"github.com/ashita-ai/kaizen/internal/model"
)

// Derived is the tracker state computed from an event log.
type Derived struct {
	Status     model.CiFixStatus
	DetectedAt *time.Time
	StartedAt  *time.Time
	DoneAt     *time.Time
	TStart     *float64 // seconds from detection to fix start
	TFix       *float64 // seconds from detection to fix completion
}

// Reduce folds an event log into tracker state.
//
// The expected sequence is DETECTED, FIX_STARTED, FIX_DONE with
// non-decreasing timestamps. A duplicate, a missing predecessor, or a
// timestamp regression before DONE poisons the derivation: status becomes
// UNKNOWN and both SLO timers stay nil rather than ever reporting a negative
// duration. DONE is terminal: events
// arriving after it stay in the log but never alter the derived state.
func Reduce(events []model.CiFixEvent) Derived {
	d := Derived{Status: model.CiFixUnknown}
	if len(events) == 0 {
		return d
	}

	status := model.CiFixStatus("")
	valid := true
	var prev time.Time

	for _, ev := range events {
		if status == model.CiFixDone {
			break
		}
		if !valid {
			break
		}
		if !prev.IsZero() && ev.Timestamp.Before(prev) {
			valid = false
			break
		}
		prev = ev.Timestamp

		switch ev.EventType {
		case model.CiFixEventDetected:
			if status != "" {
				valid = false
				break
			}
			status = model.CiFixDetected
			ts := ev.Timestamp
			d.DetectedAt = &ts
		case model.CiFixEventFixStarted:
			if status != model.CiFixDetected {
				valid = false
				break
			}
			status = model.CiFixInProgress
			ts := ev.Timestamp
			d.StartedAt = &ts
		case model.CiFixEventFixDone:
			if status != model.CiFixInProgress {
				valid = false
				break
			}
			status = model.CiFixDone
			ts := ev.Timestamp
			d.DoneAt = &ts
		default:
			valid = false
		}
	}

	if !valid || status == "" {
		return Derived{Status: model.CiFixUnknown}
	}

	d.Status = status
	if d.DetectedAt != nil && d.StartedAt != nil {
		t := d.StartedAt.Sub(*d.DetectedAt).Seconds()
		d.TStart = &t
	}
	if d.DetectedAt != nil && d.DoneAt != nil {
		t := d.DoneAt.Sub(*d.DetectedAt).Seconds()
		d.TFix = &t
	}
	return d
}
