package cifix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaizen/internal/model"
)

func event(t model.CiFixEventType, ts time.Time) model.CiFixEvent {
	return model.CiFixEvent{EventType: t, Timestamp: ts}
}

func TestReduceHappyPath(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixStarted, base.Add(90*time.Second)),
		event(model.CiFixEventFixDone, base.Add(10*time.Minute)),
	})

	assert.Equal(t, model.CiFixDone, d.Status)
	require.NotNil(t, d.TStart)
	require.NotNil(t, d.TFix)
	assert.Equal(t, 90.0, *d.TStart)
	assert.Equal(t, 600.0, *d.TFix)
	assert.GreaterOrEqual(t, *d.TFix, *d.TStart)
	require.NotNil(t, d.DetectedAt)
	assert.Equal(t, base, *d.DetectedAt)
}

func TestReducePartialProgress(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	d := Reduce([]model.CiFixEvent{event(model.CiFixEventDetected, base)})
	assert.Equal(t, model.CiFixDetected, d.Status)
	assert.Nil(t, d.TStart)
	assert.Nil(t, d.TFix)

	d = Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixStarted, base.Add(time.Minute)),
	})
	assert.Equal(t, model.CiFixInProgress, d.Status)
	require.NotNil(t, d.TStart)
	assert.Equal(t, 60.0, *d.TStart)
	assert.Nil(t, d.TFix)
}

func TestReduceOutOfOrderIsUnknown(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// FIX_STARTED before any DETECTED.
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventFixStarted, base),
		event(model.CiFixEventDetected, base.Add(time.Minute)),
	})
	assert.Equal(t, model.CiFixUnknown, d.Status)
	assert.Nil(t, d.TStart)
	assert.Nil(t, d.TFix)

	// FIX_DONE with no FIX_STARTED.
	d = Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixDone, base.Add(time.Minute)),
	})
	assert.Equal(t, model.CiFixUnknown, d.Status)
}

func TestReduceDuplicateIsUnknown(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventDetected, base.Add(time.Second)),
	})
	assert.Equal(t, model.CiFixUnknown, d.Status)
}

func TestReduceTimestampRegressionIsUnknown(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Ordering is right but the clock runs backwards; a negative duration
	// must never be reported.
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixStarted, base.Add(-time.Minute)),
	})
	assert.Equal(t, model.CiFixUnknown, d.Status)
	assert.Nil(t, d.TStart)
}

func TestReduceDoneIsTerminal(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Events after DONE stay in the log but never alter the derived state.
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixStarted, base.Add(time.Minute)),
		event(model.CiFixEventFixDone, base.Add(2*time.Minute)),
		event(model.CiFixEventDetected, base.Add(3*time.Minute)),
	})
	assert.Equal(t, model.CiFixDone, d.Status)
	require.NotNil(t, d.TFix)
	assert.Equal(t, 120.0, *d.TFix)
}

func TestReduceEmpty(t *testing.T) {
	d := Reduce(nil)
	assert.Equal(t, model.CiFixUnknown, d.Status)
}

func TestReduceEqualTimestampsAllowed(t *testing.T) {
	// Non-decreasing, not strictly increasing: same-second events are fine.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := Reduce([]model.CiFixEvent{
		event(model.CiFixEventDetected, base),
		event(model.CiFixEventFixStarted, base),
	})
	assert.Equal(t, model.CiFixInProgress, d.Status)
	require.NotNil(t, d.TStart)
	assert.Equal(t, 0.0, *d.TStart)
}
