package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaizen/internal/backend"
	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/storage"
	"github.com/ashita-ai/kaizen/internal/testutil"
)

type fakeStore struct {
	runs map[string]model.Run
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (model.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	return run, nil
}

type fakeBackend struct {
	payload    model.TaskPayload
	payloadErr error
	submitErr  error

	submitted []backend.SubmitRequest
}

func (f *fakeBackend) GetTaskPayload(_ context.Context, runID string) (model.TaskPayload, error) {
	if f.payloadErr != nil {
		return model.TaskPayload{}, f.payloadErr
	}
	return f.payload, nil
}

func (f *fakeBackend) SubmitTask(_ context.Context, req backend.SubmitRequest) (backend.SubmitResponse, error) {
	if f.submitErr != nil {
		return backend.SubmitResponse{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return backend.SubmitResponse{TaskID: fmt.Sprintf("task_%d", len(f.submitted))}, nil
}

type fakeArtifacts struct {
	content map[string][]byte
	err     error
}

func (f *fakeArtifacts) Read(run model.Run, name string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.content[name], nil
}

func failedRun(runID string) model.Run {
	stage := "tests"
	code := "ASSERTION"
	return model.Run{
		RunID:      runID,
		Status:     model.RunStatusFailed,
		ErrorStage: &stage,
		ErrorCode:  &code,
		Artifacts:  map[string]string{"patch.diff": runID + "/patch.diff"},
	}
}

func TestRerun(t *testing.T) {
	store := &fakeStore{runs: map[string]model.Run{"run_1": failedRun("run_1")}}
	be := &fakeBackend{payload: model.TaskPayload{
		UserID: "u1", Target: "repo", Content: "original", ProjectRoot: "/src",
	}}
	svc := New(store, be, nil, testutil.TestLogger())

	result, err := svc.Rerun(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, "task_1", result.TaskID)
	assert.Equal(t, "run_1", result.ParentRunID)
	assert.Regexp(t, regexp.MustCompile(`^tr_rerun_run_1_[0-9a-z]{8}$`), result.TraceID)

	require.Len(t, be.submitted, 1)
	assert.Equal(t, "run_1", be.submitted[0].ParentRunID)
	assert.Equal(t, "original", be.submitted[0].Payload.Content)
}

func TestRerunTraceIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := MintTraceID("rerun", "run_1")
		assert.False(t, seen[id], "trace id %s repeated", id)
		seen[id] = true
	}
}

func TestRerunUnknownRun(t *testing.T) {
	svc := New(&fakeStore{runs: map[string]model.Run{}}, &fakeBackend{}, nil, testutil.TestLogger())
	_, err := svc.Rerun(context.Background(), "run_missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRerunUpstreamFailureCreatesNothing(t *testing.T) {
	store := &fakeStore{runs: map[string]model.Run{"run_1": failedRun("run_1")}}
	be := &fakeBackend{payloadErr: &backend.UpstreamError{
		StatusCode: http.StatusServiceUnavailable,
		Body:       "backend draining",
	}}
	svc := New(store, be, nil, testutil.TestLogger())

	_, err := svc.Rerun(context.Background(), "run_1")

	var upstream *backend.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Equal(t, "backend draining", upstream.Body)
	assert.Empty(t, be.submitted, "no task may be created when the payload fetch fails")
}

func TestFixTaskBuildsDirective(t *testing.T) {
	store := &fakeStore{runs: map[string]model.Run{"run_9": failedRun("run_9")}}
	be := &fakeBackend{payload: model.TaskPayload{UserID: "u1", Target: "repo", Content: "original"}}
	arts := &fakeArtifacts{content: map[string][]byte{"patch.diff": []byte("--- a\n+++ b\n")}}
	svc := New(store, be, arts, testutil.TestLogger())

	result, err := svc.FixTask(context.Background(), "run_9")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^tr_fix_run_9_[0-9a-z]{8}$`), result.TraceID)
	assert.Empty(t, result.ParentRunID)

	require.Len(t, be.submitted, 1)
	content := be.submitted[0].Payload.Content
	assert.NotEqual(t, "original", content, "fix task is a directive, not a replay")
	assert.Contains(t, content, "Failing stage: tests")
	assert.Contains(t, content, "Error code: ASSERTION")
	assert.Contains(t, content, "+++ b")
	assert.Equal(t, "run_9", be.submitted[0].ParentRunID)
}

func TestFixTaskUnreadablePatchStillDispatches(t *testing.T) {
	store := &fakeStore{runs: map[string]model.Run{"run_9": failedRun("run_9")}}
	be := &fakeBackend{payload: model.TaskPayload{Content: "original"}}
	arts := &fakeArtifacts{err: fmt.Errorf("volume offline")}
	svc := New(store, be, arts, testutil.TestLogger())

	_, err := svc.FixTask(context.Background(), "run_9")
	require.NoError(t, err)
	require.Len(t, be.submitted, 1)
	assert.NotContains(t, be.submitted[0].Payload.Content, "+++")
}

func TestDispatchNeverDeduplicates(t *testing.T) {
	store := &fakeStore{runs: map[string]model.Run{"run_1": failedRun("run_1")}}
	be := &fakeBackend{payload: model.TaskPayload{Content: "original"}}
	svc := New(store, be, nil, testutil.TestLogger())

	r1, err := svc.Rerun(context.Background(), "run_1")
	require.NoError(t, err)
	r2, err := svc.Rerun(context.Background(), "run_1")
	require.NoError(t, err)

	assert.NotEqual(t, r1.TaskID, r2.TaskID)
	assert.NotEqual(t, r1.TraceID, r2.TraceID)
	assert.Len(t, be.submitted, 2)
}
