// Package dispatch creates follow-up runs from a prior run.
//
// A rerun replays the source run's original task; a fix task submits a
// remediation directive derived from the failure instead. Neither touches
// the source run: each submission creates a brand-new run on the backend
// with parent_run_id pointing back, so lineage is a chain of immutable
// records. The service does not deduplicate; every call submits a new task,
// and callers needing idempotency supply their own key upstream.
package dispatch

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ashita-ai/kaizen/internal/backend"
	"github.com/ashita-ai/kaizen/internal/model"
)

// RunGetter is the slice of the storage layer dispatch needs.
type RunGetter interface {
	GetRun(ctx context.Context, runID string) (model.Run, error)
}

// TaskClient is the slice of the backend client dispatch needs.
type TaskClient interface {
	GetTaskPayload(ctx context.Context, runID string) (model.TaskPayload, error)
	SubmitTask(ctx context.Context, req backend.SubmitRequest) (backend.SubmitResponse, error)
}

// ArtifactReader supplies artifact content for fix directives.
type ArtifactReader interface {
	Read(run model.Run, name string) ([]byte, error)
}

// Service dispatches reruns and fix tasks.
type Service struct {
	store     RunGetter
	backend   TaskClient
	artifacts ArtifactReader
	logger    *slog.Logger
}

// New creates a dispatch Service.
func New(store RunGetter, client TaskClient, artifacts ArtifactReader, logger *slog.Logger) *Service {
	return &Service{store: store, backend: client, artifacts: artifacts, logger: logger}
}

// Rerun resubmits the source run's original task under a freshly minted
// trace id. The new run materializes asynchronously; callers resolve it by
// polling runs filtered on the returned trace id. Backend failures are
// returned as-is so the upstream status and body reach the caller verbatim,
// and nothing is created on failure.
func (s *Service) Rerun(ctx context.Context, runID string) (model.DispatchResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return model.DispatchResult{}, err
	}

	payload, err := s.backend.GetTaskPayload(ctx, run.RunID)
	if err != nil {
		return model.DispatchResult{}, err
	}

	traceID := MintTraceID("rerun", run.RunID)
	resp, err := s.backend.SubmitTask(ctx, backend.SubmitRequest{
		TraceID:     traceID,
		ParentRunID: run.RunID,
		Payload:     payload,
	})
	if err != nil {
		return model.DispatchResult{}, err
	}

	s.logger.Info("rerun dispatched",
		"source_run_id", run.RunID, "task_id", resp.TaskID, "trace_id", traceID)
	return model.DispatchResult{
		TaskID:      resp.TaskID,
		TraceID:     traceID,
		ParentRunID: run.RunID,
	}, nil
}

// FixTask submits a remediation task for a failed run. The task content is a
// directive built from the run's error taxonomy and its patch, not a replay
// of the original payload.
func (s *Service) FixTask(ctx context.Context, runID string) (model.DispatchResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return model.DispatchResult{}, err
	}

	payload, err := s.backend.GetTaskPayload(ctx, run.RunID)
	if err != nil {
		return model.DispatchResult{}, err
	}
	payload.Content = s.fixDirective(run)

	traceID := MintTraceID("fix", run.RunID)
	resp, err := s.backend.SubmitTask(ctx, backend.SubmitRequest{
		TraceID:     traceID,
		ParentRunID: run.RunID,
		Payload:     payload,
	})
	if err != nil {
		return model.DispatchResult{}, err
	}

	s.logger.Info("fix task dispatched",
		"source_run_id", run.RunID, "task_id", resp.TaskID, "trace_id", traceID)
	return model.DispatchResult{TaskID: resp.TaskID, TraceID: traceID}, nil
}

// fixDirective composes the remediation instruction from what is known about
// the failure. The patch is included when present and readable; an unreadable
// patch degrades the directive, it does not block dispatch.
func (s *Service) fixDirective(run model.Run) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fix the failure of run %s.\n", run.RunID)
	if run.ErrorStage != nil {
		fmt.Fprintf(&sb, "Failing stage: %s\n", *run.ErrorStage)
	}
	if code := run.ErrorCodeValue(); code != "" {
		fmt.Fprintf(&sb, "Error code: %s\n", code)
	}
	if s.artifacts != nil {
		if _, ok := run.Artifacts["patch.diff"]; ok {
			if patch, err := s.artifacts.Read(run, "patch.diff"); err == nil {
				sb.WriteString("The previous attempt produced this patch, which did not pass:\n")
				sb.Write(patch)
			} else {
				s.logger.Warn("fix directive without patch",
					"run_id", run.RunID, "error", err)
			}
		}
	}
	return sb.String()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// MintTraceID builds a trace id of the shape tr_<kind>_<source>_<8 random
// base36 chars>. The random suffix prevents collisions between repeated
// dispatches of the same source run while keeping lineage readable.
func MintTraceID(kind, sourceRunID string) string {
	suffix := make([]byte, 8)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			panic(fmt.Sprintf("dispatch: crypto/rand failed: %v", err))
		}
		suffix[i] = base36[n.Int64()]
	}
	return fmt.Sprintf("tr_%s_%s_%s", kind, sourceRunID, suffix)
}
