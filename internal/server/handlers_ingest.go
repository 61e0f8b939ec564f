package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// HandleIngestRuns handles POST /ingest/runs, the report path from the
// execution backend. Items are applied independently and every item's
// outcome is returned: a mixed batch responds 207 with the failing items'
// raw error text, never a single aggregate boolean.
func (h *Handlers) HandleIngestRuns(w http.ResponseWriter, r *http.Request) {
	var req model.IngestBatchRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if len(req.Runs) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "runs array must not be empty")
		return
	}

	result := model.IngestBatchResult{Items: make([]model.IngestItemResult, 0, len(req.Runs))}
	for _, item := range req.Runs {
		if err := h.ingestOne(r, item); err != nil {
			result.Failed++
			result.Items = append(result.Items, model.IngestItemResult{
				RunID: item.RunID, Success: false, Error: err.Error(),
			})
			continue
		}
		result.Accepted++
		result.Items = append(result.Items, model.IngestItemResult{RunID: item.RunID, Success: true})
	}

	if result.Failed == 0 {
		writeJSON(w, r, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMultiStatus)
	_ = json.NewEncoder(w).Encode(struct {
		Data  model.IngestBatchResult `json:"data"`
		Error model.ErrorDetail       `json:"error"`
		Meta  model.ResponseMeta      `json:"meta"`
	}{
		Data: result,
		Error: model.ErrorDetail{
			Code:    model.ErrCodePartialFailure,
			Message: "some items failed; see per-item results",
		},
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

// ingestOne applies a single reported run record. When the record lands a
// run in a terminal state, its summary card is built and attached in the
// same pass; a card already present is fine (a duplicate terminal report
// was rejected as immutable before reaching that point anyway).
func (h *Handlers) ingestOne(r *http.Request, item model.IngestRunRequest) error {
	if err := item.Validate(); err != nil {
		return err
	}

	hashes, err := h.artifacts.HashAll(item.Artifacts)
	if err != nil {
		return err
	}

	run, err := h.db.ApplyRun(r.Context(), item, hashes)
	if err != nil {
		return err
	}

	if run.Status.Terminal() && run.SummaryCard == nil {
		card, err := h.cardBuilder.Build(run)
		if err != nil {
			h.logger.Error("summary card build failed",
				"run_id", run.RunID, "error", err)
			return err
		}
		if err := h.db.AttachSummaryCard(r.Context(), run.RunID, card); err != nil &&
			!errors.Is(err, storage.ErrCardExists) {
			return err
		}
	}
	return nil
}
