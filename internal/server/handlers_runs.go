package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/kaizen/internal/artifacts"
	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// HandleListRuns handles GET /runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filters model.RunFilters
	if s := q.Get("status"); s != "" {
		status := model.RunStatus(s)
		if !model.ValidRunStatus(status) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid status filter")
			return
		}
		filters.Status = &status
	}
	filters.TraceID = q.Get("trace_id")
	filters.Provider = q.Get("provider")
	filters.Model = q.Get("model")
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "since must be RFC3339")
			return
		}
		filters.Since = &since
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.db.ListRuns(r.Context(), filters, q.Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, storage.ErrBadCursor) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetRun handles GET /runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleGetArtifact handles GET /runs/{run_id}/artifacts/{filename}.
// The filename allow-list is checked before any lookup: 400 for a disallowed
// name, 404 only for a valid name the run does not have.
func (h *Handlers) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if err := model.ValidateArtifactName(filename); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	run, err := h.db.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	content, err := h.artifacts.Read(run, filename)
	if err != nil {
		switch {
		case errors.Is(err, artifacts.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
		case errors.Is(err, artifacts.ErrIntegrity):
			h.logger.Error("artifact integrity failure",
				"run_id", run.RunID, "artifact", filename)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError,
				"artifact failed integrity verification")
		default:
			writeDomainError(w, r, h.logger, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// HandleGetTask handles GET /runs/{run_id}/task, proxying the original task
// payload from the execution backend.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if _, err := h.db.GetRun(r.Context(), runID); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	payload, err := h.backend.GetTaskPayload(r.Context(), runID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, payload)
}

// HandleRunStats handles GET /runs/stats.
func (h *Handlers) HandleRunStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "since must be RFC3339")
			return
		}
		since = parsed
	}

	stats, err := h.db.RunStats(r.Context(), since)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
