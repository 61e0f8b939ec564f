package server

import (
	"net/http"
	"strconv"

	"github.com/ashita-ai/kaizen/internal/model"
)

// HandleCiFixEvent handles POST /ci-fix/events. Events are accepted
// unconditionally, whatever their ordering; violations show up as the
// derived UNKNOWN status, never as a rejected request.
func (h *Handlers) HandleCiFixEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CiFixEventRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	run, err := h.db.AppendCiFixEvent(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListCiFixRuns handles GET /ci-fix/runs.
func (h *Handlers) HandleListCiFixRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *model.CiFixStatus
	if s := q.Get("status"); s != "" {
		st := model.CiFixStatus(s)
		if !model.ValidCiFixStatus(st) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid status filter")
			return
		}
		status = &st
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

	list, err := h.db.ListCiFixRuns(r.Context(), status, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetCiFixRun handles GET /ci-fix/runs/{run_id}.
func (h *Handlers) HandleGetCiFixRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetCiFixRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}
