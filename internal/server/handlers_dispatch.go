package server

import (
	"net/http"
)

// HandleRerun handles POST /runs/{run_id}/rerun. The response carries the
// minted trace id; the new run resolves asynchronously via GET /runs
// filtered on it.
func (h *Handlers) HandleRerun(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatchSvc.Rerun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, result)
}

// HandleFixTask handles POST /runs/{run_id}/fix-task.
func (h *Handlers) HandleFixTask(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatchSvc.FixTask(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, result)
}
