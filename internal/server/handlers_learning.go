package server

import (
	"net/http"

	"github.com/ashita-ai/kaizen/internal/model"
)

// HandleRecordSignal handles POST /learning/signals. The client supplies the
// run and the chosen action; the recommendation being reconciled against is
// read from the run's stored summary card, never from the request.
func (h *Handlers) HandleRecordSignal(w http.ResponseWriter, r *http.Request) {
	var req model.RecordSignalRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	sig, err := h.learningSvc.RecordSignal(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sig)
}

// HandleLearningStats handles GET /learning/stats.
func (h *Handlers) HandleLearningStats(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("since")
	if window == "" {
		window = "24h"
	}
	if window != "24h" && window != "7d" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "since must be 24h or 7d")
		return
	}

	stats, err := h.learningSvc.ComputeStats(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
