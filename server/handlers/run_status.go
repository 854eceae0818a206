package handlers

import (
	"net/http"
)

// RunStatusHandler handles requests for the active runs.
type RunStatusHandler struct {
	provider RunStatusProvider
}

// NewRunStatusHandler creates a new RunStatusHandler.
func NewRunStatusHandler(provider RunStatusProvider) *RunStatusHandler {
	return &RunStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler. With an id path value only that run
// is returned.
func (h *RunStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runs := h.provider.Status()

	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusOK, runs)
		return
	}

	for _, run := range runs {
		if run.ID == id {
			writeJSON(w, http.StatusOK, run)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run not active: " + id})
}
