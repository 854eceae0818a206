package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lexoliu/progressor/jobs"
)

// RunRequest defines the request body for POST /run.
type RunRequest struct {
	Jobs []string `json:"jobs"`
}

// RunHandler handles requests to start jobs.
type RunHandler struct {
	runner JobRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r JobRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	if len(req.Jobs) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "jobs array cannot be empty",
		})
		return
	}

	err := h.runner.Run(req.Jobs)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, jobs.ErrJobRunning):
		writeError(w, http.StatusConflict, err)
	default:
		// Unknown or duplicate job
		writeError(w, http.StatusBadRequest, err)
	}
}

// CancelHandler handles requests to cancel an active run.
type CancelHandler struct {
	canceller RunCanceller
}

// NewCancelHandler creates a new CancelHandler.
func NewCancelHandler(c RunCanceller) *CancelHandler {
	return &CancelHandler{
		canceller: c,
	}
}

// ServeHTTP implements http.Handler. The run ID is the id path value.
func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing run id"})
		return
	}

	if err := h.canceller.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
