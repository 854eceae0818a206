package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lexoliu/progressor/jobs"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler. The optional job query parameter
// filters by job name and limit caps the number of runs returned.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()

	if job := r.URL.Query().Get("job"); job != "" {
		filtered := make([]jobs.RunSummary, 0, len(history))
		for _, run := range history {
			if run.Job == job {
				filtered = append(filtered, run)
			}
		}
		history = filtered
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit: " + s})
			return
		}
		history = history[:min(limit, len(history))]
	}

	writeJSON(w, http.StatusOK, history)
}

// HistoryLogsHandler handles requests for logs of a specific run.
type HistoryLogsHandler struct {
	provider HistoryProvider
}

// NewHistoryLogsHandler creates a new HistoryLogsHandler.
func NewHistoryLogsHandler(provider HistoryProvider) *HistoryLogsHandler {
	return &HistoryLogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing run id"})
		return
	}

	logs, err := h.provider.Logs(id)
	if err != nil {
		if errors.Is(err, jobs.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
