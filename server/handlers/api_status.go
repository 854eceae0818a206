package handlers

import (
	"net/http"
	"time"

	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/progress"
	"github.com/lexoliu/progressor/server/cron"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	// Runs are the active runs with their captured logs.
	Runs []jobs.RunStatus `json:"runs"`
	// Jobs maps each job that has run to its latest update.
	Jobs      map[string]progress.Update `json:"jobs"`
	Schedules []cron.Schedule            `json:"schedules"`
	NextRun   NextRunResponse            `json:"next_run"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	RunStatusProvider
	ProgressProvider
	ScheduleProvider
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := APIStatusResponse{
		Runs:      h.provider.Status(),
		Jobs:      h.provider.CurrentStatuses(),
		Schedules: h.provider.Schedules(),
	}

	for _, s := range resp.Schedules {
		if !resp.NextRun.Scheduled || s.NextRun.Before(*resp.NextRun.NextRun) {
			next := s.NextRun
			resp.NextRun = NextRunResponse{Scheduled: true, NextRun: &next}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
