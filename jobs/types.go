package jobs

import (
	"time"

	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/progress"
)

// RunSummary describes a finished run of a job.
type RunSummary struct {
	// ID identifies the run; it is also the progress task ID.
	ID  string `json:"id"`
	Job string `json:"job"`
	// State is the terminal progress state: "completed" or "cancelled".
	State   string `json:"state"`
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
	// Message is the last progress message, if any.
	Message   string     `json:"message,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// Error contains the error returned by the job. Empty on success.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// Succeeded reports whether the run completed without error.
func (s RunSummary) Succeeded() bool {
	return s.State == progress.Completed.String() && s.Error == ""
}

// RunStatus describes a run that is still in progress.
type RunStatus struct {
	ID        string             `json:"id"`
	Job       string             `json:"job"`
	StartedAt time.Time          `json:"started_at"`
	Progress  progress.Update    `json:"progress"`
	Logs      []logging.LogEntry `json:"logs,omitempty"`
}

// runRecord is how a run is kept by a Store.
type runRecord struct {
	RunSummary
	Logs []logging.LogEntry `json:"logs,omitempty"`
}

func newSummary(id, job string, started time.Time, final progress.Update, err error) RunSummary {
	ended := time.Now()
	s := RunSummary{
		ID:        id,
		Job:       job,
		State:     final.State().String(),
		Current:   final.Current(),
		Total:     final.Total(),
		StartedAt: &started,
		EndedAt:   &ended,
	}
	if msg, ok := final.Message(); ok {
		s.Message = msg
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
