// Package handlers provides HTTP handlers for progressd.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"log/slog"

	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/progress"
	"github.com/lexoliu/progressor/server/cron"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// JobRunner can start runs in the background.
type JobRunner interface {
	Run(jobs []string) error
}

// RunCanceller can cancel an active run.
type RunCanceller interface {
	Cancel(id string) error
}

// RunStatusProvider provides access to active runs.
type RunStatusProvider interface {
	Status() []jobs.RunStatus
}

// HistoryProvider provides access to finished runs and their logs.
type HistoryProvider interface {
	History() []jobs.RunSummary
	Logs(id string) ([]logging.LogEntry, error)
}

// ProgressProvider provides the latest update seen for each job.
type ProgressProvider interface {
	CurrentStatuses() map[string]progress.Update
}

// ScheduleProvider provides the registered cron schedules.
type ScheduleProvider interface {
	Schedules() []cron.Schedule
}

// LevelController reads and changes the log level.
type LevelController interface {
	Level() slog.Level
	SetLevel(level string) error
}
