package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lexoliu/progressor/config"
)

// Schedule describes one registered trigger.
type Schedule struct {
	Jobs     []string  `json:"jobs"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
}

// Manager runs a set of triggers with different jobs and schedules.
type Manager struct {
	triggers []*Trigger
	logger   *slog.Logger
}

// NewManager creates a Manager with one Trigger per entry of triggers.
// Job names are not checked here; config.Config.Validate and
// ParseTriggerSpecs do that.
func NewManager(triggers []config.CronTrigger, runnable Runnable, logger *slog.Logger) (*Manager, error) {
	logger = logger.With("component", "cron")

	m := &Manager{
		triggers: make([]*Trigger, 0, len(triggers)),
		logger:   logger,
	}
	for _, tc := range triggers {
		trigger, err := NewTrigger(tc.Schedule, tc.Jobs, runnable, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(tc.Jobs, jobListSeparator), tc.Schedule, err)
		}
		m.triggers = append(m.triggers, trigger)
	}

	logger.Info("cron trigger manager created", "trigger_count", len(m.triggers))
	for i, trigger := range m.triggers {
		logger.Info("trigger registered",
			"index", i,
			"jobs", trigger.jobs,
			"schedule", trigger.spec,
			"next_run", trigger.NextRun(),
		)
	}
	return m, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *Manager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

// Schedules describes every trigger in registration order.
func (m *Manager) Schedules() []Schedule {
	schedules := make([]Schedule, len(m.triggers))
	for i, trigger := range m.triggers {
		schedules[i] = Schedule{
			Jobs:     trigger.Jobs(),
			Schedule: trigger.spec,
			NextRun:  trigger.NextRun(),
		}
	}
	return schedules
}
