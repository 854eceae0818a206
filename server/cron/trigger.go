// Package cron starts jobs according to cron schedules.
//
// A Trigger wraps a Runnable and calls it with a fixed list of jobs each
// time its schedule fires. It is started once and runs until its context
// is cancelled.
//
// Example usage:
//
//	trigger, err := cron.NewTrigger("0 2 * * *", []string{"reindex"}, runner, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runnable is implemented by anything that can be triggered by the cron scheduler.
type Runnable interface {
	Run(jobs []string) error
}

// RunFunc adapts a function to Runnable.
type RunFunc func(jobs []string) error

// Run calls f(jobs).
func (f RunFunc) Run(jobs []string) error {
	return f(jobs)
}

// ParseSchedule parses a five field cron expression or a descriptor such
// as @daily or @every 1h. Returns ErrInvalidCronSpec on failure.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return schedule, nil
}

// Trigger runs a list of jobs according to a cron schedule.
type Trigger struct {
	spec     string
	jobs     []string
	schedule cron.Schedule
	runnable Runnable
	logger   *slog.Logger
}

// NewTrigger creates a Trigger that passes jobs to runnable whenever spec
// fires. Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewTrigger(spec string, jobs []string, runnable Runnable, logger *slog.Logger) (*Trigger, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	return &Trigger{
		spec:     spec,
		jobs:     slices.Clone(jobs),
		schedule: schedule,
		runnable: runnable,
		logger:   logger.With("schedule", spec),
	}, nil
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

// Spec returns the schedule the trigger was created with.
func (t *Trigger) Spec() string {
	return t.spec
}

// Jobs returns the jobs the trigger starts.
func (t *Trigger) Jobs() []string {
	return slices.Clone(t.jobs)
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		nextRun := t.schedule.Next(time.Now())
		wait := time.Until(nextRun)

		t.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			t.fire()
		}
	}
}

func (t *Trigger) fire() {
	t.logger.Info("starting scheduled run", "jobs", t.jobs)

	if err := t.runnable.Run(t.jobs); err != nil {
		t.logger.Warn("scheduled run not started", "jobs", t.jobs, "error", err)
	}
}
