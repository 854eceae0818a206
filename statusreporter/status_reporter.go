// Package statusreporter keeps the latest progress update of every named
// task so that a server or CLI can show what is running right now.
package statusreporter

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/lexoliu/progressor/progress"
)

// StatusReporter records the last update seen for each task name.
//
// Typical use is to hand a StatusLine to progress.Observe:
//
//	reporter := statusreporter.New(logger)
//	line := reporter.Line("nightly-import")
//	result, err := progress.Observe(ctx, task, line.Set)
//
// All methods are safe for concurrent use.
type StatusReporter struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	statuses map[string]progress.Update
}

// New creates a new StatusReporter. State and message changes are logged at
// info level.
func New(logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		logger:   logger,
		statuses: make(map[string]progress.Update),
	}
}

// SetStatus stores u as the current status of name.
func (r *StatusReporter) SetStatus(name string, u progress.Update) {
	r.mu.Lock()
	prev, seen := r.statuses[name]
	r.statuses[name] = u
	r.mu.Unlock()

	if !seen || changed(prev, u) {
		if msg, ok := u.Message(); ok {
			r.logger.Info(msg, "task", name, "progress", u)
		} else {
			r.logger.Info("task "+u.State().String(), "task", name, "progress", u)
		}
	}
}

// Status returns the current status of name.
func (r *StatusReporter) Status(name string) (progress.Update, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.statuses[name]
	return u, ok
}

// CurrentStatuses returns a copy of all current statuses keyed by task name.
func (r *StatusReporter) CurrentStatuses() map[string]progress.Update {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.statuses)
}

// Active returns the names of tasks whose last update is not terminal, sorted.
func (r *StatusReporter) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, u := range r.statuses {
		if !u.IsTerminal() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Remove forgets name.
func (r *StatusReporter) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, name)
}

// Line returns a StatusLine bound to name.
func (r *StatusReporter) Line(name string) *StatusLine {
	return &StatusLine{name: name, reporter: r}
}

func changed(prev, next progress.Update) bool {
	if prev.State() != next.State() {
		return true
	}
	prevMsg, _ := prev.Message()
	nextMsg, ok := next.Message()
	return ok && nextMsg != prevMsg
}
