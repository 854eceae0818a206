package metrics

import (
	"fmt"

	"github.com/lexoliu/progressor/progress"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	taskLabel  = "task"
	stateLabel = "state"
)

// Recorder turns task progress updates into metrics.
type Recorder struct {
	current  GaugeVec
	total    GaugeVec
	fraction GaugeVec
	paused   GaugeVec
	updates  CounterVec
	finished CounterVec
}

// NewRecorder creates the progress metrics on reg.
func NewRecorder(reg Registry) (*Recorder, error) {
	var (
		r   Recorder
		err error
	)

	if r.current, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_current",
		Help: "Units of work completed by the task so far.",
	}, []string{taskLabel}); err != nil {
		return nil, fmt.Errorf("creating current gauge: %w", err)
	}
	if r.total, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_total",
		Help: "Total units of work the task expects to do.",
	}, []string{taskLabel}); err != nil {
		return nil, fmt.Errorf("creating total gauge: %w", err)
	}
	if r.fraction, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_completed_fraction",
		Help: "Fraction of the task's work completed, between 0 and 1.",
	}, []string{taskLabel}); err != nil {
		return nil, fmt.Errorf("creating fraction gauge: %w", err)
	}
	if r.paused, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_paused",
		Help: "1 if the task's last update reported it paused, else 0.",
	}, []string{taskLabel}); err != nil {
		return nil, fmt.Errorf("creating paused gauge: %w", err)
	}
	if r.updates, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "task_updates_total",
		Help: "Progress updates observed, by task and state.",
	}, []string{taskLabel, stateLabel}); err != nil {
		return nil, fmt.Errorf("creating updates counter: %w", err)
	}
	if r.finished, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "task_finished_total",
		Help: "Tasks that reached a terminal state, by task and state.",
	}, []string{taskLabel, stateLabel}); err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}

	return &r, nil
}

// Record applies a single update for the named task.
func (r *Recorder) Record(task string, u progress.Update) {
	labels := prometheus.Labels{taskLabel: task}
	r.current.With(labels).Set(float64(u.Current()))
	r.total.With(labels).Set(float64(u.Total()))
	r.fraction.With(labels).Set(u.CompletedFraction())

	paused := 0.0
	if u.State() == progress.Paused {
		paused = 1
	}
	r.paused.With(labels).Set(paused)

	stateLabels := prometheus.Labels{taskLabel: task, stateLabel: u.State().String()}
	r.updates.With(stateLabels).Inc()
	if u.IsTerminal() {
		r.finished.With(stateLabels).Inc()
	}
}

// Observer returns a callback for progress.Observe that records every
// update under the given task name.
func (r *Recorder) Observer(task string) func(progress.Update) {
	return func(u progress.Update) {
		r.Record(task, u)
	}
}
