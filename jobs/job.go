package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/progress"
)

// ErrStepFailed is returned by a job configured to fail at a given step.
var ErrStepFailed = errors.New("step failed")

// Job is a synthetic workload that works through a fixed number of steps,
// reporting each one to its Updater. Pauses, cancellation and failures can
// be injected at chosen steps.
type Job struct {
	config.JobConfig
}

// Result is what a job returns when its work function exits.
type Result struct {
	// Steps is the number of steps finished.
	Steps uint64 `json:"steps"`
	// Elapsed is how long the work function ran.
	Elapsed time.Duration `json:"elapsed"`
}

// NewJob creates a Job from its configuration.
func NewJob(cfg config.JobConfig) Job {
	return Job{JobConfig: cfg}
}

// Task wraps the job in a progress task. The job's name is used unless
// opts override it.
func (j Job) Task(opts ...progress.Option) *progress.Task[Result] {
	opts = append([]progress.Option{progress.WithName(j.Name)}, opts...)
	return progress.Track(j.Total, j.Work, opts...)
}

// Work runs the job's steps. It matches progress.WorkFunc.
func (j Job) Work(ctx context.Context, u *progress.Updater) (Result, error) {
	start := time.Now()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	var res Result
	for step := uint64(1); step <= j.Total; step++ {
		if err := sleep(ctx, j.StepDelay); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}

		if step == j.FailAt {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("%w at step %d of %s", ErrStepFailed, step, j.Name)
		}

		if j.Message != "" {
			u.UpdateWithMessage(step, j.message(step))
		} else {
			u.Update(step)
		}
		res.Steps = step

		if step == j.CancelAt {
			u.Cancel()
			res.Elapsed = time.Since(start)
			return res, nil
		}

		if step == j.PauseAt && step < j.Total {
			u.Pause()
			if err := sleep(ctx, j.PauseFor); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func (j Job) message(step uint64) string {
	return strings.ReplaceAll(j.Message, "%d", strconv.FormatUint(step, 10))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
