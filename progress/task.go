package progress

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lexoliu/progressor/broadcast"
)

// WorkFunc is the unit of work wrapped by a Task. It reports progress
// through u and should return when ctx is done if it wants to honour
// cancellation.
type WorkFunc[R any] func(ctx context.Context, u *Updater) (R, error)

// TaskState is the execution state of a Task.
type TaskState int

const (
	// TaskCreated indicates the task has not been started
	TaskCreated TaskState = iota

	// TaskRunning indicates the work function is executing
	TaskRunning

	// TaskCompleted indicates the work function returned normally
	TaskCompleted

	// TaskCancelled indicates the task was cancelled, aborted, failed or panicked
	TaskCancelled
)

// String returns a human-readable representation of the TaskState
func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PanicError is raised from Await when the work function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Task couples a unit of work with the progress it reports.
//
// LIFECYCLE:
//   - Track returns the task in the Created state; nothing runs yet
//   - Start or Await moves it to Running and runs the work on its own goroutine
//   - When the work returns the task becomes Completed (nil error) or
//     Cancelled (error, panic, Updater.Cancel, or an aborted Await)
//
// Whatever the exit path, every stream opened on the task receives exactly
// one terminal update and then ends.
type Task[R any] struct {
	id      string
	name    string
	fn      WorkFunc[R]
	ch      *broadcast.Channel[Update]
	updater *Updater
	opts    options

	startOnce sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}

	// Written by the run goroutine before done is closed.
	result   R
	err      error
	panicErr *PanicError
}

// Track wraps fn in a Task of the given total. fn is not called until the
// task is started.
//
//	task := progress.Track(100, func(ctx context.Context, u *progress.Updater) (string, error) {
//		for i := uint64(0); i <= 100; i++ {
//			u.Update(i)
//		}
//		return "done", nil
//	})
//
//	stream := task.Progress()
//	go func() {
//		for update := range stream.All(ctx) {
//			fmt.Println(update)
//		}
//	}()
//	result, err := task.Await(ctx)
func Track[R any](total uint64, fn WorkFunc[R], opts ...Option) *Task[R] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	logger := o.logger.With("component", "progress", "task_id", o.id)
	if o.name != "" {
		logger = logger.With("task", o.name)
	}
	o.logger = logger

	ch := broadcast.New[Update](o.capacity)
	return &Task[R]{
		id:      o.id,
		name:    o.name,
		fn:      fn,
		ch:      ch,
		updater: newUpdater(total, ch, logger),
		opts:    o,
		done:    make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task[R]) ID() string { return t.id }

// Name returns the task name given with WithName.
func (t *Task[R]) Name() string { return t.name }

// Total returns the task's target value.
func (t *Task[R]) Total() uint64 { return t.updater.Total() }

// Progress opens a new Stream on this task.
func (t *Task[R]) Progress() *Stream {
	return t.Source().Progress()
}

// Source returns a handle that opens streams on this task. It can be
// copied and handed to observers that should not hold the task itself.
func (t *Task[R]) Source() Source {
	return Source{ch: t.ch}
}

// Snapshot returns the most recently published update.
func (t *Task[R]) Snapshot() Update {
	return t.updater.Snapshot()
}

// Done is closed when the work function has returned.
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// State returns the current execution state.
func (t *Task[R]) State() TaskState {
	if !t.started.Load() {
		return TaskCreated
	}

	last := t.updater.Snapshot().State()
	select {
	case <-t.done:
		if last == Completed {
			return TaskCompleted
		}
		return TaskCancelled
	default:
		if last == Cancelled {
			return TaskCancelled
		}
		return TaskRunning
	}
}

// Start runs the work function on a new goroutine. The work receives a
// context derived from ctx; if that context ends before the work returns,
// observers immediately see a Cancelled update. Calling Start again has no
// effect.
func (t *Task[R]) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		t.updater.bindCancel(cancel)

		// Runs whenever the work context ends. After a normal return the
		// terminal update already exists and this is a no-op.
		context.AfterFunc(runCtx, func() {
			if t.updater.finish(Cancelled) {
				t.opts.logger.Info("task cancelled", "reason", context.Cause(runCtx))
			}
		})

		t.started.Store(true)
		t.opts.logger.Debug("task started", "total", t.updater.Total())
		go t.run(runCtx)
	})
}

func (t *Task[R]) run(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			t.panicErr = &PanicError{Value: r, Stack: debug.Stack()}
			t.updater.finish(Cancelled)
			t.opts.logger.Error("task panicked", "panic", r)
			return
		}
		if t.err != nil {
			t.updater.finish(Cancelled)
			t.opts.logger.Warn("task failed", "error", t.err)
			return
		}
		// t.cancel has not run yet, so a done ctx means the driver or
		// Updater.Cancel ended the task, whatever the work returned.
		if ctx.Err() != nil {
			if t.updater.finish(Cancelled) {
				t.opts.logger.Info("task cancelled", "reason", context.Cause(ctx))
			}
			return
		}
		t.updater.finish(Completed)
		t.opts.logger.Debug("task completed", "final", t.updater.Snapshot())
	}()

	t.result, t.err = t.fn(ctx, t.updater)
}

// Await starts the task if needed and waits for its result.
//
// Once ctx has ended the task is aborted: observers receive a Cancelled
// update, the work context is cancelled and ctx.Err() is returned, even
// if the work returned in the meantime. If the work function panicked,
// Await panics with a *PanicError.
func (t *Task[R]) Await(ctx context.Context) (R, error) {
	t.Start(ctx)

	select {
	case <-t.done:
	case <-ctx.Done():
	}

	if err := ctx.Err(); err != nil {
		t.abort()
		var zero R
		return zero, err
	}
	return t.outcome()
}

// Cancel cancels the task as if Updater.Cancel had been called.
func (t *Task[R]) Cancel() {
	t.updater.Cancel()
}

func (t *Task[R]) abort() {
	if t.updater.finish(Cancelled) {
		t.opts.logger.Info("task aborted while awaiting")
	}
	t.cancel()
}

func (t *Task[R]) outcome() (R, error) {
	if t.panicErr != nil {
		panic(t.panicErr)
	}
	return t.result, t.err
}
