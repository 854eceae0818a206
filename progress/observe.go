package progress

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrCallbackPanicked wraps the value of a panic raised by an Observe
// callback.
var ErrCallbackPanicked = errors.New("progress callback panicked")

// Observe runs task to completion while calling fn for every update on a
// fresh stream. fn runs on a separate goroutine from the caller and must
// be safe to call concurrently with the caller's code; calls to fn are
// never concurrent with each other.
//
// Observe returns once the task's result is available and fn has seen the
// terminal update. The task's error is returned unchanged and a panic in
// the task is re-raised after fn has seen the Cancelled update. If fn
// itself panics, it stops receiving updates, the task still runs to the
// end, and the panic is re-raised on the caller's goroutine.
func Observe[R any](ctx context.Context, task *Task[R], fn func(Update)) (R, error) {
	stream := task.Progress()
	defer stream.Close()

	// The stream always ends once the task is terminal, and Await never
	// returns before that, so the consumer does not need ctx's deadline.
	drainCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrCallbackPanicked, r)
			}
		}()
		for update := range stream.All(drainCtx) {
			fn(update)
		}
		return nil
	})

	result, panicErr, err := awaitCapturingPanic(ctx, task)
	callbackErr := g.Wait()
	if panicErr != nil {
		panic(panicErr)
	}
	if callbackErr != nil {
		panic(callbackErr)
	}
	return result, err
}

// ObserveLocal is like Observe but calls fn only on the caller's goroutine,
// so fn needs no synchronisation. It suits callbacks that touch state owned
// by the caller, such as a terminal renderer.
func ObserveLocal[R any](ctx context.Context, task *Task[R], fn func(Update)) (R, error) {
	stream := task.Progress()
	defer stream.Close()

	task.Start(ctx)

	for {
		update, ok := stream.Next(ctx)
		if !ok {
			break
		}
		fn(update)
	}

	// Either the stream ended or ctx is done. In the latter case Await
	// aborts the task, which publishes the terminal update drained below.
	result, panicErr, err := awaitCapturingPanic(ctx, task)
	for update := range stream.All(context.WithoutCancel(ctx)) {
		fn(update)
	}
	if panicErr != nil {
		panic(panicErr)
	}
	return result, err
}

func awaitCapturingPanic[R any](ctx context.Context, task *Task[R]) (result R, panicErr *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*PanicError)
			if !ok {
				panic(r)
			}
			panicErr = pe
		}
	}()
	result, err = task.Await(ctx)
	return result, nil, err
}
