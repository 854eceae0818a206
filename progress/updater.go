package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lexoliu/progressor/broadcast"
)

// Updater is the producer side of a task's progress.
//
// Track hands one Updater to the work function. Every mutation publishes a
// new snapshot to all current subscribers and never blocks; slow
// subscribers lose intermediate snapshots instead. Once a terminal state
// has been published, further calls are no-ops.
//
// Updater is safe for concurrent use, so the work function may pass it to
// goroutines it starts.
type Updater struct {
	mu     sync.Mutex
	state  Update
	ch     *broadcast.Channel[Update]
	cancel context.CancelFunc
	logger *slog.Logger
}

func newUpdater(total uint64, ch *broadcast.Channel[Update], logger *slog.Logger) *Updater {
	return &Updater{
		state:  NewUpdate(total),
		ch:     ch,
		logger: logger,
	}
}

// Update sets the counter, clears the message and publishes.
// Reaching the total completes the task.
func (u *Updater) Update(current uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.setLocked(current, "", false)
}

// UpdateWithMessage sets the counter and message and publishes.
// Reaching the total completes the task.
func (u *Updater) UpdateWithMessage(current uint64, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.setLocked(current, message, true)
}

func (u *Updater) setLocked(current uint64, message string, hasMessage bool) {
	if u.state.IsTerminal() {
		u.logger.Debug("ignoring update after terminal state", "current", current, "state", u.state.State().String())
		return
	}

	next := u.state.WithCurrent(current).WithoutMessage()
	if hasMessage {
		next = next.WithMessage(message)
	}
	if current >= next.Total() {
		next = next.WithState(Completed)
	} else {
		next = next.WithState(Working)
	}
	u.publishLocked(next)
}

// Pause marks the task as paused and publishes. The counter is unchanged.
func (u *Updater) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.IsTerminal() {
		return
	}
	u.publishLocked(u.state.WithState(Paused))
}

// Cancel marks the task as cancelled, publishes the final snapshot and
// cancels the context passed to the work function. The work function is
// not interrupted; it should watch its context if it wants to stop early.
func (u *Updater) Cancel() {
	if !u.finish(Cancelled) {
		return
	}
	u.mu.Lock()
	cancel := u.cancel
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the most recently published state.
func (u *Updater) Snapshot() Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Total returns the task's target value.
func (u *Updater) Total() uint64 {
	return u.Snapshot().Total()
}

// finish publishes a terminal update unless one was already published.
// Completed snapshots are forced to current == total with no message.
func (u *Updater) finish(state State) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.IsTerminal() {
		return false
	}

	next := u.state.WithState(state)
	if state == Completed {
		next = next.WithCurrent(next.Total()).WithoutMessage()
	}
	u.publishLocked(next)
	return true
}

func (u *Updater) bindCancel(cancel context.CancelFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cancel = cancel
}

func (u *Updater) publishLocked(next Update) {
	u.state = next
	if next.IsTerminal() {
		u.ch.Close(next)
		u.logger.Debug("progress finished", "update", next)
		return
	}
	u.ch.Publish(next)
}
