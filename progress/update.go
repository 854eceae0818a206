package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// State is the lifecycle tag carried by every Update.
type State int

const (
	// Working indicates the task is making progress.
	Working State = iota

	// Paused indicates the task has temporarily stopped reporting progress.
	Paused

	// Completed indicates the task finished. It is terminal.
	Completed

	// Cancelled indicates the task was cancelled, aborted or failed. It is terminal.
	Cancelled
)

// String returns a human-readable representation of the State
func (s State) String() string {
	switch s {
	case Working:
		return "working"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Completed and Cancelled.
func (s State) IsTerminal() bool {
	return s == Completed || s == Cancelled
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Update is an immutable snapshot of a task's progress.
//
// A task with a zero total is treated as trivially complete: its
// CompletedFraction is 1.0 and its Remaining is 0.
type Update struct {
	current    uint64
	total      uint64
	state      State
	message    string
	hasMessage bool
}

// NewUpdate returns the initial snapshot for a task of the given total.
func NewUpdate(total uint64) Update {
	return Update{total: total, state: Working}
}

// Current returns the progress counter.
func (u Update) Current() uint64 { return u.current }

// Total returns the target value.
func (u Update) Total() uint64 { return u.total }

// State returns the lifecycle state.
func (u Update) State() State { return u.state }

// Message returns the message attached to this snapshot, if any.
func (u Update) Message() (string, bool) { return u.message, u.hasMessage }

// CompletedFraction returns current/total clamped to [0.0, 1.0].
func (u Update) CompletedFraction() float64 {
	if u.total == 0 {
		return 1.0
	}
	if u.current >= u.total {
		return 1.0
	}
	return float64(u.current) / float64(u.total)
}

// Remaining returns total-current, never below zero.
func (u Update) Remaining() uint64 {
	if u.current >= u.total {
		return 0
	}
	return u.total - u.current
}

// IsCompleted reports whether the state is Completed.
func (u Update) IsCompleted() bool { return u.state == Completed }

// IsCancelled reports whether the state is Cancelled.
func (u Update) IsCancelled() bool { return u.state == Cancelled }

// IsTerminal reports whether no further updates will follow this one.
func (u Update) IsTerminal() bool { return u.state.IsTerminal() }

// WithCurrent returns a copy with the counter set to current.
func (u Update) WithCurrent(current uint64) Update {
	u.current = current
	return u
}

// WithMessage returns a copy carrying message.
func (u Update) WithMessage(message string) Update {
	u.message = message
	u.hasMessage = true
	return u
}

// WithoutMessage returns a copy with the message cleared.
func (u Update) WithoutMessage() Update {
	u.message = ""
	u.hasMessage = false
	return u
}

// WithState returns a copy in the given state.
func (u Update) WithState(state State) Update {
	u.state = state
	return u
}

// String formats the update for logs, e.g. "50/100 working (halfway)".
func (u Update) String() string {
	if u.hasMessage {
		return fmt.Sprintf("%d/%d %s (%s)", u.current, u.total, u.state, u.message)
	}
	return fmt.Sprintf("%d/%d %s", u.current, u.total, u.state)
}

// LogValue implements slog.LogValuer.
func (u Update) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("current", u.current),
		slog.Uint64("total", u.total),
		slog.String("state", u.state.String()),
		slog.Float64("fraction", u.CompletedFraction()),
	}
	if u.hasMessage {
		attrs = append(attrs, slog.String("message", u.message))
	}
	return slog.GroupValue(attrs...)
}

type updateJSON struct {
	Current  uint64  `json:"current"`
	Total    uint64  `json:"total"`
	State    State   `json:"state"`
	Fraction float64 `json:"fraction"`
	Message  *string `json:"message,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (u Update) MarshalJSON() ([]byte, error) {
	out := updateJSON{
		Current:  u.current,
		Total:    u.total,
		State:    u.state,
		Fraction: u.CompletedFraction(),
	}
	if u.hasMessage {
		msg := u.message
		out.Message = &msg
	}
	return json.Marshal(out)
}
