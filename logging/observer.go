package logging

import (
	"log/slog"

	"github.com/lexoliu/progressor/progress"
)

// observerSteps is how many info-level lines a task logs over its lifetime
// when it reports nothing but plain counts.
const observerSteps = 10

// Observer returns a callback for progress.Observe that writes updates to
// logger. Every update is logged at debug level. State changes, new
// messages, and each tenth of the total are logged at info, and the
// terminal update is logged at info for Completed and warn for Cancelled.
//
// The returned callback keeps state between calls and must not be called
// concurrently. progress.Observe and progress.ObserveLocal never do.
func Observer(logger *slog.Logger) func(progress.Update) {
	var (
		seen        bool
		lastState   progress.State
		lastMessage string
		lastStep    uint64
	)

	return func(u progress.Update) {
		msg, hasMsg := u.Message()
		step := uint64(u.CompletedFraction() * observerSteps)

		switch {
		case u.IsCancelled():
			logger.Warn("task cancelled", "progress", u)
		case u.IsCompleted():
			logger.Info("task completed", "progress", u)
		case !seen || u.State() != lastState:
			logger.Info("task "+u.State().String(), "progress", u)
		case hasMsg && msg != lastMessage:
			logger.Info(msg, "progress", u)
		case step > lastStep:
			logger.Info("task progress", "progress", u)
		default:
			logger.Debug("task progress", "progress", u)
		}

		seen = true
		lastState = u.State()
		lastStep = step
		if hasMsg {
			lastMessage = msg
		}
	}
}
