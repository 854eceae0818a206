package statusreporter

import (
	"fmt"

	"github.com/lexoliu/progressor/progress"
)

// StatusLine reports the progress of a single named task to a StatusReporter.
// Its Set method has the signature progress.Observe expects.
type StatusLine struct {
	name     string
	reporter *StatusReporter
}

// Name returns the task name the line is bound to.
func (sl *StatusLine) Name() string {
	return sl.name
}

// Set records u as the task's current status.
func (sl *StatusLine) Set(u progress.Update) {
	sl.reporter.SetStatus(sl.name, u)
}

// String renders the task's current status, e.g. "import: 3/10 working (copying)".
func (sl *StatusLine) String() string {
	u, ok := sl.reporter.Status(sl.name)
	if !ok {
		return fmt.Sprintf("%s: pending", sl.name)
	}
	return fmt.Sprintf("%s: %s", sl.name, u)
}
