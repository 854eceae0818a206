package progress

import (
	"log/slog"

	"github.com/lexoliu/progressor/broadcast"
)

// Option configures a Task created by Track.
type Option func(*options)

type options struct {
	id       string
	name     string
	capacity int
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		capacity: broadcast.DefaultCapacity,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for task lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCapacity sets how many updates each stream buffers before it starts
// dropping the oldest. The default is broadcast.DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithID overrides the generated task ID.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithName sets a human-readable task name used in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
