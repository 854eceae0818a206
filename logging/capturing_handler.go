package logging

import (
	"context"
	"log/slog"
)

// CapturingHandler records every log record into a LogCollector under a
// fixed key, then hands it to the wrapped handler if that handler is
// enabled for the record's level.
type CapturingHandler struct {
	next      slog.Handler
	collector *LogCollector
	key       string
	attrs     []slog.Attr
	prefix    string
}

// NewCapturingHandler wraps next so that records are also stored in
// collector under key.
func NewCapturingHandler(next slog.Handler, collector *LogCollector, key string) *CapturingHandler {
	return &CapturingHandler{
		next:      next,
		collector: collector,
		key:       key,
	}
}

// Enabled reports true for every level so debug records are captured even
// when the wrapped handler would discard them.
func (h *CapturingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		entry.Attributes[a.Key] = resolveValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[h.prefix+a.Key] = resolveValue(a.Value)
		return true
	})
	h.collector.Add(h.key, entry)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}

	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = merged
	return &clone
}

// WithGroup implements slog.Handler. Captured attributes inside a group are
// flattened into dotted keys.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

// resolveValue converts a slog.Value into something encoding/json can write.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, a := range attrs {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}
