package tracing

import (
	"context"

	"github.com/lexoliu/progressor/progress"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer returns a callback for progress.Observe that records the task as
// a span named name, started as a child of any span in ctx. The span starts
// at the first update and ends at the terminal one.
//
// The callback must not be called concurrently.
func Observer(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) func(progress.Update) {
	var (
		span        trace.Span
		lastState   progress.State
		lastMessage string
	)

	return func(u progress.Update) {
		if span == nil {
			_, span = tracer.Start(ctx, name, trace.WithAttributes(attrs...))
			span.SetAttributes(attribute.Int64("progress.total", int64(u.Total())))
			lastState = u.State()
			span.AddEvent("progress."+u.State().String(), trace.WithAttributes(updateAttributes(u)...))
		} else if u.State() != lastState {
			lastState = u.State()
			span.AddEvent("progress."+u.State().String(), trace.WithAttributes(updateAttributes(u)...))
		} else if msg, ok := u.Message(); ok && msg != lastMessage {
			span.AddEvent("progress.message", trace.WithAttributes(updateAttributes(u)...))
		}
		if msg, ok := u.Message(); ok {
			lastMessage = msg
		}

		if !u.IsTerminal() {
			return
		}
		span.SetAttributes(
			attribute.Int64("progress.current", int64(u.Current())),
			attribute.String("progress.state", u.State().String()),
		)
		if u.IsCompleted() {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, "cancelled")
		}
		span.End()
	}
}

func updateAttributes(u progress.Update) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("progress.current", int64(u.Current())),
		attribute.Float64("progress.fraction", u.CompletedFraction()),
	}
	if msg, ok := u.Message(); ok {
		attrs = append(attrs, attribute.String("progress.message", msg))
	}
	return attrs
}
