package progress

import (
	"context"
	"iter"

	"github.com/lexoliu/progressor/broadcast"
)

// Observable is implemented by anything that can open a progress Stream.
type Observable interface {
	// Progress opens a new subscription. Each call returns an independent
	// Stream that starts at the moment of the call.
	Progress() *Stream
}

// Source opens streams on a task's progress without holding the task.
// The zero value is not usable; obtain one from Task.Source.
type Source struct {
	ch *broadcast.Channel[Update]
}

// Progress opens a new Stream.
func (s Source) Progress() *Stream {
	return &Stream{sub: s.ch.Subscribe()}
}

// Last returns the most recent Update published to this source, if any.
func (s Source) Last() (Update, bool) {
	return s.ch.Last()
}

// Stream is one observer's lazy, finite sequence of updates.
//
// A Stream yields updates in publish order and ends after the terminal
// update. If the consumer falls behind, intermediate updates are dropped
// but the terminal update is always delivered. A Stream is meant to be
// consumed by a single goroutine.
type Stream struct {
	sub *broadcast.Subscription[Update]
}

// Next blocks until the next update is available. It returns false once the
// terminal update has been consumed or ctx is done.
func (s *Stream) Next(ctx context.Context) (Update, bool) {
	return s.sub.Next(ctx)
}

// All returns an iterator over the remaining updates.
//
//	for u := range task.Progress().All(ctx) {
//		fmt.Printf("%.0f%%\n", u.CompletedFraction()*100)
//	}
func (s *Stream) All(ctx context.Context) iter.Seq[Update] {
	return s.sub.All(ctx)
}

// Dropped returns how many updates this stream missed by lagging.
func (s *Stream) Dropped() uint64 {
	return s.sub.Dropped()
}

// Close releases the stream. Closing is only needed when abandoning a
// stream before it ends.
func (s *Stream) Close() {
	s.sub.Close()
}
