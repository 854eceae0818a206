// Package broadcast provides a lossy one-to-many channel.
//
// A Channel delivers every published value to each of its current
// subscriptions. Publishing never blocks: every subscription owns a bounded
// ring buffer and, when that buffer is full, the oldest queued value is
// dropped to make room for the new one. Because the newest value always
// survives, the value passed to Close is guaranteed to be the last value
// every subscription yields.
//
// Example usage:
//
//	ch := broadcast.New[int](8)
//	sub := ch.Subscribe()
//	defer sub.Close()
//
//	go func() {
//		for i := 0; i < 100; i++ {
//			ch.Publish(i)
//		}
//		ch.Close(100)
//	}()
//
//	for v := range sub.All(ctx) {
//		fmt.Println(v)
//	}
package broadcast

import (
	"context"
	"iter"
	"sync"
)

// DefaultCapacity is the per-subscription buffer size used when New is
// called with a non-positive capacity.
const DefaultCapacity = 32

// Channel fans values out to any number of subscriptions.
// It is safe for concurrent use.
type Channel[T any] struct {
	capacity int

	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	last    T
	hasLast bool
	closed  bool
}

// New creates a Channel whose subscriptions buffer at most capacity values.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{
		capacity: capacity,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

// Capacity returns the per-subscription buffer size.
func (c *Channel[T]) Capacity() int {
	return c.capacity
}

// Publish delivers v to every current subscription without blocking.
// It is a no-op once the channel has been closed.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.publishLocked(v)
}

// Close publishes final and closes the channel. Subscriptions yield final
// as their last value. Calling Close more than once is a no-op.
// It reports whether this call closed the channel.
func (c *Channel[T]) Close(final T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.publishLocked(final)
	c.closed = true
	for sub := range c.subs {
		sub.close()
	}
	c.subs = nil
	return true
}

func (c *Channel[T]) publishLocked(v T) {
	c.last = v
	c.hasLast = true
	for sub := range c.subs {
		sub.push(v)
	}
}

// Subscribe returns a subscription that receives values published from now
// on. Subscribing to a closed channel yields only the final value.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	sub := newSubscription(c, c.capacity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if c.hasLast {
			sub.push(c.last)
		}
		sub.close()
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Last returns the most recently published value, if any.
func (c *Channel[T]) Last() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Len returns the number of active subscriptions.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel[T]) unsubscribe(sub *Subscription[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, sub)
}

// Subscription is one consumer's view of a Channel.
// Next and All must not be called from multiple goroutines at once.
type Subscription[T any] struct {
	parent *Channel[T]

	mu      sync.Mutex
	buf     []T
	head    int
	size    int
	closed  bool
	dropped uint64

	// notify holds at most one pending wake-up for a blocked reader.
	notify chan struct{}
	done   chan struct{}
}

func newSubscription[T any](parent *Channel[T], capacity int) *Subscription[T] {
	return &Subscription[T]{
		parent: parent,
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.size == len(s.buf) {
		var zero T
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.dropped++
	}
	s.buf[(s.head+s.size)%len(s.buf)] = v
	s.size++
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest buffered value. ok is false when the buffer is
// empty; finished is true when the buffer is empty and the subscription
// is closed.
func (s *Subscription[T]) pop() (v T, ok bool, finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return v, false, s.closed
	}
	v = s.buf[s.head]
	var zero T
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	return v, true, false
}

// Next blocks until a value is available, the subscription is exhausted, or
// ctx is done. ok is false in the latter two cases.
func (s *Subscription[T]) Next(ctx context.Context) (T, bool) {
	for {
		v, ok, finished := s.pop()
		if ok {
			return v, true
		}
		if finished {
			return v, false
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			// A value may have raced in alongside the cancellation.
			v, ok, _ = s.pop()
			return v, ok
		}
	}
}

// TryNext returns the next buffered value without blocking.
func (s *Subscription[T]) TryNext() (T, bool) {
	v, ok, _ := s.pop()
	return v, ok
}

// All returns an iterator over the remaining values. Iteration stops when
// the subscription is exhausted or ctx is done.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := s.Next(ctx)
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Done is closed once the channel has been closed or the subscription has
// been cancelled. Buffered values may still be pending when Done fires.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many values were discarded because this subscription
// fell behind.
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Pending returns the number of buffered values.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close detaches the subscription from its channel and discards anything
// still buffered. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.parent.unsubscribe(s)

	s.mu.Lock()
	for i := range s.buf {
		var zero T
		s.buf[i] = zero
	}
	s.head, s.size = 0, 0
	s.mu.Unlock()

	s.close()
}
