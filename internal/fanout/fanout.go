// Package fanout implements a bounded multi-subscriber broadcast channel.
//
// A Channel keeps the last N messages in a ring indexed by a monotonically
// increasing sequence number. Every Subscription tracks its own position, so
// the producer never waits on a consumer: a subscriber that falls more than N
// messages behind is told how many it missed and resumes at the oldest message
// still retained.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the ring size used when a non-positive capacity is given.
const DefaultCapacity = 100

// ErrClosed is returned by Recv once the channel is closed and the
// subscriber has consumed everything that was sent before Close.
var ErrClosed = errors.New("fanout: channel closed")

// LaggedError reports that a subscriber was overtaken by the producer.
// The subscriber has already been advanced past the lost messages.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("fanout: subscriber lagged, %d messages skipped", e.Skipped)
}

// IsLagged reports whether err is a *LaggedError.
func IsLagged(err error) bool {
	var lagged *LaggedError
	return errors.As(err, &lagged)
}

// Channel is a bounded broadcast channel. The zero value is not usable; use New.
type Channel[T any] struct {
	mu       sync.Mutex
	ring     []T
	capacity uint64
	// head is the sequence number of the next message to be sent.
	head   uint64
	closed bool
	// wake is closed and replaced on every Send and on Close.
	wake chan struct{}
}

// New creates a channel retaining at most capacity messages.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{
		ring:     make([]T, capacity),
		capacity: uint64(capacity),
		wake:     make(chan struct{}),
	}
}

// Send appends msg and wakes all waiting subscribers. It never blocks on
// subscribers. Sending on a closed channel is a no-op and returns false.
func (c *Channel[T]) Send(msg T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.ring[c.head%c.capacity] = msg
	c.head++
	wake := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()

	close(wake)
	return true
}

// Close marks the channel closed. Subscribers still receive buffered
// messages before ErrClosed. Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	wake := c.wake
	c.mu.Unlock()

	close(wake)
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the total number of messages ever sent.
func (c *Channel[T]) Len() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Subscribe returns a subscription that will receive every message sent
// after this call.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Subscription[T]{ch: c, next: c.head}
}

// SubscribeAt returns a subscription whose first message is the one with
// sequence number seq. A seq beyond the head starts at the head; a seq that
// has already been overwritten yields a LaggedError on the first Recv.
func (c *Channel[T]) SubscribeAt(seq uint64) *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.head {
		seq = c.head
	}
	return &Subscription[T]{ch: c, next: seq}
}

// Subscription is one consumer's read position. It is not safe for
// concurrent use by multiple goroutines.
type Subscription[T any] struct {
	ch   *Channel[T]
	next uint64
}

// Recv blocks until the next message is available, the subscriber is found
// to have lagged, the channel is closed, or ctx is done.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	c := s.ch
	for {
		c.mu.Lock()
		var oldest uint64
		if c.head > c.capacity {
			oldest = c.head - c.capacity
		}
		if s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			c.mu.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if s.next < c.head {
			msg := c.ring[s.next%c.capacity]
			s.next++
			c.mu.Unlock()
			return msg, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Next returns the sequence number of the next message this subscriber will
// receive. It must be called from the goroutine that calls Recv.
func (s *Subscription[T]) Next() uint64 {
	return s.next
}

// Pending returns how many messages are waiting for this subscriber,
// including ones it has already lost to lag.
func (s *Subscription[T]) Pending() uint64 {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.ch.head - s.next
}
