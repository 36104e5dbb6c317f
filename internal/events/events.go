// Package events carries session lifecycle notifications from the session
// registry to dashboards and external brokers.
package events

import (
	"context"
	"sync"

	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/internal/metrics"
	"pkt.systems/pslog"
)

// Type identifies a lifecycle event.
type Type string

const (
	// SessionCreated is published after a session is registered.
	SessionCreated Type = "SessionCreated"
	// SessionDeleted is published once when a session leaves the registry.
	SessionDeleted Type = "SessionDeleted"
)

// Event is serialized as {"type":"SessionCreated","data":"<id>"}.
type Event struct {
	Type Type   `json:"type"`
	Data string `json:"data"`
}

// Created returns a SessionCreated event for id.
func Created(id string) Event {
	return Event{Type: SessionCreated, Data: id}
}

// Deleted returns a SessionDeleted event for id.
func Deleted(id string) Event {
	return Event{Type: SessionDeleted, Data: id}
}

// Publisher is the hook the session registry emits lifecycle events to.
type Publisher interface {
	Publish(Event)
}

// Sink receives events forwarded from a Bus.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Bus fans events out to in-process subscribers without blocking the
// publisher. A subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	log    pslog.Logger
	depth  int
}

// NewBus constructs a Bus.
func NewBus(logger pslog.Logger) *Bus {
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logx.OrDefault(logger),
		depth: 64,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel
// func that unregisters and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel after the events already queued on
// it. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- ev:
		default:
			dropped++
		}
	}
	b.log.Debug("eventbus publish", "type", string(ev.Type), "session", ev.Data, "subs", len(b.subs))
	if dropped > 0 {
		metrics.EventsDroppedTotal.Add(float64(dropped))
		b.log.Warn("eventbus dropped", "count", dropped, "type", string(ev.Type))
	}
}

// Forward delivers every event published after the call to sink until ctx
// is done or the bus is closed and drained. Sink failures are logged and do
// not stop forwarding.
func (b *Bus) Forward(ctx context.Context, sink Sink) {
	ch, cancel := b.Subscribe()
	defer cancel()

	log := b.log.With("sink", sink.Name())
	log.Info("event sink attached")
	for {
		select {
		case <-ctx.Done():
			log.Info("event sink detached")
			return
		case ev, ok := <-ch:
			if !ok {
				log.Info("event sink drained")
				return
			}
			if err := sink.Publish(ctx, ev); err != nil {
				log.Warn("event sink publish failed", "type", string(ev.Type), "session", ev.Data, "err", err)
			}
		}
	}
}
