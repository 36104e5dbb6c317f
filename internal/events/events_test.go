package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Created("s1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"SessionCreated","data":"s1"}` {
		t.Errorf("unexpected encoding %s", data)
	}
	data, _ = json.Marshal(Deleted("s1"))
	if string(data) != `{"type":"SessionDeleted","data":"s1"}` {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Created("s1"))

	select {
	case got := <-ch:
		if got != Created("s1") {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	bus.Publish(Created("after-cancel"))
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Created("s"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	got    chan struct{}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.got <- struct{}{}
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func TestForwardDeliversToSink(t *testing.T) {
	bus := NewBus(nil)
	sink := &recordingSink{fail: true, got: make(chan struct{}, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Forward(ctx, sink)
		close(done)
	}()

	// Wait for the forwarder's subscription to be registered.
	deadline := time.Now().Add(time.Second)
	for {
		bus.mu.Lock()
		n := len(bus.subs)
		bus.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(Created("a"))
	bus.Publish(Deleted("a"))
	for i := 0; i < 2; i++ {
		select {
		case <-sink.got:
		case <-time.After(time.Second):
			t.Fatal("sink did not receive event")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 || sink.events[0] != Created("a") || sink.events[1] != Deleted("a") {
		t.Fatalf("unexpected sink events %+v", sink.events)
	}
}

func TestNewRedisSinkRejectsBadURL(t *testing.T) {
	if _, err := NewRedisSink("not-a-redis-url", ""); err == nil {
		t.Fatal("expected error for invalid redis URL")
	}
}

func TestCloseDrainsThenEndsForward(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Created("a"))
	bus.Close()
	bus.Publish(Created("late"))
	bus.Close()

	got, ok := <-ch
	if !ok || got != Created("a") {
		t.Fatalf("expected queued event before close, got %+v %v", got, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after drain")
	}

	sink := &recordingSink{got: make(chan struct{}, 1)}
	done := make(chan struct{})
	go func() {
		bus.Forward(context.Background(), sink)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward on a closed bus did not return")
	}
}
