package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the subject lifecycle events are published on.
const DefaultNATSSubject = "bterminal.sessions"

// NATSSink publishes lifecycle events to a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to natsURL. The connection retries in the background
// if the server is not reachable yet.
func NewNATSSink(natsURL, subject string) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("bterminal"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string {
	return "nats:" + s.subject
}

// Publish implements Sink.
func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}
}
