package session

import (
	"context"
	"errors"

	"github.com/bterminal/bterminal/internal/fanout"
	"github.com/bterminal/bterminal/internal/metrics"
)

// monitor is the only writer of the session history. It runs until the
// shell's output ends, then calls onExit once and closes the output channel
// so late subscribers see ErrClosed after draining.
func (s *Session) monitor(sub *Subscription, onExit func(*Session)) {
	defer func() {
		s.out.Close()
		onExit(s)
	}()

	for {
		msg, err := sub.Recv(context.Background())
		if err != nil {
			var lagged *fanout.LaggedError
			if errors.As(err, &lagged) {
				metrics.FanoutLaggedTotal.WithLabelValues("monitor").Add(float64(lagged.Skipped))
				s.log.Warn("history lagged behind output", "skipped", lagged.Skipped)
				s.record(nil, sub.Next())
				continue
			}
			s.log.Debug("session monitor stopped", "err", err)
			return
		}

		switch msg.Kind {
		case KindOutput:
			s.record(msg.Data, sub.Next())
		case KindExit:
			s.log.Info("shell exited")
			return
		default:
			s.record(nil, sub.Next())
		}
	}
}
