// Package logx holds logger annotation helpers shared across the server.
package logx

import (
	"context"

	"pkt.systems/pslog"
)

// Ctx returns the logger bound to ctx.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// OrDefault returns log, or the context-free default logger when log is nil.
func OrDefault(log pslog.Logger) pslog.Logger {
	if log == nil {
		return pslog.Ctx(context.Background())
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	log = OrDefault(log)
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithClient annotates the logger with a streaming client id when available.
func WithClient(log pslog.Logger, clientID string) pslog.Logger {
	log = OrDefault(log)
	if clientID != "" {
		log = log.With("client", clientID)
	}
	return log
}
