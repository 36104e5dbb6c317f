// Package audit keeps a durable journal of session lifetimes.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bterminal/bterminal/internal/events"
	"github.com/bterminal/bterminal/pkg/types"
)

// DefaultLimit is the number of records Recent returns for a non-positive limit.
const DefaultLimit = 50

// Store records when sessions start and end.
type Store interface {
	SessionStarted(ctx context.Context, id string, at time.Time) error
	SessionEnded(ctx context.Context, id string, at time.Time) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]types.AuditRecord, error)
	Close() error
}

// Open selects a backend from dbURL: "postgres://" or "postgresql://" uses
// PostgreSQL, "sqlite://<path>" or a bare path uses SQLite. An empty URL
// places an SQLite journal in dataDir.
func Open(ctx context.Context, dbURL, dataDir string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		var pg *PostgresStore
		if pg, err = OpenPostgres(ctx, dbURL); err == nil {
			store = pg
		}
	case strings.Contains(dbURL, "://") && !strings.HasPrefix(dbURL, "sqlite://"):
		return nil, fmt.Errorf("unsupported audit database URL scheme: %s", dbURL)
	default:
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			path = filepath.Join(dataDir, "audit.db")
		}
		var lite *SQLiteStore
		if lite, err = OpenSQLite(path); err == nil {
			store = lite
		}
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Sink feeds lifecycle events into a Store.
type Sink struct {
	Store Store
	// Now defaults to time.Now.
	Now func() time.Time
}

// Name implements events.Sink.
func (s Sink) Name() string {
	return "audit"
}

// Publish implements events.Sink.
func (s Sink) Publish(ctx context.Context, ev events.Event) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	switch ev.Type {
	case events.SessionCreated:
		return s.Store.SessionStarted(ctx, ev.Data, now().UTC())
	case events.SessionDeleted:
		return s.Store.SessionEnded(ctx, ev.Data, now().UTC())
	default:
		return nil
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
