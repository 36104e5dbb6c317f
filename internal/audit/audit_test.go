package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bterminal/bterminal/internal/events"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "audit", "audit.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRecordsLifetimes(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.SessionStarted(ctx, "a", start); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := store.SessionStarted(ctx, "b", start.Add(time.Second)); err != nil {
		t.Fatalf("start b: %v", err)
	}
	if err := store.SessionEnded(ctx, "a", start.Add(time.Minute)); err != nil {
		t.Fatalf("end a: %v", err)
	}

	recs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "b" || recs[0].EndedAt != nil {
		t.Errorf("unexpected newest record %+v", recs[0])
	}
	if recs[1].ID != "a" || recs[1].EndedAt == nil || !recs[1].EndedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("unexpected record for a %+v", recs[1])
	}
	if !recs[1].CreatedAt.Equal(start) {
		t.Errorf("unexpected created_at %v", recs[1].CreatedAt)
	}
}

func TestSQLiteReusedIDClosesNewestOpenRow(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = store.SessionStarted(ctx, "s", t0)
	_ = store.SessionEnded(ctx, "s", t0.Add(time.Second))
	_ = store.SessionStarted(ctx, "s", t0.Add(2*time.Second))

	recs, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].EndedAt != nil {
		t.Fatal("second lifetime of a reused id should still be open")
	}
	if recs[1].EndedAt == nil || !recs[1].EndedAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("first lifetime end changed: %+v", recs[1])
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SessionStarted(ctx, id, time.Now()); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	recs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "c" || recs[1].ID != "b" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestSinkTranslatesEvents(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sink := Sink{Store: store, Now: func() time.Time { return now }}

	if err := sink.Publish(ctx, events.Created("s1")); err != nil {
		t.Fatalf("publish created: %v", err)
	}
	now = now.Add(time.Hour)
	if err := sink.Publish(ctx, events.Deleted("s1")); err != nil {
		t.Fatalf("publish deleted: %v", err)
	}

	recs, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].EndedAt == nil || recs[0].EndedAt.Sub(recs[0].CreatedAt) != time.Hour {
		t.Fatalf("unexpected record %+v", recs)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), "", dir)
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	store.Close()
	if _, err := os.Stat(filepath.Join(dir, "audit.db")); err != nil {
		t.Fatalf("expected audit.db in data dir: %v", err)
	}

	store, err = Open(context.Background(), "sqlite://"+filepath.Join(dir, "other.db"), dir)
	if err != nil {
		t.Fatalf("open sqlite url: %v", err)
	}
	store.Close()

	if _, err := Open(context.Background(), "mysql://localhost/db", dir); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("BTERMINAL_TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("BTERMINAL_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer store.Close()

	id := "audit-test-" + time.Now().Format("150405.000000000")
	if err := store.SessionStarted(ctx, id, time.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := store.SessionEnded(ctx, id, time.Now()); err != nil {
		t.Fatalf("end: %v", err)
	}
	recs, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != id || recs[0].EndedAt == nil {
		t.Fatalf("unexpected records %+v", recs)
	}
}
