package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bterminal/bterminal/pkg/types"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS session_audit (
		seq BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_audit_open ON session_audit(session_id) WHERE ended_at IS NULL`,
}

// PostgresStore is an audit Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM audit_schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, stmt := range postgresMigrations {
		version := i + 1
		if version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO audit_schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}
	return nil
}

// SessionStarted implements Store.
func (s *PostgresStore) SessionStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_audit (session_id, created_at) VALUES ($1, $2)`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded implements Store.
func (s *PostgresStore) SessionEnded(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE session_audit SET ended_at = $1
		 WHERE seq = (SELECT MAX(seq) FROM session_audit WHERE session_id = $2 AND ended_at IS NULL)`,
		at, id)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]types.AuditRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, created_at, ended_at FROM session_audit ORDER BY seq DESC LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var rec types.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
