package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the contributions table if needed. Having the
// migration in code keeps the service self-contained so docker-compose can
// bootstrap everything.
//
// The two named UNIQUE constraints back the admission retry loops: a
// duplicate position or public code surfaces as a constraint violation the
// repository maps to a typed error instead of silently corrupting the canvas.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS contributions (
	id TEXT PRIMARY KEY,
	public_code TEXT NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_addr TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT contributions_position_key UNIQUE (x, y),
	CONSTRAINT contributions_public_code_key UNIQUE (public_code)
);
CREATE INDEX IF NOT EXISTS idx_contributions_created_at ON contributions(created_at);
CREATE INDEX IF NOT EXISTS idx_contributions_status ON contributions(status);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
