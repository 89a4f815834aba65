package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            BIGSERIAL    PRIMARY KEY,
				username      VARCHAR(20)  NOT NULL UNIQUE,
				password_hash VARCHAR(200) NOT NULL,
				is_admin      BOOLEAN      NOT NULL DEFAULT FALSE,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_tracks",
		SQL: `
			CREATE TABLE IF NOT EXISTS tracks (
				id              BIGSERIAL    PRIMARY KEY,
				display_name    VARCHAR(200) NOT NULL,
				search_name     VARCHAR(400) NOT NULL,
				search_initials VARCHAR(200) NOT NULL,
				stored_name     VARCHAR(100) NOT NULL UNIQUE,
				content_hash    VARCHAR(32)  NOT NULL UNIQUE,
				duration        INTEGER      NOT NULL DEFAULT 0,
				uploaded_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				owner_id        BIGINT       REFERENCES users(id) ON DELETE SET NULL
			);
			CREATE INDEX IF NOT EXISTS idx_tracks_search_name ON tracks(search_name);
			CREATE INDEX IF NOT EXISTS idx_tracks_search_initials ON tracks(search_initials);
			CREATE INDEX IF NOT EXISTS idx_tracks_uploaded_at ON tracks(uploaded_at);
		`,
	},
	{
		Version: "000003_create_login_attempts",
		SQL: `
			CREATE TABLE IF NOT EXISTS login_attempts (
				address       VARCHAR(100) PRIMARY KEY,
				failure_count INTEGER      NOT NULL DEFAULT 0,
				lockout_until TIMESTAMPTZ
			);
		`,
	},
	{
		// Transliteration expands non-Latin display names several times
		// over: a maximum-length CJK title romanizes to well past 400
		// characters, so the search name cannot carry a length bound.
		Version: "000004_widen_tracks_search_name",
		SQL: `
			ALTER TABLE tracks ALTER COLUMN search_name TYPE TEXT;
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
