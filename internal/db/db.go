package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		return nil, err
	}

	return db, nil
}

// Relationship sets live on the account row as TEXT[] columns; the CHECK constraints
// keep an account out of its own sets. friend_repairs journals half applied operations.
func runMigrations(ctx context.Context, db *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			profile_picture TEXT,
			pending_requests_received TEXT[] NOT NULL DEFAULT '{}',
			friends TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT accounts_no_self_request CHECK (NOT (id = ANY(pending_requests_received))),
			CONSTRAINT accounts_no_self_friend CHECK (NOT (id = ANY(friends)))
			)`,
		`CREATE INDEX IF NOT EXISTS accounts_created_at_idx ON accounts (created_at)`,
		`CREATE TABLE IF NOT EXISTS friend_repairs (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			mutations JSONB NOT NULL,
			cause TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			attempts INTEGER NOT NULL DEFAULT 0
			)`,
	}

	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
