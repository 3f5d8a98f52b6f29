package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// postgresSchema is applied idempotently at startup.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		balance NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		token TEXT NOT NULL,
		quantity NUMERIC NOT NULL DEFAULT 0,
		PRIMARY KEY (agent_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		room_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		token TEXT NOT NULL,
		quantity NUMERIC NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_room ON trades(room_id, executed_at DESC)`,
}

// RunMigrations applies the ledger schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	for i, stmt := range postgresSchema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
