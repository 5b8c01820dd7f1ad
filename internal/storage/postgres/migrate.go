package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		hash       TEXT NOT NULL,
		cash       NUMERIC(18,2) NOT NULL DEFAULT 10000.00 CHECK (cash >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users(id),
		symbol      TEXT NOT NULL,
		shares      BIGINT NOT NULL CHECK (shares > 0),
		price       NUMERIC(18,2) NOT NULL,
		side        TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trades_user_symbol_idx ON trades (user_id, symbol)`,
	`CREATE INDEX IF NOT EXISTS trades_user_executed_idx ON trades (user_id, executed_at, id)`,
}

// Migrate creates the ledger schema. Statements are idempotent so it is safe
// to run on every startup of the admin CLI.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
