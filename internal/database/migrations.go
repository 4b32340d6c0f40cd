package database

import (
	"context"
	"fmt"
	"log"
)

// Idempotent DDL applied at startup. The unique index on short_code is
// what makes concurrent creates safe; the serial id on clicks is what
// preserves append order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS aliases (
		id           BIGSERIAL PRIMARY KEY,
		short_code   VARCHAR(50) NOT NULL,
		original_url TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expiry_date  TIMESTAMPTZ NOT NULL,
		CONSTRAINT aliases_short_code_uniq UNIQUE (short_code)
	)`,
	`CREATE TABLE IF NOT EXISTS clicks (
		id          BIGSERIAL PRIMARY KEY,
		alias_id    BIGINT NOT NULL REFERENCES aliases(id),
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		referrer    TEXT NOT NULL DEFAULT 'Direct',
		location    TEXT NOT NULL DEFAULT 'Unknown'
	)`,
	`CREATE INDEX IF NOT EXISTS clicks_alias_id_idx ON clicks (alias_id)`,
}

// EnsureSchema creates the aliases and clicks tables if they do not
// already exist
func (s *service) EnsureSchema(ctx context.Context) error {
	log.Printf("[DATABASE] Ensuring schema")

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			log.Printf("[DATABASE] ERROR: Schema statement failed: %v", err)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Printf("[DATABASE] Schema is up to date")
	return nil
}
