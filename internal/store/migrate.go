package store

import (
	"context"
	"fmt"
)

// migrations run in order. Each statement is idempotent so Migrate can
// run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                      TEXT PRIMARY KEY,
		phone                   TEXT NOT NULL UNIQUE,
		language_step           TEXT NOT NULL DEFAULT 'init',
		ui_lang                 TEXT NOT NULL DEFAULT '',
		source_lang             TEXT NOT NULL DEFAULT '',
		target_lang             TEXT NOT NULL DEFAULT '',
		voice_gender            TEXT NOT NULL DEFAULT '',
		plan                    TEXT NOT NULL DEFAULT 'FREE',
		free_used               INTEGER NOT NULL DEFAULT 0,
		stripe_customer_id      TEXT NOT NULL DEFAULT '',
		stripe_subscription_id  TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_stripe_customer
		ON users (stripe_customer_id) WHERE stripe_customer_id <> ''`,
	`CREATE TABLE IF NOT EXISTS translations (
		id               TEXT PRIMARY KEY,
		phone            TEXT NOT NULL,
		original_text    TEXT NOT NULL,
		translated_text  TEXT NOT NULL,
		source_lang      TEXT NOT NULL DEFAULT '',
		target_lang      TEXT NOT NULL DEFAULT '',
		credits          INTEGER NOT NULL DEFAULT 1,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_translations_phone
		ON translations (phone, created_at)`,
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
