package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS module_progress (
		id               UUID PRIMARY KEY,
		user_id          UUID NOT NULL,
		module_id        UUID NOT NULL,
		time_spent_sec   BIGINT NOT NULL DEFAULT 0,
		last_lesson_id   UUID,
		last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at     TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT module_progress_user_module_uniq UNIQUE (user_id, module_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_progress (
		id                 UUID PRIMARY KEY,
		module_progress_id UUID NOT NULL REFERENCES module_progress(id),
		lesson_id          UUID NOT NULL,
		current_step       INT NOT NULL DEFAULT 0,
		total_steps        INT NOT NULL DEFAULT 1,
		completed          BOOLEAN NOT NULL DEFAULT FALSE,
		time_spent_sec     BIGINT NOT NULL DEFAULT 0,
		last_accessed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT lesson_progress_module_lesson_uniq UNIQUE (module_progress_id, lesson_id)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id    UUID PRIMARY KEY,
		subject     TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema applies the progress-owned DDL. Statements are idempotent so
// repeated startups are safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, q := range schemaStatements {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
