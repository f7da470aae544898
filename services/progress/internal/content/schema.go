package content

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS modules (
		id       UUID PRIMARY KEY,
		title    TEXT NOT NULL DEFAULT '',
		position INT NOT NULL DEFAULT 0,
		active   BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id         UUID PRIMARY KEY,
		module_id  UUID NOT NULL REFERENCES modules(id),
		title      TEXT NOT NULL DEFAULT '',
		position   INT NOT NULL DEFAULT 0,
		step_count INT NOT NULL DEFAULT 1,
		active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS legacy_content_ids (
		legacy_id TEXT PRIMARY KEY,
		module_id UUID NOT NULL,
		lesson_id UUID NOT NULL
	)`,
}

// EnsureSchema creates the content tables when they are missing. The
// authoring system owns these in shared deployments; this bootstrap exists
// so the service can run standalone in development.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, q := range schemaStatements {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
