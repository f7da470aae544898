package content

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog reads curriculum metadata from the shared database.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

var _ Catalog = (*PostgresCatalog)(nil)

func (c *PostgresCatalog) ActiveLessons(ctx context.Context, moduleID uuid.UUID) ([]Lesson, error) {
	q := `
SELECT id, module_id, position, step_count
FROM lessons
WHERE module_id=$1 AND active
ORDER BY position ASC, id ASC`

	rows, err := c.db.Query(ctx, q, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.ModuleID, &l.Position, &l.StepCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) ModuleExists(ctx context.Context, moduleID uuid.UUID) (bool, error) {
	var exists bool
	err := c.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM modules WHERE id=$1 AND active)`, moduleID,
	).Scan(&exists)
	return exists, err
}

func (c *PostgresCatalog) LessonExists(ctx context.Context, lessonID uuid.UUID) (bool, error) {
	var exists bool
	err := c.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lessons WHERE id=$1 AND active)`, lessonID,
	).Scan(&exists)
	return exists, err
}

func (c *PostgresCatalog) LessonByID(ctx context.Context, lessonID uuid.UUID) (Lesson, error) {
	var l Lesson
	err := c.db.QueryRow(ctx,
		`SELECT id, module_id, position, step_count FROM lessons WHERE id=$1 AND active`, lessonID,
	).Scan(&l.ID, &l.ModuleID, &l.Position, &l.StepCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lesson{}, ErrNotFound
		}
		return Lesson{}, err
	}
	return l, nil
}

func (c *PostgresCatalog) LegacyByID(ctx context.Context, legacyID string) (LegacyRef, error) {
	var ref LegacyRef
	err := c.db.QueryRow(ctx,
		`SELECT legacy_id, module_id, lesson_id FROM legacy_content_ids WHERE legacy_id=$1`, legacyID,
	).Scan(&ref.LegacyID, &ref.ModuleID, &ref.LessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegacyRef{}, ErrNotFound
		}
		return LegacyRef{}, err
	}
	return ref, nil
}

func (c *PostgresCatalog) LegacyByLessonID(ctx context.Context, lessonID uuid.UUID) (LegacyRef, error) {
	var ref LegacyRef
	err := c.db.QueryRow(ctx,
		`SELECT legacy_id, module_id, lesson_id FROM legacy_content_ids WHERE lesson_id=$1 ORDER BY legacy_id ASC LIMIT 1`, lessonID,
	).Scan(&ref.LegacyID, &ref.ModuleID, &ref.LessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegacyRef{}, ErrNotFound
		}
		return LegacyRef{}, err
	}
	return ref, nil
}
