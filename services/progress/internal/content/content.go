// Package content reads curriculum metadata: module/lesson existence,
// authored lesson ordering with step counts, and the legacy-id migration
// mapping. The authoring side owns these tables; this service only reads.
package content

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Lesson is one active lesson in its module's authored order.
type Lesson struct {
	ID        uuid.UUID
	ModuleID  uuid.UUID
	Position  int32
	StepCount int32
}

// LegacyRef is one row of the identifier-migration mapping.
type LegacyRef struct {
	LegacyID string
	ModuleID uuid.UUID
	LessonID uuid.UUID
}

// Catalog is the content metadata surface consumed by the progress engine.
type Catalog interface {
	// ActiveLessons returns the module's active lessons in authored order.
	ActiveLessons(ctx context.Context, moduleID uuid.UUID) ([]Lesson, error)
	// ModuleExists reports whether an active module with this id exists.
	ModuleExists(ctx context.Context, moduleID uuid.UUID) (bool, error)
	// LessonExists reports whether an active lesson with this id exists.
	LessonExists(ctx context.Context, lessonID uuid.UUID) (bool, error)
	// LessonByID returns an active lesson or ErrNotFound.
	LessonByID(ctx context.Context, lessonID uuid.UUID) (Lesson, error)
	// LegacyByID looks a supplied id up on the legacy side of the mapping.
	LegacyByID(ctx context.Context, legacyID string) (LegacyRef, error)
	// LegacyByLessonID looks a supplied id up on the canonical side of the
	// mapping. When several legacy ids map to one lesson the row with the
	// smallest legacy id wins, keeping resolution deterministic.
	LegacyByLessonID(ctx context.Context, lessonID uuid.UUID) (LegacyRef, error)
}
