// Package store owns the two persisted progress aggregates and every
// insert-or-update path against them. All multi-row writes happen inside a
// single transaction so partial application is never observable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound signals a row that was expected to exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a write-write conflict the caller may retry.
	ErrConflict = errors.New("write conflict")
)

// ModuleProgress is a learner's engagement with one module.
// Exactly one row per (user, module); created lazily, never deleted.
type ModuleProgress struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ModuleID       uuid.UUID
	TimeSpentSec   int64
	LastLessonID   *uuid.UUID
	LastAccessedAt time.Time
	CompletedAt    *time.Time
}

// LessonProgress is the step-granular record under one ModuleProgress.
// Exactly one row per (module progress, lesson).
type LessonProgress struct {
	ID               uuid.UUID
	ModuleProgressID uuid.UUID
	LessonID         uuid.UUID
	CurrentStep      int32
	TotalSteps       int32
	Completed        bool
	TimeSpentSec     int64
	LastAccessedAt   time.Time
}

// LessonLookup is the typed result of a point read. Absence of progress is a
// valid state, never an error: Started reports whether a row exists.
type LessonLookup struct {
	Started bool
	Record  LessonProgress
}

// StepWrite carries one validated step-navigation write. CurrentStep must
// already be clamped to [0, TotalSteps-1] and TimeSpentSec must be >= 0.
type StepWrite struct {
	UserID       uuid.UUID
	ModuleID     uuid.UUID
	LessonID     uuid.UUID
	CurrentStep  int32
	TotalSteps   int32
	TimeSpentSec int64
}

// CompletionResult reports the state transitions of a completion write.
type CompletionResult struct {
	Lesson LessonProgress
	// LessonTransition is true when this write flipped completed false→true.
	LessonTransition bool
	// ModuleCompleted is true when this write set the module's completed_at.
	ModuleCompleted bool
	// CompletedLessons is the live count of completed lessons among the
	// active set supplied by the caller.
	CompletedLessons int32
}

// ProgressRepository defines persistence operations for learner progress.
type ProgressRepository interface {
	// EnsureModuleProgress creates the (user, module) row when absent and
	// returns the current row. Existing rows are returned untouched; reads
	// do not bump last_accessed_at.
	EnsureModuleProgress(ctx context.Context, userID, moduleID uuid.UUID) (ModuleProgress, error)

	// ListModuleProgress returns all of a user's module rows ordered by
	// last_accessed_at descending.
	ListModuleProgress(ctx context.Context, userID uuid.UUID) ([]ModuleProgress, error)

	// ApplyStepUpdate upserts the module and lesson rows in one transaction.
	// Time deltas are additive, position fields are last-writer-wins and the
	// lesson's completed flag is left untouched.
	ApplyStepUpdate(ctx context.Context, w StepWrite) (LessonProgress, error)

	// ApplyLessonCompletion performs the step upsert with completed forced
	// true and the step snapped to the last index, then re-counts completed
	// lessons among activeLessonIDs and sets the module's completed_at when
	// every active lesson is complete and it is still null. All inside one
	// transaction.
	ApplyLessonCompletion(ctx context.Context, w StepWrite, activeLessonIDs []uuid.UUID) (CompletionResult, error)

	// ApplyStepEvent is ApplyStepUpdate guarded by the processed_events
	// table: the event id is recorded in the same transaction and replays
	// return applied=false without touching progress.
	ApplyStepEvent(ctx context.Context, eventID uuid.UUID, w StepWrite) (LessonProgress, bool, error)

	// FindLessonProgress returns the lesson row for (user, module, lesson)
	// as a typed lookup; a missing row is Started=false, not an error.
	FindLessonProgress(ctx context.Context, userID, moduleID, lessonID uuid.UUID) (LessonLookup, error)

	// ListLessonProgress returns every lesson row under the user's module.
	ListLessonProgress(ctx context.Context, userID, moduleID uuid.UUID) ([]LessonProgress, error)
}
