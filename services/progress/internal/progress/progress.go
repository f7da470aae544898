// Package progress is the core of the learning-progress engine: the step
// progress writer, the lesson→module completion cascade and the resume
// resolver, all behind one Service. Writes are small and frequent (one per
// step navigation), so every mutation is a single transaction and every
// read tolerates progress that does not exist yet.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/learning-platform/services/progress/internal/resolver"
)

var (
	// ErrInvalidInput rejects malformed writes (total steps below one,
	// negative time delta).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals an unknown or inactive module, or a module with
	// zero active lessons when resolving resume state.
	ErrNotFound = errors.New("not found")
	// ErrWriteConflict is a transient write-write conflict, surfaced after
	// one internal retry. Callers may safely retry the whole operation.
	ErrWriteConflict = errors.New("write conflict")
	// ErrUnresolved means the supplied content identifier could not be
	// mapped to any canonical entity.
	ErrUnresolved = resolver.ErrUnresolved
)

// StepUpdate is one step-navigation write. LessonID carries the identifier
// as the client supplied it (canonical UUID or legacy id); ModuleID doubles
// as the resolution hint for not-yet-migrated content.
type StepUpdate struct {
	ModuleID          uuid.UUID
	LessonID          string
	CurrentStepIndex  int32
	TotalSteps        int32
	TimeSpentDeltaSec int64
}

// CompleteLesson marks a lesson finished. TotalSteps is caller-supplied for
// the same reason it is on StepUpdate: content length can change and the
// client reports what it rendered.
type CompleteLesson struct {
	ModuleID          uuid.UUID
	LessonID          string
	TotalSteps        int32
	TimeSpentDeltaSec int64
}

// StepResult is the post-write state of one lesson.
type StepResult struct {
	LessonID           uuid.UUID `json:"lesson_id"`
	CurrentStepIndex   int32     `json:"current_step_index"`
	TotalSteps         int32     `json:"total_steps"`
	Completed          bool      `json:"completed"`
	ProgressPercentage int32     `json:"progress_percentage"`
}

// ResumeState answers "where should this learner continue?" for one module.
type ResumeState struct {
	ModuleID           uuid.UUID `json:"module_id"`
	CurrentLessonID    uuid.UUID `json:"current_lesson_id"`
	CurrentStepIndex   int32     `json:"current_step_index"`
	TotalStepsInLesson int32     `json:"total_steps_in_lesson"`
	ModuleProgress     int32     `json:"module_progress"`
	TotalLessons       int32     `json:"total_lessons"`
	CompletedLessons   int32     `json:"completed_lessons"`
	IsModuleComplete   bool      `json:"is_module_complete"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
}

// LessonDetail is the point read for one lesson. Absence of progress is a
// valid state: Started=false with zero-valued progress fields, never an
// error.
type LessonDetail struct {
	LessonID         uuid.UUID `json:"lesson_id"`
	ModuleID         uuid.UUID `json:"module_id"`
	CurrentStepIndex int32     `json:"current_step_index"`
	TotalSteps       int32     `json:"total_steps"`
	Completed        bool      `json:"completed"`
	TimeSpentSec     int64     `json:"time_spent_sec"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	Started          bool      `json:"started"`
}

// ModuleOverview is one row of the "continue learning" strip.
type ModuleOverview struct {
	ModuleID       uuid.UUID  `json:"module_id"`
	LastLessonID   *uuid.UUID `json:"last_lesson_id,omitempty"`
	TimeSpentSec   int64      `json:"time_spent_sec"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}
