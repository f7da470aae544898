package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userModuleKey struct {
	userID   uuid.UUID
	moduleID uuid.UUID
}

// MemoryStore is an in-memory ProgressRepository with the same observable
// semantics as PostgresStore. Used by tests and by development mode when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	modules map[userModuleKey]*ModuleProgress
	lessons map[uuid.UUID]map[uuid.UUID]*LessonProgress // module progress id → lesson id
	events  map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		modules: make(map[userModuleKey]*ModuleProgress),
		lessons: make(map[uuid.UUID]map[uuid.UUID]*LessonProgress),
		events:  make(map[uuid.UUID]struct{}),
	}
}

var _ ProgressRepository = (*MemoryStore)(nil)

func (s *MemoryStore) EnsureModuleProgress(_ context.Context, userID, moduleID uuid.UUID) (ModuleProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.ensureModuleLocked(userID, moduleID, time.Now().UTC())
	return *m, nil
}

func (s *MemoryStore) ListModuleProgress(_ context.Context, userID uuid.UUID) ([]ModuleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ModuleProgress
	for k, m := range s.modules {
		if k.userID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
		}
		return bytes.Compare(out[i].ModuleID[:], out[j].ModuleID[:]) > 0
	})
	return out, nil
}

func (s *MemoryStore) ApplyStepUpdate(_ context.Context, w StepWrite) (LessonProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp := s.applyStepLocked(w, false, time.Now().UTC())
	return *lp, nil
}

func (s *MemoryStore) ApplyLessonCompletion(_ context.Context, w StepWrite, activeLessonIDs []uuid.UUID) (CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	m := s.ensureModuleLocked(w.UserID, w.ModuleID, now)

	wasCompleted := false
	if row, ok := s.lessons[m.ID][w.LessonID]; ok {
		wasCompleted = row.Completed
	}

	lp := s.applyStepLocked(w, true, now)

	var completedCount int32
	for _, id := range activeLessonIDs {
		if row, ok := s.lessons[m.ID][id]; ok && row.Completed {
			completedCount++
		}
	}

	res := CompletionResult{
		Lesson:           *lp,
		LessonTransition: !wasCompleted,
		CompletedLessons: completedCount,
	}
	if int(completedCount) == len(activeLessonIDs) && len(activeLessonIDs) > 0 && m.CompletedAt == nil {
		at := now
		m.CompletedAt = &at
		res.ModuleCompleted = true
	}
	return res, nil
}

func (s *MemoryStore) ApplyStepEvent(_ context.Context, eventID uuid.UUID, w StepWrite) (LessonProgress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[eventID]; seen {
		return LessonProgress{}, false, nil
	}
	s.events[eventID] = struct{}{}
	lp := s.applyStepLocked(w, false, time.Now().UTC())
	return *lp, true, nil
}

func (s *MemoryStore) FindLessonProgress(_ context.Context, userID, moduleID, lessonID uuid.UUID) (LessonLookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[userModuleKey{userID, moduleID}]
	if !ok {
		return LessonLookup{}, nil
	}
	row, ok := s.lessons[m.ID][lessonID]
	if !ok {
		return LessonLookup{}, nil
	}
	return LessonLookup{Started: true, Record: *row}, nil
}

func (s *MemoryStore) ListLessonProgress(_ context.Context, userID, moduleID uuid.UUID) ([]LessonProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[userModuleKey{userID, moduleID}]
	if !ok {
		return nil, nil
	}
	var out []LessonProgress
	for _, row := range s.lessons[m.ID] {
		out = append(out, *row)
	}
	return out, nil
}

// ensureModuleLocked returns the module row, creating it when absent.
// Existing rows are not touched. Callers must hold mu.
func (s *MemoryStore) ensureModuleLocked(userID, moduleID uuid.UUID, now time.Time) *ModuleProgress {
	key := userModuleKey{userID, moduleID}
	if m, ok := s.modules[key]; ok {
		return m
	}
	m := &ModuleProgress{
		ID:             uuid.New(),
		UserID:         userID,
		ModuleID:       moduleID,
		LastAccessedAt: now,
	}
	s.modules[key] = m
	s.lessons[m.ID] = make(map[uuid.UUID]*LessonProgress)
	return m
}

// applyStepLocked mirrors the transactional upsert pair: module row first
// (additive time, last-accessed bumps), then the lesson row. Callers must
// hold mu.
func (s *MemoryStore) applyStepLocked(w StepWrite, forceComplete bool, now time.Time) *LessonProgress {
	m := s.ensureModuleLocked(w.UserID, w.ModuleID, now)
	m.TimeSpentSec += w.TimeSpentSec
	lessonID := w.LessonID
	m.LastLessonID = &lessonID
	m.LastAccessedAt = now

	row, ok := s.lessons[m.ID][w.LessonID]
	if !ok {
		row = &LessonProgress{
			ID:               uuid.New(),
			ModuleProgressID: m.ID,
			LessonID:         w.LessonID,
		}
		s.lessons[m.ID][w.LessonID] = row
	}
	row.CurrentStep = w.CurrentStep
	row.TotalSteps = w.TotalSteps
	row.TimeSpentSec += w.TimeSpentSec
	row.LastAccessedAt = now
	if forceComplete {
		row.Completed = true
	}
	return row
}
