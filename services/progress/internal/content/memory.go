package content

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-memory Catalog for tests and for development mode
// without a database. Seed it with AddModule/AddLesson/AddLegacyMapping.
type MemoryCatalog struct {
	mu       sync.RWMutex
	modules  map[uuid.UUID]bool // id → active
	lessons  map[uuid.UUID]memLesson
	mappings map[string]LegacyRef
}

type memLesson struct {
	Lesson
	Active bool
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		modules:  make(map[uuid.UUID]bool),
		lessons:  make(map[uuid.UUID]memLesson),
		mappings: make(map[string]LegacyRef),
	}
}

var _ Catalog = (*MemoryCatalog)(nil)

func (c *MemoryCatalog) AddModule(id uuid.UUID, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[id] = active
}

func (c *MemoryCatalog) AddLesson(l Lesson, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons[l.ID] = memLesson{Lesson: l, Active: active}
}

func (c *MemoryCatalog) AddLegacyMapping(legacyID string, moduleID, lessonID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings[legacyID] = LegacyRef{LegacyID: legacyID, ModuleID: moduleID, LessonID: lessonID}
}

func (c *MemoryCatalog) ActiveLessons(_ context.Context, moduleID uuid.UUID) ([]Lesson, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Lesson
	for _, l := range c.lessons {
		if l.Active && l.ModuleID == moduleID {
			out = append(out, l.Lesson)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (c *MemoryCatalog) ModuleExists(_ context.Context, moduleID uuid.UUID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modules[moduleID], nil
}

func (c *MemoryCatalog) LessonExists(_ context.Context, lessonID uuid.UUID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lessons[lessonID]
	return ok && l.Active, nil
}

func (c *MemoryCatalog) LessonByID(_ context.Context, lessonID uuid.UUID) (Lesson, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lessons[lessonID]
	if !ok || !l.Active {
		return Lesson{}, ErrNotFound
	}
	return l.Lesson, nil
}

func (c *MemoryCatalog) LegacyByID(_ context.Context, legacyID string) (LegacyRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.mappings[legacyID]
	if !ok {
		return LegacyRef{}, ErrNotFound
	}
	return ref, nil
}

func (c *MemoryCatalog) LegacyByLessonID(_ context.Context, lessonID uuid.UUID) (LegacyRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []LegacyRef
	for _, ref := range c.mappings {
		if ref.LessonID == lessonID {
			matches = append(matches, ref)
		}
	}
	if len(matches) == 0 {
		return LegacyRef{}, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].LegacyID < matches[j].LegacyID })
	return matches[0], nil
}
