package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/example/learning-platform/services/progress/internal/content"
)

func seedCatalog() (*content.MemoryCatalog, uuid.UUID, uuid.UUID) {
	c := content.NewMemoryCatalog()
	moduleID, lessonID := uuid.New(), uuid.New()
	c.AddModule(moduleID, true)
	c.AddLesson(content.Lesson{ID: lessonID, ModuleID: moduleID, Position: 1, StepCount: 5}, true)
	return c, moduleID, lessonID
}

func TestResolve_CanonicalLessonID(t *testing.T) {
	c, moduleID, lessonID := seedCatalog()
	r := New(c)

	res, err := r.Resolve(context.Background(), lessonID.String(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ModuleID != moduleID || res.LessonID != lessonID {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolve_LegacyID(t *testing.T) {
	c, moduleID, lessonID := seedCatalog()
	c.AddLegacyMapping("legacy-lesson-42", moduleID, lessonID)
	r := New(c)

	res, err := r.Resolve(context.Background(), "legacy-lesson-42", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.LessonID != lessonID {
		t.Fatalf("expected canonical lesson %s, got %s", lessonID, res.LessonID)
	}
}

func TestResolve_LegacyAndCanonicalConverge(t *testing.T) {
	c, moduleID, lessonID := seedCatalog()
	c.AddLegacyMapping("legacy-lesson-42", moduleID, lessonID)
	r := New(c)

	viaLegacy, err := r.Resolve(context.Background(), "legacy-lesson-42", nil)
	if err != nil {
		t.Fatalf("resolve legacy: %v", err)
	}
	viaCanonical, err := r.Resolve(context.Background(), lessonID.String(), nil)
	if err != nil {
		t.Fatalf("resolve canonical: %v", err)
	}
	if viaLegacy != viaCanonical {
		t.Fatalf("expected both identifier generations to converge: %+v vs %+v", viaLegacy, viaCanonical)
	}
}

func TestResolve_CanonicalSideOfMapping(t *testing.T) {
	// A partially completed migration: the mapping row exists but the lessons
	// table no longer knows the id. The canonical side of the mapping still
	// resolves it.
	c := content.NewMemoryCatalog()
	moduleID, carriedID := uuid.New(), uuid.New()
	c.AddModule(moduleID, true)
	c.AddLegacyMapping(carriedID.String(), moduleID, carriedID)
	r := New(c)

	res, err := r.Resolve(context.Background(), carriedID.String(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ModuleID != moduleID || res.LessonID != carriedID {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolve_ModuleHintFallback(t *testing.T) {
	c, moduleID, _ := seedCatalog()
	r := New(c)

	unmigrated := uuid.New()
	res, err := r.Resolve(context.Background(), unmigrated.String(), &moduleID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ModuleID != moduleID || res.LessonID != unmigrated {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolve_ModuleHintRequiresActiveModule(t *testing.T) {
	c := content.NewMemoryCatalog()
	inactive := uuid.New()
	c.AddModule(inactive, false)
	r := New(c)

	_, err := r.Resolve(context.Background(), uuid.NewString(), &inactive)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved under inactive module hint, got %v", err)
	}
}

func TestResolve_CanonicalBeatsLegacyMapping(t *testing.T) {
	// When an id is both a live lesson and a legacy key pointing elsewhere,
	// the direct lesson lookup wins.
	c, moduleID, lessonID := seedCatalog()
	otherModule, otherLesson := uuid.New(), uuid.New()
	c.AddModule(otherModule, true)
	c.AddLegacyMapping(lessonID.String(), otherModule, otherLesson)
	r := New(c)

	res, err := r.Resolve(context.Background(), lessonID.String(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ModuleID != moduleID || res.LessonID != lessonID {
		t.Fatalf("expected the direct lesson lookup to win, got %+v", res)
	}
}

func TestResolve_Unresolved(t *testing.T) {
	c, _, _ := seedCatalog()
	r := New(c)

	_, err := r.Resolve(context.Background(), "nonsense-id", nil)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestResolve_InactiveLessonFallsThrough(t *testing.T) {
	// A deactivated lesson no longer resolves directly; with no mapping and
	// no hint the id is unresolved, making the record unreachable.
	c := content.NewMemoryCatalog()
	moduleID, lessonID := uuid.New(), uuid.New()
	c.AddModule(moduleID, true)
	c.AddLesson(content.Lesson{ID: lessonID, ModuleID: moduleID, Position: 1, StepCount: 3}, false)
	r := New(c)

	_, err := r.Resolve(context.Background(), lessonID.String(), nil)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved for inactive lesson, got %v", err)
	}
}
