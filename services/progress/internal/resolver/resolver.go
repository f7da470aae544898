// Package resolver reconciles caller-supplied content identifiers against
// the canonical lesson/module identifiers used for storage. Two identifier
// generations coexist: canonical UUIDs and legacy ids from before the
// content migration. Every read and write path resolves through here first
// so progress recorded under either generation lands on the same row.
package resolver

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/learning-platform/services/progress/internal/content"
)

// ErrUnresolved means the supplied identifier maps to no canonical entity.
var ErrUnresolved = errors.New("identifier not resolved")

// Resolution is the canonical address of a lesson.
type Resolution struct {
	ModuleID uuid.UUID
	LessonID uuid.UUID
}

// Resolver is read-only and deterministic: the same inputs against the same
// catalog state always produce the same resolution.
type Resolver struct {
	catalog content.Catalog
}

func New(catalog content.Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve maps suppliedID to its canonical (module, lesson) pair.
// First match wins:
//  1. suppliedID is a canonical lesson id.
//  2. suppliedID is a legacy id in the migration mapping.
//  3. suppliedID appears on the canonical side of the mapping (a partially
//     completed migration carries a legacy id over as its own canonical id).
//  4. moduleHint names an existing active module: accept suppliedID as
//     already canonical under it (not-yet-migrated content).
//  5. ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, suppliedID string, moduleHint *uuid.UUID) (Resolution, error) {
	suppliedUUID, isUUID := parseID(suppliedID)

	if isUUID {
		lesson, err := r.catalog.LessonByID(ctx, suppliedUUID)
		switch {
		case err == nil:
			return Resolution{ModuleID: lesson.ModuleID, LessonID: lesson.ID}, nil
		case !errors.Is(err, content.ErrNotFound):
			return Resolution{}, err
		}
	}

	ref, err := r.catalog.LegacyByID(ctx, suppliedID)
	switch {
	case err == nil:
		return Resolution{ModuleID: ref.ModuleID, LessonID: ref.LessonID}, nil
	case !errors.Is(err, content.ErrNotFound):
		return Resolution{}, err
	}

	if isUUID {
		ref, err := r.catalog.LegacyByLessonID(ctx, suppliedUUID)
		switch {
		case err == nil:
			return Resolution{ModuleID: ref.ModuleID, LessonID: suppliedUUID}, nil
		case !errors.Is(err, content.ErrNotFound):
			return Resolution{}, err
		}
	}

	if isUUID && moduleHint != nil {
		ok, err := r.catalog.ModuleExists(ctx, *moduleHint)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{ModuleID: *moduleHint, LessonID: suppliedUUID}, nil
		}
	}

	return Resolution{}, ErrUnresolved
}

func parseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
