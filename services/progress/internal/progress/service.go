package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/cache"
	"github.com/example/learning-platform/services/progress/internal/content"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/resolver"
	"github.com/example/learning-platform/services/progress/internal/store"
)

const overviewCacheKey = "overview"

func resumeCacheKey(moduleID uuid.UUID) string {
	return "resume:" + moduleID.String()
}

// Service wires the resolver, store, cache and event emitter into the
// operation surface consumed by the HTTP handlers and the step worker.
type Service struct {
	repo    store.ProgressRepository
	catalog content.Catalog
	res     *resolver.Resolver
	cache   cache.UserCache
	emitter *events.Emitter
	log     *zap.Logger
}

func NewService(repo store.ProgressRepository, catalog content.Catalog, userCache cache.UserCache, emitter *events.Emitter, log *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		res:     resolver.New(catalog),
		cache:   userCache,
		emitter: emitter,
		log:     log,
	}
}

// UpdateStep records one step navigation. Both aggregate rows are upserted
// in a single transaction; the step index is clamped, never rejected; the
// lesson's completed flag is left untouched.
func (s *Service) UpdateStep(ctx context.Context, userID uuid.UUID, in StepUpdate) (StepResult, error) {
	if err := validateStepInput(in.TotalSteps, in.TimeSpentDeltaSec); err != nil {
		return StepResult{}, err
	}

	res, err := s.resolve(ctx, in.LessonID, in.ModuleID)
	if err != nil {
		return StepResult{}, err
	}

	w := store.StepWrite{
		UserID:       userID,
		ModuleID:     res.ModuleID,
		LessonID:     res.LessonID,
		CurrentStep:  clampStep(in.CurrentStepIndex, in.TotalSteps),
		TotalSteps:   in.TotalSteps,
		TimeSpentSec: in.TimeSpentDeltaSec,
	}

	lp, err := s.repo.ApplyStepUpdate(ctx, w)
	if errors.Is(err, store.ErrConflict) {
		lp, err = s.repo.ApplyStepUpdate(ctx, w)
	}
	if err != nil {
		return StepResult{}, mapStoreErr(err, "apply step update")
	}

	s.invalidate(ctx, userID)
	return stepResult(lp), nil
}

// CompleteLesson forces the lesson complete and snaps its step index to the
// last step, then re-counts the user's completed lessons against the
// module's current active set inside the same transaction and promotes the
// module to completed when every active lesson is done. Both transitions
// emit best-effort completion events.
func (s *Service) CompleteLesson(ctx context.Context, userID uuid.UUID, in CompleteLesson) (StepResult, error) {
	if err := validateStepInput(in.TotalSteps, in.TimeSpentDeltaSec); err != nil {
		return StepResult{}, err
	}

	res, err := s.resolve(ctx, in.LessonID, in.ModuleID)
	if err != nil {
		return StepResult{}, err
	}

	lessons, err := s.catalog.ActiveLessons(ctx, res.ModuleID)
	if err != nil {
		return StepResult{}, fmt.Errorf("list active lessons: %w", err)
	}
	activeIDs := make([]uuid.UUID, len(lessons))
	for i, l := range lessons {
		activeIDs[i] = l.ID
	}

	w := store.StepWrite{
		UserID:       userID,
		ModuleID:     res.ModuleID,
		LessonID:     res.LessonID,
		CurrentStep:  in.TotalSteps - 1,
		TotalSteps:   in.TotalSteps,
		TimeSpentSec: in.TimeSpentDeltaSec,
	}

	cres, err := s.repo.ApplyLessonCompletion(ctx, w, activeIDs)
	if errors.Is(err, store.ErrConflict) {
		cres, err = s.repo.ApplyLessonCompletion(ctx, w, activeIDs)
	}
	if err != nil {
		return StepResult{}, mapStoreErr(err, "apply lesson completion")
	}

	s.invalidate(ctx, userID)

	if cres.LessonTransition {
		s.emitter.Emit(userID, events.KindLessonCompleted, res.LessonID)
	}
	if cres.ModuleCompleted {
		s.emitter.Emit(userID, events.KindModuleCompleted, res.ModuleID)
	}
	return stepResult(cres.Lesson), nil
}

// ApplyStepEvent applies one asynchronous step event exactly once: the
// event id is recorded with the write in a single transaction, so replays
// report applied=false without touching progress.
func (s *Service) ApplyStepEvent(ctx context.Context, eventID, userID uuid.UUID, in StepUpdate) (bool, error) {
	if err := validateStepInput(in.TotalSteps, in.TimeSpentDeltaSec); err != nil {
		return false, err
	}

	res, err := s.resolve(ctx, in.LessonID, in.ModuleID)
	if err != nil {
		return false, err
	}

	w := store.StepWrite{
		UserID:       userID,
		ModuleID:     res.ModuleID,
		LessonID:     res.LessonID,
		CurrentStep:  clampStep(in.CurrentStepIndex, in.TotalSteps),
		TotalSteps:   in.TotalSteps,
		TimeSpentSec: in.TimeSpentDeltaSec,
	}

	_, applied, err := s.repo.ApplyStepEvent(ctx, eventID, w)
	if errors.Is(err, store.ErrConflict) {
		_, applied, err = s.repo.ApplyStepEvent(ctx, eventID, w)
	}
	if err != nil {
		return false, mapStoreErr(err, "apply step event")
	}
	if applied {
		s.invalidate(ctx, userID)
	}
	return applied, nil
}

// GetResumeState computes where the learner should continue in a module:
// the first active lesson in authored order whose progress is absent or
// incomplete, or the last lesson when everything is done. The module
// aggregate is created lazily even on this read path.
func (s *Service) GetResumeState(ctx context.Context, userID, moduleID uuid.UUID) (ResumeState, error) {
	key := resumeCacheKey(moduleID)
	var cached ResumeState
	if found, err := s.cache.Get(ctx, userID, key, &cached); err != nil {
		s.log.Warn("resume cache read failed", zap.Error(err))
	} else if found {
		return cached, nil
	}

	ok, err := s.catalog.ModuleExists(ctx, moduleID)
	if err != nil {
		return ResumeState{}, fmt.Errorf("module lookup: %w", err)
	}
	if !ok {
		return ResumeState{}, fmt.Errorf("%w: module %s", ErrNotFound, moduleID)
	}

	lessons, err := s.catalog.ActiveLessons(ctx, moduleID)
	if err != nil {
		return ResumeState{}, fmt.Errorf("list active lessons: %w", err)
	}
	if len(lessons) == 0 {
		return ResumeState{}, fmt.Errorf("%w: module %s has no active lessons", ErrNotFound, moduleID)
	}

	mp, err := s.repo.EnsureModuleProgress(ctx, userID, moduleID)
	if err != nil {
		return ResumeState{}, mapStoreErr(err, "ensure module progress")
	}

	rows, err := s.repo.ListLessonProgress(ctx, userID, moduleID)
	if err != nil {
		return ResumeState{}, mapStoreErr(err, "list lesson progress")
	}
	byLesson := make(map[uuid.UUID]store.LessonProgress, len(rows))
	for _, lp := range rows {
		byLesson[lp.LessonID] = lp
	}

	var completed int32
	target := lessons[len(lessons)-1]
	targetFound := false
	for _, l := range lessons {
		if lp, started := byLesson[l.ID]; started && lp.Completed {
			completed++
			continue
		}
		if !targetFound {
			target = l
			targetFound = true
		}
	}

	state := ResumeState{
		ModuleID:         moduleID,
		CurrentLessonID:  target.ID,
		TotalLessons:     int32(len(lessons)),
		CompletedLessons: completed,
		ModuleProgress:   percentOf(completed, int32(len(lessons))),
		IsModuleComplete: mp.CompletedAt != nil,
		LastAccessedAt:   mp.LastAccessedAt,
	}
	if lp, started := byLesson[target.ID]; started {
		state.CurrentStepIndex = lp.CurrentStep
		state.TotalStepsInLesson = lp.TotalSteps
	} else {
		state.TotalStepsInLesson = target.StepCount
	}

	if err := s.cache.Set(ctx, userID, key, state); err != nil {
		s.log.Warn("resume cache write failed", zap.Error(err))
	}
	return state, nil
}

// GetLessonDetail reads one lesson's progress. A lesson the learner never
// opened reports Started=false with zero-valued progress, not an error.
func (s *Service) GetLessonDetail(ctx context.Context, userID, moduleID uuid.UUID, lessonID string) (LessonDetail, error) {
	res, err := s.resolve(ctx, lessonID, moduleID)
	if err != nil {
		return LessonDetail{}, err
	}

	if _, err := s.repo.EnsureModuleProgress(ctx, userID, res.ModuleID); err != nil {
		return LessonDetail{}, mapStoreErr(err, "ensure module progress")
	}

	lookup, err := s.repo.FindLessonProgress(ctx, userID, res.ModuleID, res.LessonID)
	if err != nil {
		return LessonDetail{}, mapStoreErr(err, "find lesson progress")
	}

	detail := LessonDetail{LessonID: res.LessonID, ModuleID: res.ModuleID, Started: lookup.Started}
	if lookup.Started {
		r := lookup.Record
		detail.CurrentStepIndex = r.CurrentStep
		detail.TotalSteps = r.TotalSteps
		detail.Completed = r.Completed
		detail.TimeSpentSec = r.TimeSpentSec
		detail.LastAccessedAt = r.LastAccessedAt
	}
	return detail, nil
}

// GetOverview lists every module the learner has touched, newest activity
// first.
func (s *Service) GetOverview(ctx context.Context, userID uuid.UUID) ([]ModuleOverview, error) {
	var cached []ModuleOverview
	if found, err := s.cache.Get(ctx, userID, overviewCacheKey, &cached); err != nil {
		s.log.Warn("overview cache read failed", zap.Error(err))
	} else if found {
		return cached, nil
	}

	rows, err := s.repo.ListModuleProgress(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "list module progress")
	}
	out := make([]ModuleOverview, len(rows))
	for i, mp := range rows {
		out[i] = ModuleOverview{
			ModuleID:       mp.ModuleID,
			LastLessonID:   mp.LastLessonID,
			TimeSpentSec:   mp.TimeSpentSec,
			CompletedAt:    mp.CompletedAt,
			LastAccessedAt: mp.LastAccessedAt,
		}
	}
	if err := s.cache.Set(ctx, userID, overviewCacheKey, out); err != nil {
		s.log.Warn("overview cache write failed", zap.Error(err))
	}
	return out, nil
}

// ResolveIdentifier maps a supplied content identifier to its canonical
// (module, lesson) pair without touching progress.
func (s *Service) ResolveIdentifier(ctx context.Context, suppliedID string, moduleHint *uuid.UUID) (resolver.Resolution, error) {
	res, err := s.res.Resolve(ctx, suppliedID, moduleHint)
	if err != nil {
		if errors.Is(err, resolver.ErrUnresolved) {
			return resolver.Resolution{}, fmt.Errorf("%w: %q", ErrUnresolved, suppliedID)
		}
		return resolver.Resolution{}, fmt.Errorf("resolve %q: %w", suppliedID, err)
	}
	return res, nil
}

// resolve maps the supplied lesson identifier and verifies the resolved
// module is active. Lesson existence is whatever the winning resolution
// step established: the legacy mapping and the module-hint fallback accept
// lessons the content tables do not know yet (mid-migration writes must not
// bounce).
func (s *Service) resolve(ctx context.Context, suppliedID string, moduleHint uuid.UUID) (resolver.Resolution, error) {
	res, err := s.res.Resolve(ctx, suppliedID, &moduleHint)
	if err != nil {
		if errors.Is(err, resolver.ErrUnresolved) {
			return resolver.Resolution{}, fmt.Errorf("%w: %q", ErrUnresolved, suppliedID)
		}
		return resolver.Resolution{}, fmt.Errorf("resolve %q: %w", suppliedID, err)
	}

	ok, err := s.catalog.ModuleExists(ctx, res.ModuleID)
	if err != nil {
		return resolver.Resolution{}, fmt.Errorf("module lookup: %w", err)
	}
	if !ok {
		return resolver.Resolution{}, fmt.Errorf("%w: module %s", ErrNotFound, res.ModuleID)
	}
	return res, nil
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func validateStepInput(totalSteps int32, deltaSec int64) error {
	if totalSteps < 1 {
		return fmt.Errorf("%w: total_steps must be >= 1, got %d", ErrInvalidInput, totalSteps)
	}
	if deltaSec < 0 {
		return fmt.Errorf("%w: time_spent_delta_sec must not be negative, got %d", ErrInvalidInput, deltaSec)
	}
	return nil
}

func clampStep(idx, totalSteps int32) int32 {
	if idx < 0 {
		return 0
	}
	if idx > totalSteps-1 {
		return totalSteps - 1
	}
	return idx
}

// percentOf is floor(part/whole*100) in integer math.
func percentOf(part, whole int32) int32 {
	if whole < 1 {
		return 0
	}
	return int32(int64(part) * 100 / int64(whole))
}

func stepResult(lp store.LessonProgress) StepResult {
	return StepResult{
		LessonID:           lp.LessonID,
		CurrentStepIndex:   lp.CurrentStep,
		TotalSteps:         lp.TotalSteps,
		Completed:          lp.Completed,
		ProgressPercentage: percentOf(lp.CurrentStep+1, lp.TotalSteps),
	}
}

func mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s", ErrWriteConflict, op)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
