package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/progress"
)

// EnqueueStepEvent handles POST /v1/modules/{moduleID}/lessons/{lessonID}/events
//
// The asynchronous variant of UpdateStep: the write is published to the
// step stream and applied by the worker, so flaky clients can batch
// navigation without waiting on storage. Without a configured stream the
// handler degrades to the synchronous path.
func EnqueueStepEvent(svc *progress.Service, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userFromRequest(w, r, rid)
		if !ok {
			return
		}
		moduleID, ok := moduleIDParam(w, r, rid)
		if !ok {
			return
		}
		lessonID, ok := lessonIDParam(w, r, rid)
		if !ok {
			return
		}

		var req stepUpdateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}

		ev := events.StepEvent{
			EventID:           uuid.NewString(),
			UserID:            uid.String(),
			ModuleID:          moduleID.String(),
			LessonID:          lessonID,
			CurrentStepIndex:  req.CurrentStepIndex,
			TotalSteps:        req.TotalSteps,
			TimeSpentDeltaSec: req.TimeSpentDeltaSec,
			OccurredAt:        time.Now().UTC(),
		}
		body, err := json.Marshal(ev)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		err = pub.Publish(events.SubjectStepUpdated, body)
		if err == nil {
			w.Header().Set("X-Event-Id", ev.EventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if !errors.Is(err, events.ErrPublishDisabled) {
			api.WriteError(w, http.StatusServiceUnavailable, "EVENT_PUBLISH_FAILED", "failed to publish event", rid, nil)
			return
		}

		// No stream configured: apply synchronously instead.
		res, err := svc.UpdateStep(r.Context(), uid, progress.StepUpdate{
			ModuleID:          moduleID,
			LessonID:          lessonID,
			CurrentStepIndex:  req.CurrentStepIndex,
			TotalSteps:        req.TotalSteps,
			TimeSpentDeltaSec: req.TimeSpentDeltaSec,
		})
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}
