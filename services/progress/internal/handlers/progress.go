// Package handlers adapts the progress service to HTTP. Handlers stay
// thin: decode, call the service, map taxonomy errors onto the shared
// envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/progress/internal/progress"
)

type stepUpdateRequest struct {
	CurrentStepIndex  int32 `json:"current_step_index"`
	TotalSteps        int32 `json:"total_steps"`
	TimeSpentDeltaSec int64 `json:"time_spent_delta_sec"`
}

type completeLessonRequest struct {
	TotalSteps        int32 `json:"total_steps"`
	TimeSpentDeltaSec int64 `json:"time_spent_delta_sec"`
}

// Overview handles GET /v1/progress
func Overview(svc *progress.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userFromRequest(w, r, rid)
		if !ok {
			return
		}

		overview, err := svc.GetOverview(r.Context(), uid)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		if overview == nil {
			overview = []progress.ModuleOverview{}
		}
		api.WriteJSON(w, http.StatusOK, overview)
	}
}

// ResumeState handles GET /v1/modules/{moduleID}/resume
func ResumeState(svc *progress.Service) http.HandlerFunc {
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

		state, err := svc.GetResumeState(r.Context(), uid, moduleID)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, state)
	}
}

// LessonDetail handles GET /v1/modules/{moduleID}/lessons/{lessonID}/progress
func LessonDetail(svc *progress.Service) http.HandlerFunc {
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

		detail, err := svc.GetLessonDetail(r.Context(), uid, moduleID, lessonID)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, detail)
	}
}

// UpdateStep handles PUT /v1/modules/{moduleID}/lessons/{lessonID}/progress
func UpdateStep(svc *progress.Service) http.HandlerFunc {
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

// CompleteLesson handles POST /v1/modules/{moduleID}/lessons/{lessonID}/complete
func CompleteLesson(svc *progress.Service) http.HandlerFunc {
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

		var req completeLessonRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}

		res, err := svc.CompleteLesson(r.Context(), uid, progress.CompleteLesson{
			ModuleID:          moduleID,
			LessonID:          lessonID,
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

func userFromRequest(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	sub, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(sub) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return uuid.Nil, false
	}
	uid, err := uuid.Parse(sub)
	if err != nil {
		api.Unauthorized(w, "AUTH_INVALID_SUBJECT", "Token subject is not a valid user id", rid)
		return uuid.Nil, false
	}
	return uid, true
}

func moduleIDParam(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "moduleID"))
	id, err := uuid.Parse(raw)
	if err != nil {
		api.BadRequest(w, "INVALID_MODULE_ID", "module id must be a UUID", rid, nil)
		return uuid.Nil, false
	}
	return id, true
}

// lessonIDParam returns the supplied lesson identifier as-is: it may be a
// canonical UUID or a legacy id, and the service resolves it.
func lessonIDParam(w http.ResponseWriter, r *http.Request, rid string) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "lessonID"))
	if raw == "" {
		api.BadRequest(w, "MISSING_ID", "lesson id is required", rid, nil)
		return "", false
	}
	return raw, true
}

func writeServiceError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, progress.ErrInvalidInput):
		api.BadRequest(w, "INVALID_ARGUMENT", err.Error(), rid, nil)
	case errors.Is(err, progress.ErrUnresolved):
		api.NotFound(w, "UNRESOLVED_CONTENT_ID", err.Error(), rid)
	case errors.Is(err, progress.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", err.Error(), rid)
	case errors.Is(err, progress.ErrWriteConflict):
		api.Conflict(w, "WRITE_CONFLICT", "Concurrent write conflict, retry the request", rid, nil)
	default:
		api.Internal(w, rid)
	}
}
