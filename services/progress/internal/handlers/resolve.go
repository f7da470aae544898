package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/services/progress/internal/progress"
)

type resolveRequest struct {
	SuppliedID string `json:"supplied_id"`
	ModuleHint string `json:"module_hint,omitempty"`
}

type resolveResponse struct {
	ModuleID uuid.UUID `json:"module_id"`
	LessonID uuid.UUID `json:"lesson_id"`
}

// ResolveIdentifier handles POST /v1/resolve
func ResolveIdentifier(svc *progress.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if _, ok := userFromRequest(w, r, rid); !ok {
			return
		}

		var req resolveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		req.SuppliedID = strings.TrimSpace(req.SuppliedID)
		if req.SuppliedID == "" {
			api.BadRequest(w, "MISSING_ID", "supplied_id is required", rid, nil)
			return
		}

		var hint *uuid.UUID
		if h := strings.TrimSpace(req.ModuleHint); h != "" {
			id, err := uuid.Parse(h)
			if err != nil {
				api.BadRequest(w, "INVALID_MODULE_ID", "module_hint must be a UUID", rid, nil)
				return
			}
			hint = &id
		}

		res, err := svc.ResolveIdentifier(r.Context(), req.SuppliedID, hint)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, resolveResponse{ModuleID: res.ModuleID, LessonID: res.LessonID})
	}
}
