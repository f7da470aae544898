package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/services/progress/internal/cache"
	"github.com/example/learning-platform/services/progress/internal/content"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/progress"
	"github.com/example/learning-platform/services/progress/internal/store"
)

type env struct {
	svc     *progress.Service
	catalog *content.MemoryCatalog
	module  uuid.UUID
	lessons []content.Lesson
}

func newEnv(stepCounts ...int32) *env {
	catalog := content.NewMemoryCatalog()
	moduleID := uuid.New()
	catalog.AddModule(moduleID, true)

	lessons := make([]content.Lesson, len(stepCounts))
	for i, n := range stepCounts {
		l := content.Lesson{ID: uuid.New(), ModuleID: moduleID, Position: int32(i + 1), StepCount: n}
		catalog.AddLesson(l, true)
		lessons[i] = l
	}

	svc := progress.NewService(store.NewMemoryStore(), catalog, cache.NewMemoryCache(time.Minute), nil, zap.NewNop())
	return &env{svc: svc, catalog: catalog, module: moduleID, lessons: lessons}
}

// setupReq builds a request with chi URL params and optional user id in context.
func setupReq(method, url, body string, params map[string]string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func errCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return resp.Error.Code
}

func TestUpdateStep_ReturnsResult(t *testing.T) {
	e := newEnv(5)
	handler := UpdateStep(e.svc)
	user := uuid.NewString()
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodPut, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/progress",
		`{"current_step_index":2,"total_steps":5,"time_spent_delta_sec":30}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, user)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res progress.StepResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.CurrentStepIndex != 2 || res.ProgressPercentage != 60 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUpdateStep_Unauthorized(t *testing.T) {
	e := newEnv(5)
	handler := UpdateStep(e.svc)
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodPut, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/progress",
		`{"current_step_index":0,"total_steps":5}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUpdateStep_InvalidModuleID(t *testing.T) {
	e := newEnv(5)
	handler := UpdateStep(e.svc)

	req := setupReq(http.MethodPut, "/v1/modules/not-a-uuid/lessons/x/progress",
		`{"current_step_index":0,"total_steps":5}`,
		map[string]string{"moduleID": "not-a-uuid", "lessonID": "x"}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUpdateStep_ValidationErrorIs400(t *testing.T) {
	e := newEnv(5)
	handler := UpdateStep(e.svc)
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodPut, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/progress",
		`{"current_step_index":0,"total_steps":0}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if code := errCode(t, rr); code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", code)
	}
}

func TestUpdateStep_UnresolvedIdentifierIs404(t *testing.T) {
	e := newEnv(5)
	handler := UpdateStep(e.svc)

	req := setupReq(http.MethodPut, "/v1/modules/"+e.module.String()+"/lessons/ghost/progress",
		`{"current_step_index":0,"total_steps":5}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": "ghost"}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
	if code := errCode(t, rr); code != "UNRESOLVED_CONTENT_ID" {
		t.Fatalf("expected UNRESOLVED_CONTENT_ID, got %s", code)
	}
}

func TestCompleteLesson_ReturnsCompletedResult(t *testing.T) {
	e := newEnv(5)
	handler := CompleteLesson(e.svc)
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodPost, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/complete",
		`{"total_steps":5}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res progress.StepResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Completed || res.CurrentStepIndex != 4 || res.ProgressPercentage != 100 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResumeState_ReturnsFirstLesson(t *testing.T) {
	e := newEnv(5, 3)
	handler := ResumeState(e.svc)

	req := setupReq(http.MethodGet, "/v1/modules/"+e.module.String()+"/resume", "",
		map[string]string{"moduleID": e.module.String()}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var st progress.ResumeState
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CurrentLessonID != e.lessons[0].ID || st.TotalStepsInLesson != 5 {
		t.Fatalf("unexpected resume state: %+v", st)
	}
}

func TestLessonDetail_NotStartedIs200(t *testing.T) {
	e := newEnv(5)
	handler := LessonDetail(e.svc)
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodGet, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/progress", "",
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("missing progress must not 404, got %d: %s", rr.Code, rr.Body.String())
	}
	var detail progress.LessonDetail
	if err := json.NewDecoder(rr.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Started {
		t.Fatal("expected Started=false")
	}
}

func TestOverview_EmptyIsEmptyList(t *testing.T) {
	e := newEnv(5)
	handler := Overview(e.svc)

	req := setupReq(http.MethodGet, "/v1/progress", "", nil, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if len(body) == 0 || body[0] != '[' {
		t.Fatalf("expected a JSON array, got %q", body)
	}
}

func TestResolveIdentifier_LegacyID(t *testing.T) {
	e := newEnv(5)
	e.catalog.AddLegacyMapping("legacy-1", e.module, e.lessons[0].ID)
	handler := ResolveIdentifier(e.svc)

	req := setupReq(http.MethodPost, "/v1/resolve", `{"supplied_id":"legacy-1"}`, nil, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res resolveResponse
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ModuleID != e.module || res.LessonID != e.lessons[0].ID {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveIdentifier_UnknownIs404(t *testing.T) {
	e := newEnv(5)
	handler := ResolveIdentifier(e.svc)

	req := setupReq(http.MethodPost, "/v1/resolve", `{"supplied_id":"ghost"}`, nil, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errCode(t, rr); code != "UNRESOLVED_CONTENT_ID" {
		t.Fatalf("expected UNRESOLVED_CONTENT_ID, got %s", code)
	}
}

func TestEnqueueStepEvent_FallsBackToSyncWithoutStream(t *testing.T) {
	e := newEnv(5)
	pub, err := events.NewPublisher(nil, zap.NewNop())
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	handler := EnqueueStepEvent(e.svc, pub)
	lesson := e.lessons[0].ID.String()

	req := setupReq(http.MethodPost, "/v1/modules/"+e.module.String()+"/lessons/"+lesson+"/events",
		`{"current_step_index":1,"total_steps":5,"time_spent_delta_sec":10}`,
		map[string]string{"moduleID": e.module.String(), "lessonID": lesson}, uuid.NewString())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	// Stub publisher: the handler applies synchronously and returns the
	// result instead of 202.
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 fallback, got %d: %s", rr.Code, rr.Body.String())
	}
	var res progress.StepResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.CurrentStepIndex != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}
