package task

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
	taskrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

func newTestService(t *testing.T) *TaskService {
	t.Helper()
	ids, err := utilities.NewIDGenerator(2)
	require.NoError(t, err)
	svc := NewTaskService(taskrepo.NewMemoryRepo(), ids)
	// strictly increasing timestamps keep ordering deterministic
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestTaskService_CRUD(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, 1, CreateInput{Title: "  Plan sprint ", Description: ptr("backlog grooming")})
	require.NoError(t, err)
	assert.Equal(t, "Plan sprint", a.Title)
	assert.Equal(t, entity.StatusPending, a.Status)

	b, err := svc.Create(ctx, 1, CreateInput{Title: "Ship release", Status: entity.StatusInProgress})
	require.NoError(t, err)

	list, err := svc.List(ctx, 1, entity.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = svc.List(ctx, 1, entity.Filter{Search: "GROOM"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	upd, err := svc.Update(ctx, 1, a.ID, UpdateInput{Status: ptr(entity.StatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, upd.Status)
	assert.Equal(t, "Plan sprint", upd.Title)
	assert.True(t, upd.UpdatedAt.After(upd.CreatedAt))

	list, err = svc.List(ctx, 1, entity.Filter{Status: entity.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, 1, a.ID))
	_, err = svc.Get(ctx, 1, a.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_Ownership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	mine, err := svc.Create(ctx, 1, CreateInput{Title: "mine"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, mine.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.Update(ctx, 2, mine.ID, UpdateInput{Title: ptr("hijacked")})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 2, mine.ID), ErrTaskNotFound)

	list, err := svc.List(ctx, 2, entity.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := svc.Get(ctx, 1, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
}

func TestTaskService_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateInput{Title: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, 1, CreateInput{Title: strings.Repeat("x", 201)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, 1, CreateInput{Title: "ok", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.List(ctx, 1, entity.Filter{Status: "done"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tk, err := svc.Create(ctx, 1, CreateInput{Title: "ok"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, 1, tk.ID, UpdateInput{Status: ptr(entity.Status("later"))})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func newTaskMux(t *testing.T) *http.ServeMux {
	t.Helper()
	h := NewHandler(newTestService(t), zap.NewNop().Sugar())
	// identity injection stands in for auth.RequireAuth
	as := func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var uid int64
			if _, err := fmt.Sscan(r.Header.Get("X-Test-User"), &uid); err == nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: uid}))
			}
			next(w, r)
		})
	}
	mux := http.NewServeMux()
	mux.Handle("GET /tasks", as(h.List))
	mux.Handle("POST /tasks", as(h.Create))
	mux.Handle("GET /tasks/{id}", as(h.Get))
	mux.Handle("PUT /tasks/{id}", as(h.Update))
	mux.Handle("DELETE /tasks/{id}", as(h.Delete))
	return mux
}

func call(mux http.Handler, user, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	mux := newTaskMux(t)

	rec := call(mux, "1", http.MethodPost, "/tasks", `{"title":"Write docs","description":"API section"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created entity.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, int64(1), created.UserID)
	path := fmt.Sprintf("/tasks/%d", created.ID)

	rec = call(mux, "1", http.MethodGet, "/tasks?search=api", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entity.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	rec = call(mux, "2", http.MethodGet, "/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = call(mux, "2", http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Task not found"}`, rec.Body.String())

	rec = call(mux, "1", http.MethodPut, path, `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated entity.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, entity.StatusInProgress, updated.Status)

	rec = call(mux, "1", http.MethodPut, path, `{"status":"bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(mux, "1", http.MethodGet, "/tasks/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(mux, "1", http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(mux, "1", http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(mux, "", http.MethodGet, "/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
