package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

const maxBodyBytes = 1 << 20

// Handler exposes task CRUD for the authenticated user. Routes must be
// wrapped with auth.RequireAuth.
type Handler struct {
	svc    *TaskService
	logger *zap.SugaredLogger
}

func NewHandler(svc *TaskService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	tasks, err := h.svc.List(r.Context(), owner, entity.Filter{
		Status: entity.Status(q.Get("status")),
		Search: q.Get("search"),
	})
	if err != nil {
		h.writeServiceError(w, "list tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req CreateInput
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.svc.Create(r.Context(), owner, req)
	if err != nil {
		h.writeServiceError(w, "create task", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		h.writeServiceError(w, "get task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req UpdateInput
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.svc.Update(r.Context(), owner, id, req)
	if err != nil {
		h.writeServiceError(w, "update task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		h.writeServiceError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return 0, false
	}
	return id.UserID, true
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeDetail(w, http.StatusNotFound, "Task not found")
		return 0, 0, false
	}
	return owner, id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeDetail(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		h.writeDetail(w, http.StatusUnprocessableEntity, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrTaskNotFound):
		h.writeDetail(w, http.StatusNotFound, "Task not found")
	default:
		h.logger.Errorw(op+" failed", "err", err)
		h.writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
