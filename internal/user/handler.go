package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
)

const maxBodyBytes = 1 << 20

// Handler exposes HTTP endpoints for signup, login and the current profile.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "reason", auth.Reason(err))
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		case errors.Is(err, auth.ErrTooManyAttempts):
			h.writeDetail(w, http.StatusTooManyRequests, "Too many login attempts")
		default:
			h.logger.Errorw("login error", "err", err)
			h.writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, tok)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	p, err := h.svc.GetProfile(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "get profile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var req UpdateInput
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), id.UserID, req)
	if err != nil {
		h.writeServiceError(w, "update profile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), id.UserID); err != nil {
		h.writeServiceError(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	case errors.Is(err, ErrEmailTaken):
		h.writeDetail(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, ErrUserNotFound):
		h.writeDetail(w, http.StatusNotFound, "User not found")
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
