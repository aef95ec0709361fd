package user

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/transport"
)

type ServiceAPI interface {
	Profile(email string) (*ProfileView, error)
	Stats(email string) (*StatsView, error)
	UpdateRole(email string, dto UpdateRoleDTO) (*User, error)
	Delete(id int64) (*DeleteResult, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// GetProfile handles GET /users/me
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	profile, err := h.Service.Profile(email)
	if err != nil {
		h.Logger.Error("GetProfile: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, profile)
}

// GetStats handles GET /users/me/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	stats, err := h.Service.Stats(email)
	if err != nil {
		h.Logger.Error("GetStats: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, stats)
}

// UpdateRole handles PATCH /users/{email}/role
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	var dto UpdateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	u, err := h.Service.UpdateRole(email, dto)
	if err != nil {
		h.Logger.Error("UpdateRole: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

// Delete handles DELETE /users/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid user id", errors.ErrCodeValidationFailed))
		return
	}

	result, svcErr := h.Service.Delete(id)
	if svcErr != nil {
		h.Logger.Error("Delete: service error", "error", svcErr, "user_id", id)
		h.HandleServiceError(w, svcErr)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
