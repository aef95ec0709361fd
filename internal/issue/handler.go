package issue

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/transport"
)

type ServiceAPI interface {
	Create(dto CreateIssueDTO, submitterEmail string) (*CreateResult, error)
	UpdateStatus(issueID int64, dto UpdateStatusDTO) (*UpdateStatusResult, error)
	AssignStaff(issueID int64, dto AssignStaffDTO) (*AssignResult, error)
	ToggleUpvote(issueID int64, voterEmail string) (*UpvoteResult, error)
	GetByID(issueID int64) (*Issue, error)
	List(limit, offset int) ([]*Issue, error)
	ListBySubmitter(email string, limit, offset int) ([]*Issue, error)
	Delete(issueID int64) (*DeleteResult, error)
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

// Create handles POST /issues
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto CreateIssueDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.Create(dto, email)
	if err != nil {
		h.Logger.Error("Create: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, result)
}

// List handles GET /issues
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	issues, err := h.Service.List(limit, offset)
	if err != nil {
		h.Logger.Error("List: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, issues)
}

// ListMine handles GET /issues/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	limit, offset := pagination(r)

	issues, err := h.Service.ListBySubmitter(email, limit, offset)
	if err != nil {
		h.Logger.Error("ListMine: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, issues)
}

// Get handles GET /issues/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	iss, err := h.Service.GetByID(id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, iss)
}

// UpdateStatus handles PATCH /issues/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.UpdateStatus(id, dto)
	if err != nil {
		h.Logger.Error("UpdateStatus: service error", "error", err, "issue_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// AssignStaff handles PATCH /issues/{id}/assign
func (h *Handler) AssignStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	var dto AssignStaffDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.AssignStaff(id, dto)
	if err != nil {
		h.Logger.Error("AssignStaff: service error", "error", err, "issue_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// Upvote handles POST /issues/{id}/upvote
func (h *Handler) Upvote(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	result, err := h.Service.ToggleUpvote(id, email)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /issues/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	result, err := h.Service.Delete(id)
	if err != nil {
		h.Logger.Error("Delete: service error", "error", err, "issue_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) issueID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid issue id", errors.ErrCodeValidationFailed))
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
