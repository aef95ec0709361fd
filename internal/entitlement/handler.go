package entitlement

import (
	"context"
	"encoding/json"
	"net/http"

	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/transport"
)

type ServiceAPI interface {
	CreatePremiumCheckout(ctx context.Context, userEmail string, dto PremiumCheckoutDTO) (*CheckoutResponse, error)
	CreateBoostCheckout(ctx context.Context, userEmail string, dto BoostCheckoutDTO) (*CheckoutResponse, error)
	Verify(ctx context.Context, dto VerifyDTO) (*VerifyResult, error)
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

// CreatePremiumCheckout handles POST /payments/premium/checkout
func (h *Handler) CreatePremiumCheckout(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto PremiumCheckoutDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.CreatePremiumCheckout(r.Context(), email, dto)
	if err != nil {
		h.Logger.Error("CreatePremiumCheckout: service error", "error", err, "email", email)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// CreateBoostCheckout handles POST /payments/boost/checkout
func (h *Handler) CreateBoostCheckout(w http.ResponseWriter, r *http.Request) {
	email := errors.UserEmailFromContext(r.Context())
	if email == "" {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto BoostCheckoutDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.CreateBoostCheckout(r.Context(), email, dto)
	if err != nil {
		h.Logger.Error("CreateBoostCheckout: service error", "error", err, "email", email, "issue_id", dto.IssueID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// Verify handles POST /payments/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var dto VerifyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.Verify(r.Context(), dto)
	if err != nil {
		h.Logger.Error("Verify: service error", "error", err, "session_id", dto.SessionID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyProcessed {
		status = http.StatusOK
	}
	h.WriteJSON(w, status, result)
}
