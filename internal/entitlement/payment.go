package entitlement

import (
	"encoding/json"
	"errors"
	"time"

	paymentDatamodel "github.com/danandika/civic-report/internal/core/datamodel/payment"
	gatewaytypes "github.com/danandika/civic-report/internal/core/datamodel/paymentgateway"
)

// Payment is the domain record of a completed purchase. Only paid sessions
// are ever persisted; an unpaid or abandoned checkout has no row.
type Payment struct {
	ID              int64  `json:"id"`
	StripeSessionID string `json:"stripe_session_id"`
	TransactionID   string `json:"transaction_id,omitempty"`

	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	UserEmail string  `json:"user_email"`
	Type      string  `json:"type"`
	Plan      *string `json:"plan,omitempty"`
	IssueID   *int64  `json:"issue_id,omitempty"`

	Status string    `json:"status"`
	PaidAt time.Time `json:"paid_at"`

	CustomerDetails *gatewaytypes.CustomerDetails `json:"customer_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicateSession = errors.New("payment for session already recorded")
)

func ToDataModel(p *Payment) *paymentDatamodel.Payment {
	var details json.RawMessage
	if p.CustomerDetails != nil {
		details, _ = json.Marshal(p.CustomerDetails)
	}
	return &paymentDatamodel.Payment{
		ID:              p.ID,
		StripeSessionID: p.StripeSessionID,
		TransactionID:   p.TransactionID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		UserEmail:       p.UserEmail,
		Type:            p.Type,
		Plan:            p.Plan,
		IssueID:         p.IssueID,
		Status:          p.Status,
		PaidAt:          p.PaidAt,
		CustomerDetails: details,
		CreatedAt:       p.CreatedAt,
	}
}

func FromDataModel(m *paymentDatamodel.Payment) *Payment {
	var details *gatewaytypes.CustomerDetails
	if len(m.CustomerDetails) > 0 {
		details = &gatewaytypes.CustomerDetails{}
		_ = json.Unmarshal(m.CustomerDetails, details)
	}
	return &Payment{
		ID:              m.ID,
		StripeSessionID: m.StripeSessionID,
		TransactionID:   m.TransactionID,
		Amount:          m.Amount,
		Currency:        m.Currency,
		UserEmail:       m.UserEmail,
		Type:            m.Type,
		Plan:            m.Plan,
		IssueID:         m.IssueID,
		Status:          m.Status,
		PaidAt:          m.PaidAt,
		CustomerDetails: details,
		CreatedAt:       m.CreatedAt,
	}
}
