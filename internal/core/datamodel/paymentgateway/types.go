package paymentgateway

import (
	"errors"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Metadata keys packed into the checkout session at creation time. Everything
// the verification step needs to reconcile the payment travels with the
// session, so an abandoned checkout leaves nothing behind locally.
const (
	MetaType      = "type"
	MetaUserEmail = "user_email"
	MetaPlan      = "plan"
	MetaExpiresAt = "expires_at"
	MetaIssueID   = "issue_id"
)

type SessionRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	ProductName string            `json:"product_name"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata"`
}

func (r *SessionRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if len(r.Metadata) == 0 {
		return errors.New("metadata is required")
	}
	return nil
}

type CustomerDetails struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	PaymentIntent   string            `json:"payment_intent"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails CustomerDetails   `json:"customer_details"`
}

func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}
