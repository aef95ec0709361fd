package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentVerified  = "payment.verified"
	EventTypePremiumActivated = "premium.activated"
	EventTypeIssueBoosted     = "issue.boosted"
)

type PaymentVerifiedEvent struct {
	BaseEvent
	PaymentID       int64  `json:"payment_id"`
	StripeSessionID string `json:"stripe_session_id"`
	UserEmail       string `json:"user_email"`
	PaymentType     string `json:"payment_type"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func NewPaymentVerifiedEvent(paymentID int64, sessionID, userEmail, paymentType string, amount int64, currency string) *PaymentVerifiedEvent {
	return &PaymentVerifiedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentVerified,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":        paymentID,
				"stripe_session_id": sessionID,
				"user_email":        userEmail,
				"payment_type":      paymentType,
				"amount":            amount,
				"currency":          currency,
			},
		},
		PaymentID:       paymentID,
		StripeSessionID: sessionID,
		UserEmail:       userEmail,
		PaymentType:     paymentType,
		Amount:          amount,
		Currency:        currency,
	}
}

type PremiumActivatedEvent struct {
	BaseEvent
	UserEmail string    `json:"user_email"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	PaymentID int64     `json:"payment_id"`
}

func NewPremiumActivatedEvent(userEmail, plan string, expiresAt time.Time, paymentID int64) *PremiumActivatedEvent {
	return &PremiumActivatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePremiumActivated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_email": userEmail,
				"plan":       plan,
				"expires_at": expiresAt,
				"payment_id": paymentID,
			},
		},
		UserEmail: userEmail,
		Plan:      plan,
		ExpiresAt: expiresAt,
		PaymentID: paymentID,
	}
}

type IssueBoostedEvent struct {
	BaseEvent
	IssueID   int64  `json:"issue_id"`
	UserEmail string `json:"user_email"`
	PaymentID int64  `json:"payment_id"`
}

func NewIssueBoostedEvent(issueID int64, userEmail string, paymentID int64) *IssueBoostedEvent {
	return &IssueBoostedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIssueBoosted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"issue_id":   issueID,
				"user_email": userEmail,
				"payment_id": paymentID,
			},
		},
		IssueID:   issueID,
		UserEmail: userEmail,
		PaymentID: paymentID,
	}
}
