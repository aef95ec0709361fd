package payment

import (
	"encoding/json"
	"time"
)

const (
	TypePremium = "premium"
	TypeBoost   = "boost"

	// Only successful payments are ever persisted; there are no pending or
	// failed rows.
	StatusCompleted = "completed"
)

type Payment struct {
	ID int64 `gorm:"primaryKey"`

	// StripeSessionID is the idempotency key: at most one row per checkout
	// session, enforced by the unique index.
	StripeSessionID string `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	TransactionID   string `gorm:"column:transaction_id"`

	Amount   int64  `gorm:"column:amount;not null"`
	Currency string `gorm:"column:currency;not null"`

	UserEmail string  `gorm:"column:user_email;index;not null"`
	Type      string  `gorm:"column:type;not null"`
	Plan      *string `gorm:"column:plan"`
	IssueID   *int64  `gorm:"column:issue_id;index"`

	Status string    `gorm:"column:status;default:completed"`
	PaidAt time.Time `gorm:"column:paid_at"`

	CustomerDetails json.RawMessage `gorm:"column:customer_details;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}
