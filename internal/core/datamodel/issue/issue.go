package issue

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in-progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
)

type Issue struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"column:title;not null"`
	Description string `gorm:"column:description"`
	Category    string `gorm:"column:category"`
	Location    string `gorm:"column:location"`

	SubmittedBy string `gorm:"column:submitted_by;index;not null"`
	// Role snapshot taken at creation time. Authorization history must not
	// drift if the submitter's role later changes.
	SubmittedByRole string `gorm:"column:submitted_by_role;not null"`

	Status string `gorm:"column:status;default:pending"`

	IsBoosted      bool       `gorm:"column:is_boosted;default:false"`
	BoostedAt      *time.Time `gorm:"column:boosted_at"`
	BoostPaymentID *int64     `gorm:"column:boost_payment_id"`

	Upvotes   int             `gorm:"column:upvotes;default:0"`
	UpvotedBy json.RawMessage `gorm:"column:upvoted_by;type:jsonb"`

	AssignedStaffID    *int64     `gorm:"column:assigned_staff_id"`
	AssignedStaffEmail *string    `gorm:"column:assigned_staff_email"`
	AssignedStaffName  *string    `gorm:"column:assigned_staff_name"`
	AssignedAt         *time.Time `gorm:"column:assigned_at"`

	ResolvedAt *time.Time `gorm:"column:resolved_at"`
	RejectedAt *time.Time `gorm:"column:rejected_at"`
	RejectedBy *string    `gorm:"column:rejected_by"`

	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

func TerminalStatus(status string) bool {
	return status == StatusResolved || status == StatusRejected
}
