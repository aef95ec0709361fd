package user

import (
	"encoding/json"
	"time"
)

// Role values. Status is derived: blocked and rejected accounts are inactive,
// everything else is active.
const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleRejected = "rejected"
	RoleBlocked  = "blocked"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

type User struct {
	ID           int64  `gorm:"primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	Name         string `gorm:"column:name;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;default:user"`
	Status       string `gorm:"column:status;default:active"`
	MaxIssues    int    `gorm:"column:max_issues;default:3"`

	IsPremium        bool       `gorm:"column:is_premium;default:false"`
	PremiumPlan      *string    `gorm:"column:premium_plan"`
	PremiumExpiresAt *time.Time `gorm:"column:premium_expires_at"`
	PremiumPaymentID *int64     `gorm:"column:premium_payment_id"`

	AssignedIssuesCount int             `gorm:"column:assigned_issues_count;default:0"`
	ResolvedIssuesCount int             `gorm:"column:resolved_issues_count;default:0"`
	RejectedIssuesCount int             `gorm:"column:rejected_issues_count;default:0"`
	AssignedIssues      json.RawMessage `gorm:"column:assigned_issues;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

// AssignmentEntry is one element of the denormalized assigned_issues log kept
// on staff accounts. The issue collection stays authoritative.
type AssignmentEntry struct {
	IssueID    int64     `json:"issue_id"`
	IssueTitle string    `json:"issue_title"`
	AssignedAt time.Time `json:"assigned_at"`
	Status     string    `json:"status"`
}

// StatusForRole derives account status from role.
func StatusForRole(role string) string {
	if role == RoleBlocked || role == RoleRejected {
		return StatusInactive
	}
	return StatusActive
}

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleStaff, RoleRejected, RoleBlocked:
		return true
	}
	return false
}

func ValidPlan(plan string) bool {
	return plan == PlanMonthly || plan == PlanYearly
}
