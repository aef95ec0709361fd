package user

import (
	"encoding/json"
	"errors"
	"time"

	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
)

// User is the domain view of a citizen, staff or admin account.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	MaxIssues    int    `json:"max_issues"`

	IsPremium        bool       `json:"is_premium"`
	PremiumPlan      *string    `json:"premium_plan,omitempty"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	PremiumPaymentID *int64     `json:"premium_payment_id,omitempty"`

	AssignedIssuesCount int               `json:"assigned_issues_count"`
	ResolvedIssuesCount int               `json:"resolved_issues_count"`
	RejectedIssuesCount int               `json:"rejected_issues_count"`
	AssignedIssues      []AssignmentEntry `json:"assigned_issues,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignmentEntry mirrors the denormalized assignment log on staff accounts.
// It is a cache for dashboards; the issue collection stays authoritative.
type AssignmentEntry struct {
	IssueID    int64     `json:"issue_id"`
	IssueTitle string    `json:"issue_title"`
	AssignedAt time.Time `json:"assigned_at"`
	Status     string    `json:"status"`
}

var ErrNotFound = errors.New("user not found")
var ErrDuplicateEmail = errors.New("email already registered")

func (u *User) IsStaff() bool {
	return u.Role == userDatamodel.RoleStaff
}

func (u *User) IsAdmin() bool {
	return u.Role == userDatamodel.RoleAdmin
}

// Inactive accounts (blocked or rejected) cannot own newly created issues.
func (u *User) Inactive() bool {
	return u.Role == userDatamodel.RoleBlocked || u.Role == userDatamodel.RoleRejected
}

func ToDataModel(u *User) *userDatamodel.User {
	var log json.RawMessage
	if len(u.AssignedIssues) > 0 {
		log, _ = json.Marshal(u.AssignedIssues)
	}
	return &userDatamodel.User{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		PasswordHash:        u.PasswordHash,
		Role:                u.Role,
		Status:              u.Status,
		MaxIssues:           u.MaxIssues,
		IsPremium:           u.IsPremium,
		PremiumPlan:         u.PremiumPlan,
		PremiumExpiresAt:    u.PremiumExpiresAt,
		PremiumPaymentID:    u.PremiumPaymentID,
		AssignedIssuesCount: u.AssignedIssuesCount,
		ResolvedIssuesCount: u.ResolvedIssuesCount,
		RejectedIssuesCount: u.RejectedIssuesCount,
		AssignedIssues:      log,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func FromDataModel(m *userDatamodel.User) *User {
	var log []AssignmentEntry
	if len(m.AssignedIssues) > 0 {
		_ = json.Unmarshal(m.AssignedIssues, &log)
	}
	return &User{
		ID:                  m.ID,
		Email:               m.Email,
		Name:                m.Name,
		PasswordHash:        m.PasswordHash,
		Role:                m.Role,
		Status:              m.Status,
		MaxIssues:           m.MaxIssues,
		IsPremium:           m.IsPremium,
		PremiumPlan:         m.PremiumPlan,
		PremiumExpiresAt:    m.PremiumExpiresAt,
		PremiumPaymentID:    m.PremiumPaymentID,
		AssignedIssuesCount: m.AssignedIssuesCount,
		ResolvedIssuesCount: m.ResolvedIssuesCount,
		RejectedIssuesCount: m.RejectedIssuesCount,
		AssignedIssues:      log,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
