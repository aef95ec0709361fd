package quota

import (
	"encoding/json"
	"time"

	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
)

// DefaultFreeIssueLimit is the report cap seeded onto free accounts.
const DefaultFreeIssueLimit = 3

// Snapshot is the slice of a user record the enforcer needs. It is taken once
// per request; the enforcer itself never touches storage.
type Snapshot struct {
	Role             string
	IsPremium        bool
	PremiumExpiresAt *time.Time
}

// Allowance is the outcome of a quota check. Remaining is meaningless when
// Unlimited is set.
type Allowance struct {
	CanReportMore bool
	Unlimited     bool
	Remaining     int64
}

// RemainingIssues renders the allowance the way the API reports it: a number,
// or the string "unlimited".
func (a Allowance) RemainingIssues() interface{} {
	if a.Unlimited {
		return "unlimited"
	}
	return a.Remaining
}

func (a Allowance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CanReportMore   bool        `json:"can_report_more"`
		RemainingIssues interface{} `json:"remaining_issues"`
	}{
		CanReportMore:   a.CanReportMore,
		RemainingIssues: a.RemainingIssues(),
	})
}

// Enforce computes the remaining report allowance. Staff and admin accounts
// are never capped; an unexpired premium subscription lifts the cap too.
// Everyone else gets the configured free limit.
func Enforce(s Snapshot, issueCount int64, limit int, now time.Time) Allowance {
	if s.Role == userDatamodel.RoleStaff || s.Role == userDatamodel.RoleAdmin {
		return Allowance{CanReportMore: true, Unlimited: true}
	}

	if s.IsPremium && !Expired(s.PremiumExpiresAt, now) {
		return Allowance{CanReportMore: true, Unlimited: true}
	}

	if limit <= 0 {
		limit = DefaultFreeIssueLimit
	}

	remaining := int64(limit) - issueCount
	if remaining < 0 {
		remaining = 0
	}

	return Allowance{
		CanReportMore: issueCount < int64(limit),
		Remaining:     remaining,
	}
}

// Expired reports whether a premium expiry timestamp has passed. A nil
// expiry never expires.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.Before(now)
}
