package user

import (
	"fmt"
	"time"

	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/quota"
)

// PlanExpiry computes the subscription expiry for a plan purchased at the
// given instant: one calendar month for monthly, one calendar year for
// yearly. Computed before the gateway is contacted so verification applies a
// deterministic value.
func PlanExpiry(plan string, now time.Time) (time.Time, error) {
	switch plan {
	case userDatamodel.PlanMonthly:
		return now.AddDate(0, 1, 0), nil
	case userDatamodel.PlanYearly:
		return now.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown premium plan %q", plan)
	}
}

// PremiumActive is the effective premium state: the stored flag gated by the
// expiry timestamp.
func PremiumActive(u *User, now time.Time) bool {
	return u.IsPremium && !quota.Expired(u.PremiumExpiresAt, now)
}

// PremiumExpired reports a stale stored flag: isPremium still true while the
// expiry has passed. Read paths that see this correct storage lazily.
func PremiumExpired(u *User, now time.Time) bool {
	return u.IsPremium && quota.Expired(u.PremiumExpiresAt, now)
}
