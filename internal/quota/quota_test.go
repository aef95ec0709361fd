package quota_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/quota"
)

func TestQuota(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Quota Suite")
}

var _ = Describe("Enforce", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Context("for staff and admin accounts", func() {
		It("is unlimited regardless of count", func() {
			for _, role := range []string{userDatamodel.RoleStaff, userDatamodel.RoleAdmin} {
				allowance := quota.Enforce(quota.Snapshot{Role: role}, 500, 3, now)
				Expect(allowance.Unlimited).To(BeTrue())
				Expect(allowance.CanReportMore).To(BeTrue())
				Expect(allowance.RemainingIssues()).To(Equal("unlimited"))
			}
		})
	})

	Context("for active premium subscribers", func() {
		It("is unlimited while the subscription has not expired", func() {
			expires := now.AddDate(0, 1, 0)
			allowance := quota.Enforce(quota.Snapshot{
				Role:             userDatamodel.RoleUser,
				IsPremium:        true,
				PremiumExpiresAt: &expires,
			}, 10, 3, now)

			Expect(allowance.Unlimited).To(BeTrue())
			Expect(allowance.CanReportMore).To(BeTrue())
		})

		It("falls back to the free cap once expired", func() {
			expires := now.Add(-time.Hour)
			allowance := quota.Enforce(quota.Snapshot{
				Role:             userDatamodel.RoleUser,
				IsPremium:        true,
				PremiumExpiresAt: &expires,
			}, 3, 3, now)

			Expect(allowance.Unlimited).To(BeFalse())
			Expect(allowance.CanReportMore).To(BeFalse())
			Expect(allowance.Remaining).To(Equal(int64(0)))
		})

		It("treats a premium flag with no expiry as unlimited", func() {
			allowance := quota.Enforce(quota.Snapshot{
				Role:      userDatamodel.RoleUser,
				IsPremium: true,
			}, 10, 3, now)

			Expect(allowance.Unlimited).To(BeTrue())
		})
	})

	Context("for free accounts", func() {
		It("allows reporting below the cap", func() {
			allowance := quota.Enforce(quota.Snapshot{Role: userDatamodel.RoleUser}, 2, 3, now)
			Expect(allowance.CanReportMore).To(BeTrue())
			Expect(allowance.Remaining).To(Equal(int64(1)))
			Expect(allowance.RemainingIssues()).To(Equal(int64(1)))
		})

		It("blocks the report that would exceed the cap", func() {
			allowance := quota.Enforce(quota.Snapshot{Role: userDatamodel.RoleUser}, 3, 3, now)
			Expect(allowance.CanReportMore).To(BeFalse())
			Expect(allowance.Remaining).To(Equal(int64(0)))
		})

		It("never reports negative remaining when storage overshot the cap", func() {
			allowance := quota.Enforce(quota.Snapshot{Role: userDatamodel.RoleUser}, 7, 3, now)
			Expect(allowance.Remaining).To(Equal(int64(0)))
			Expect(allowance.CanReportMore).To(BeFalse())
		})

		It("uses the default limit when given a nonsensical one", func() {
			allowance := quota.Enforce(quota.Snapshot{Role: userDatamodel.RoleUser}, 1, 0, now)
			Expect(allowance.Remaining).To(Equal(int64(quota.DefaultFreeIssueLimit - 1)))
		})
	})
})

var _ = Describe("Expired", func() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	It("is false for nil expiry", func() {
		Expect(quota.Expired(nil, now)).To(BeFalse())
	})

	It("is true only once the timestamp has passed", func() {
		past := now.Add(-time.Second)
		future := now.Add(time.Second)
		Expect(quota.Expired(&past, now)).To(BeTrue())
		Expect(quota.Expired(&future, now)).To(BeFalse())
	})
})
