package entitlement_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/danandika/civic-report/internal"
	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
	paymentDatamodel "github.com/danandika/civic-report/internal/core/datamodel/payment"
	gatewaytypes "github.com/danandika/civic-report/internal/core/datamodel/paymentgateway"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/core/events"
	"github.com/danandika/civic-report/internal/entitlement"
	"github.com/danandika/civic-report/internal/issue"
	"github.com/danandika/civic-report/internal/user"
)

func TestEntitlement(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Entitlement Suite")
}

type mockGateway struct {
	sessions  map[string]*gatewaytypes.Session
	createErr error
	getErr    error
	nextID    int
}

func newMockGateway() *mockGateway {
	return &mockGateway{sessions: map[string]*gatewaytypes.Session{}}
}

func (m *mockGateway) CreateSession(ctx context.Context, req *gatewaytypes.SessionRequest) (*gatewaytypes.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	session := &gatewaytypes.Session{
		ID:            fmt.Sprintf("cs_test_%d", m.nextID),
		URL:           fmt.Sprintf("https://checkout.example.com/%d", m.nextID),
		PaymentStatus: gatewaytypes.PaymentStatusUnpaid,
		AmountTotal:   req.Amount,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *mockGateway) GetSession(ctx context.Context, sessionID string) (*gatewaytypes.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	return session, nil
}

func (m *mockGateway) markPaid(sessionID string) {
	m.sessions[sessionID].PaymentStatus = gatewaytypes.PaymentStatusPaid
	m.sessions[sessionID].PaymentIntent = "pi_" + sessionID
}

type mockPaymentRepo struct {
	bySession map[string]*entitlement.Payment
	nextID    int64

	createErr                  error
	deleteCalls                []int64
	deleteErr                  error
	failFirstCreateAsDuplicate bool
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{bySession: map[string]*entitlement.Payment{}, nextID: 1}
}

func (m *mockPaymentRepo) Create(p *entitlement.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.failFirstCreateAsDuplicate {
		m.failFirstCreateAsDuplicate = false
		return entitlement.ErrDuplicateSession
	}
	if _, exists := m.bySession[p.StripeSessionID]; exists {
		return entitlement.ErrDuplicateSession
	}
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.bySession[p.StripeSessionID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetBySessionID(sessionID string) (*entitlement.Payment, error) {
	p, ok := m.bySession[sessionID]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) DeleteByID(id int64) error {
	m.deleteCalls = append(m.deleteCalls, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for sessionID, p := range m.bySession {
		if p.ID == id {
			delete(m.bySession, sessionID)
		}
	}
	return nil
}

type mockUserStore struct {
	users map[string]*user.User

	grants      []grantCall
	grantErr    error
	grantNoRows bool
}

type grantCall struct {
	email     string
	plan      string
	expiresAt time.Time
	paymentID int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]*user.User{}}
}

func (m *mockUserStore) GetByEmail(email string) (*user.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserStore) GrantPremium(email, plan string, expiresAt time.Time, paymentID int64) (int64, error) {
	if m.grantErr != nil {
		return 0, m.grantErr
	}
	if m.grantNoRows {
		return 0, nil
	}
	m.grants = append(m.grants, grantCall{email: email, plan: plan, expiresAt: expiresAt, paymentID: paymentID})
	return 1, nil
}

type mockIssueStore struct {
	issues map[int64]*issue.Issue

	boosts   []boostCall
	boostErr error
}

type boostCall struct {
	issueID   int64
	paymentID int64
}

func newMockIssueStore() *mockIssueStore {
	return &mockIssueStore{issues: map[int64]*issue.Issue{}}
}

func (m *mockIssueStore) GetByID(issueID int64) (*issue.Issue, error) {
	iss, ok := m.issues[issueID]
	if !ok {
		return nil, apperrors.ErrIssueNotFound
	}
	return iss, nil
}

func (m *mockIssueStore) ApplyBoost(issueID int64, paymentID int64) (*issue.BoostResult, error) {
	if m.boostErr != nil {
		return nil, m.boostErr
	}
	if _, ok := m.issues[issueID]; !ok {
		return nil, apperrors.ErrIssueNotFound
	}
	m.boosts = append(m.boosts, boostCall{issueID: issueID, paymentID: paymentID})
	return &issue.BoostResult{ModifiedCount: 1}, nil
}

var _ = Describe("Entitlement Service", func() {
	var (
		gateway  *mockGateway
		payments *mockPaymentRepo
		users    *mockUserStore
		issues   *mockIssueStore
		svc      *entitlement.Service
		ctx      context.Context
		now      time.Time
	)

	pricing := entitlement.Pricing{
		Currency:      "usd",
		MonthlyAmount: 499,
		YearlyAmount:  4999,
		BoostAmount:   199,
		SuccessURL:    "https://civic.example.com/payments/success",
		CancelURL:     "https://civic.example.com/payments/cancel",
	}

	BeforeEach(func() {
		gateway = newMockGateway()
		payments = newMockPaymentRepo()
		users = newMockUserStore()
		issues = newMockIssueStore()
		ctx = context.Background()
		now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		bus := events.NewEventBus(logger)
		svc = entitlement.NewService(gateway, payments, users, issues, bus, pricing, logger).
			WithClock(func() time.Time { return now })

		users.users["citizen@example.com"] = &user.User{
			ID:     1,
			Email:  "citizen@example.com",
			Role:   userDatamodel.RoleUser,
			Status: userDatamodel.StatusActive,
		}
	})

	Describe("CreatePremiumCheckout", func() {
		It("packs the plan and a precomputed expiry into session metadata", func() {
			resp, err := svc.CreatePremiumCheckout(ctx, "citizen@example.com", entitlement.PremiumCheckoutDTO{
				Plan: userDatamodel.PlanMonthly,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(resp.SessionID).ToNot(BeEmpty())
			Expect(resp.CheckoutURL).ToNot(BeEmpty())

			session := gateway.sessions[resp.SessionID]
			Expect(session.AmountTotal).To(Equal(int64(499)))
			Expect(session.Metadata[gatewaytypes.MetaType]).To(Equal(paymentDatamodel.TypePremium))
			Expect(session.Metadata[gatewaytypes.MetaPlan]).To(Equal(userDatamodel.PlanMonthly))

			expiresAt, parseErr := time.Parse(time.RFC3339, session.Metadata[gatewaytypes.MetaExpiresAt])
			Expect(parseErr).ToNot(HaveOccurred())
			Expect(expiresAt.Equal(now.AddDate(0, 1, 0))).To(BeTrue())
		})

		It("prices the yearly plan with a one calendar year expiry", func() {
			resp, err := svc.CreatePremiumCheckout(ctx, "citizen@example.com", entitlement.PremiumCheckoutDTO{
				Plan: userDatamodel.PlanYearly,
			})

			Expect(err).ToNot(HaveOccurred())
			session := gateway.sessions[resp.SessionID]
			Expect(session.AmountTotal).To(Equal(int64(4999)))

			expiresAt, _ := time.Parse(time.RFC3339, session.Metadata[gatewaytypes.MetaExpiresAt])
			Expect(expiresAt.Equal(now.AddDate(1, 0, 0))).To(BeTrue())
		})

		It("rejects an unknown plan", func() {
			_, err := svc.CreatePremiumCheckout(ctx, "citizen@example.com", entitlement.PremiumCheckoutDTO{
				Plan: "weekly",
			})

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(gateway.sessions).To(BeEmpty())
		})

		It("rejects an unknown user before contacting the gateway", func() {
			_, err := svc.CreatePremiumCheckout(ctx, "ghost@example.com", entitlement.PremiumCheckoutDTO{
				Plan: userDatamodel.PlanMonthly,
			})

			Expect(err).To(Equal(apperrors.ErrUserNotFound))
			Expect(gateway.sessions).To(BeEmpty())
		})

		It("surfaces a gateway failure as an external error", func() {
			gateway.createErr = apperrors.ErrGatewayNotConfigured

			_, err := svc.CreatePremiumCheckout(ctx, "citizen@example.com", entitlement.PremiumCheckoutDTO{
				Plan: userDatamodel.PlanMonthly,
			})

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeExternal))
		})
	})

	Describe("CreateBoostCheckout", func() {
		BeforeEach(func() {
			issues.issues[10] = &issue.Issue{
				ID:          10,
				Title:       "Broken streetlight",
				SubmittedBy: "citizen@example.com",
				Status:      issueDatamodel.StatusPending,
			}
		})

		It("opens a session carrying the issue id", func() {
			resp, err := svc.CreateBoostCheckout(ctx, "citizen@example.com", entitlement.BoostCheckoutDTO{IssueID: 10})

			Expect(err).ToNot(HaveOccurred())
			session := gateway.sessions[resp.SessionID]
			Expect(session.AmountTotal).To(Equal(int64(199)))
			Expect(session.Metadata[gatewaytypes.MetaType]).To(Equal(paymentDatamodel.TypeBoost))
			Expect(session.Metadata[gatewaytypes.MetaIssueID]).To(Equal("10"))
		})

		It("refuses an already boosted issue", func() {
			issues.issues[10].IsBoosted = true

			_, err := svc.CreateBoostCheckout(ctx, "citizen@example.com", entitlement.BoostCheckoutDTO{IssueID: 10})

			Expect(err).To(Equal(apperrors.ErrAlreadyBoosted))
		})

		It("refuses a caller who does not own the issue", func() {
			_, err := svc.CreateBoostCheckout(ctx, "other@example.com", entitlement.BoostCheckoutDTO{IssueID: 10})

			Expect(err).To(Equal(apperrors.ErrNotIssueOwner))
		})

		It("refuses an issue no longer pending", func() {
			issues.issues[10].Status = issueDatamodel.StatusAssigned

			_, err := svc.CreateBoostCheckout(ctx, "citizen@example.com", entitlement.BoostCheckoutDTO{IssueID: 10})

			Expect(err).To(Equal(apperrors.ErrIssueNotPending))
		})

		It("refuses a missing issue", func() {
			_, err := svc.CreateBoostCheckout(ctx, "citizen@example.com", entitlement.BoostCheckoutDTO{IssueID: 404})

			Expect(err).To(Equal(apperrors.ErrIssueNotFound))
		})
	})

	Describe("Verify", func() {
		premiumSession := func(plan string) string {
			resp, err := svc.CreatePremiumCheckout(ctx, "citizen@example.com", entitlement.PremiumCheckoutDTO{Plan: plan})
			Expect(err).ToNot(HaveOccurred())
			return resp.SessionID
		}

		boostSession := func(issueID int64) string {
			resp, err := svc.CreateBoostCheckout(ctx, "citizen@example.com", entitlement.BoostCheckoutDTO{IssueID: issueID})
			Expect(err).ToNot(HaveOccurred())
			return resp.SessionID
		}

		Context("with an unpaid session", func() {
			It("refuses and writes nothing", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)

				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).To(Equal(apperrors.ErrPaymentNotPaid))
				Expect(payments.bySession).To(BeEmpty())
				Expect(users.grants).To(BeEmpty())
			})
		})

		Context("with a paid premium session", func() {
			It("stores the payment and grants premium with the metadata expiry", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)
				gateway.markPaid(sessionID)

				result, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AlreadyProcessed).To(BeFalse())
				Expect(result.Payment.Type).To(Equal(paymentDatamodel.TypePremium))
				Expect(result.Payment.UserEmail).To(Equal("citizen@example.com"))
				Expect(*result.Payment.Plan).To(Equal(userDatamodel.PlanMonthly))

				Expect(users.grants).To(HaveLen(1))
				Expect(users.grants[0].email).To(Equal("citizen@example.com"))
				Expect(users.grants[0].expiresAt.Equal(now.AddDate(0, 1, 0))).To(BeTrue())
				Expect(users.grants[0].paymentID).To(Equal(result.Payment.ID))
			})

			It("grants a yearly plan one calendar year", func() {
				sessionID := premiumSession(userDatamodel.PlanYearly)
				gateway.markPaid(sessionID)

				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).ToNot(HaveOccurred())
				Expect(users.grants[0].expiresAt.Equal(now.AddDate(1, 0, 0))).To(BeTrue())
			})
		})

		Context("when verification is replayed", func() {
			It("stores exactly one payment across repeated calls", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)
				gateway.markPaid(sessionID)

				first, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})
				Expect(err).ToNot(HaveOccurred())
				Expect(first.AlreadyProcessed).To(BeFalse())

				for i := 0; i < 3; i++ {
					replay, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})
					Expect(err).ToNot(HaveOccurred())
					Expect(replay.AlreadyProcessed).To(BeTrue())
					Expect(replay.Payment.ID).To(Equal(first.Payment.ID))
				}

				Expect(payments.bySession).To(HaveLen(1))
				Expect(users.grants).To(HaveLen(1))
			})
		})

		Context("when two verifications race on the unique index", func() {
			It("yields to the winning row instead of failing", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)
				gateway.markPaid(sessionID)

				winner, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})
				Expect(err).ToNot(HaveOccurred())

				// Simulate the loser: its lookup missed, its insert collides.
				delete(payments.bySession, sessionID)
				payments.failFirstCreateAsDuplicate = true
				cp := *winner.Payment
				payments.bySession[sessionID] = &cp

				result, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AlreadyProcessed).To(BeTrue())
				Expect(result.Payment.ID).To(Equal(winner.Payment.ID))
			})
		})

		Context("when the premium grant lands on no account", func() {
			It("compensates by deleting the payment row", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)
				gateway.markPaid(sessionID)
				users.grantNoRows = true

				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeEntitlementFailed))

				Expect(payments.deleteCalls).To(HaveLen(1))
				Expect(payments.bySession).To(BeEmpty())
			})

			It("leaves the flow retryable once the account is back", func() {
				sessionID := premiumSession(userDatamodel.PlanMonthly)
				gateway.markPaid(sessionID)

				users.grantNoRows = true
				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})
				Expect(err).To(HaveOccurred())

				users.grantNoRows = false
				result, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AlreadyProcessed).To(BeFalse())
				Expect(users.grants).To(HaveLen(1))
			})
		})

		Context("with a paid boost session", func() {
			BeforeEach(func() {
				issues.issues[10] = &issue.Issue{
					ID:          10,
					Title:       "Broken streetlight",
					SubmittedBy: "citizen@example.com",
					Status:      issueDatamodel.StatusPending,
				}
			})

			It("stores the payment and flips the boost", func() {
				sessionID := boostSession(10)
				gateway.markPaid(sessionID)

				result, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Payment.Type).To(Equal(paymentDatamodel.TypeBoost))
				Expect(*result.Payment.IssueID).To(Equal(int64(10)))

				Expect(issues.boosts).To(HaveLen(1))
				Expect(issues.boosts[0].issueID).To(Equal(int64(10)))
				Expect(issues.boosts[0].paymentID).To(Equal(result.Payment.ID))
			})

			It("compensates when the issue vanished before the boost write", func() {
				sessionID := boostSession(10)
				gateway.markPaid(sessionID)
				delete(issues.issues, 10)

				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: sessionID})

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeEntitlementFailed))
				Expect(payments.bySession).To(BeEmpty())
			})
		})

		Context("with an unknown session", func() {
			It("returns not found from the gateway", func() {
				_, err := svc.Verify(ctx, entitlement.VerifyDTO{SessionID: "cs_test_missing"})

				Expect(err).To(Equal(apperrors.ErrPaymentNotFound))
			})
		})
	})
})
