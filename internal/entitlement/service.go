package entitlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	errors "github.com/danandika/civic-report/internal"
	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
	paymentDatamodel "github.com/danandika/civic-report/internal/core/datamodel/payment"
	gatewaytypes "github.com/danandika/civic-report/internal/core/datamodel/paymentgateway"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/core/events"
	"github.com/danandika/civic-report/internal/issue"
	"github.com/danandika/civic-report/internal/user"
)

// Gateway is the slice of the payment provider the entitlement flow needs.
type Gateway interface {
	CreateSession(ctx context.Context, req *gatewaytypes.SessionRequest) (*gatewaytypes.Session, error)
	GetSession(ctx context.Context, sessionID string) (*gatewaytypes.Session, error)
}

type Repository interface {
	Create(p *Payment) error
	GetBySessionID(sessionID string) (*Payment, error)
	DeleteByID(id int64) error
}

type UserStore interface {
	GetByEmail(email string) (*user.User, error)
	GrantPremium(email, plan string, expiresAt time.Time, paymentID int64) (int64, error)
}

type IssueStore interface {
	GetByID(issueID int64) (*issue.Issue, error)
	ApplyBoost(issueID int64, paymentID int64) (*issue.BoostResult, error)
}

// Pricing carries the checkout amounts and redirect URLs, in the smallest
// currency unit.
type Pricing struct {
	Currency      string
	MonthlyAmount int64
	YearlyAmount  int64
	BoostAmount   int64
	SuccessURL    string
	CancelURL     string
}

type Service struct {
	gateway  Gateway
	payments Repository
	users    UserStore
	issues   IssueStore
	eventBus *events.EventBus
	pricing  Pricing
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(gateway Gateway, payments Repository, users UserStore, issues IssueStore, eventBus *events.EventBus, pricing Pricing, logger *slog.Logger) *Service {
	return &Service{
		gateway:  gateway,
		payments: payments,
		users:    users,
		issues:   issues,
		eventBus: eventBus,
		pricing:  pricing,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatePremiumCheckout opens a checkout session for a subscription. The
// expiry is computed here, before the gateway is contacted, and rides in the
// session metadata so verification applies the same instant no matter when it
// runs. Nothing is written locally.
func (s *Service) CreatePremiumCheckout(ctx context.Context, userEmail string, dto PremiumCheckoutDTO) (*CheckoutResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(userEmail)
	if err != nil {
		return nil, err
	}

	expiresAt, err := user.PlanExpiry(dto.Plan, s.now())
	if err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidPlan)
	}

	amount := s.pricing.MonthlyAmount
	if dto.Plan == userDatamodel.PlanYearly {
		amount = s.pricing.YearlyAmount
	}

	session, err := s.gateway.CreateSession(ctx, &gatewaytypes.SessionRequest{
		Amount:      amount,
		Currency:    s.pricing.Currency,
		ProductName: fmt.Sprintf("Premium subscription (%s)", dto.Plan),
		SuccessURL:  s.pricing.SuccessURL,
		CancelURL:   s.pricing.CancelURL,
		Metadata: map[string]string{
			gatewaytypes.MetaType:      paymentDatamodel.TypePremium,
			gatewaytypes.MetaUserEmail: u.Email,
			gatewaytypes.MetaPlan:      dto.Plan,
			gatewaytypes.MetaExpiresAt: expiresAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("premium checkout created",
		"email", u.Email,
		"plan", dto.Plan,
		"session_id", session.ID)

	return &CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// CreateBoostCheckout opens a checkout session for boosting one issue.
// Preconditions are checked here and only here; verification trusts them.
func (s *Service) CreateBoostCheckout(ctx context.Context, userEmail string, dto BoostCheckoutDTO) (*CheckoutResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	iss, err := s.issues.GetByID(dto.IssueID)
	if err != nil {
		return nil, err
	}

	if iss.IsBoosted {
		return nil, errors.ErrAlreadyBoosted
	}
	if iss.SubmittedBy != userEmail {
		return nil, errors.ErrNotIssueOwner
	}
	if iss.Status != issueDatamodel.StatusPending {
		return nil, errors.ErrIssueNotPending
	}

	session, err := s.gateway.CreateSession(ctx, &gatewaytypes.SessionRequest{
		Amount:      s.pricing.BoostAmount,
		Currency:    s.pricing.Currency,
		ProductName: "Issue boost",
		SuccessURL:  s.pricing.SuccessURL,
		CancelURL:   s.pricing.CancelURL,
		Metadata: map[string]string{
			gatewaytypes.MetaType:      paymentDatamodel.TypeBoost,
			gatewaytypes.MetaUserEmail: userEmail,
			gatewaytypes.MetaIssueID:   strconv.FormatInt(dto.IssueID, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("boost checkout created",
		"email", userEmail,
		"issue_id", dto.IssueID,
		"session_id", session.ID)

	return &CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// Verify reconciles a checkout session into a payment row plus the
// entitlement it bought. The session id is the idempotency key: a stored
// payment for it short-circuits to a replay, so clients can call this any
// number of times. When the entitlement write lands on nothing, the payment
// row is deleted again so a later retry starts clean.
func (s *Service) Verify(ctx context.Context, dto VerifyDTO) (*VerifyResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	session, err := s.gateway.GetSession(ctx, dto.SessionID)
	if err != nil {
		return nil, err
	}

	if !session.Paid() {
		s.logger.Warn("verification on unpaid session", "session_id", session.ID, "status", session.PaymentStatus)
		return nil, errors.ErrPaymentNotPaid
	}

	if existing, err := s.payments.GetBySessionID(session.ID); err == nil {
		s.logger.Info("verification replay, returning stored payment",
			"session_id", session.ID,
			"payment_id", existing.ID)
		return &VerifyResult{Payment: existing, AlreadyProcessed: true}, nil
	} else if !stderrors.Is(err, ErrNotFound) {
		return nil, errors.NewInternalError("failed to look up payment", err)
	}

	payment, err := s.paymentFromSession(session)
	if err != nil {
		return nil, err
	}

	if err := s.payments.Create(payment); err != nil {
		if stderrors.Is(err, ErrDuplicateSession) {
			// Lost a verification race; the other call's row wins.
			stored, getErr := s.payments.GetBySessionID(session.ID)
			if getErr == nil {
				return &VerifyResult{Payment: stored, AlreadyProcessed: true}, nil
			}
			return nil, errors.NewConflictError("payment already being processed", errors.ErrCodeDuplicateSession)
		}
		s.logger.Error("failed to store payment", "error", err, "session_id", session.ID)
		return nil, errors.NewInternalError("failed to store payment", err)
	}

	if err := s.applyEntitlement(ctx, payment, session); err != nil {
		return nil, err
	}

	s.publishVerified(ctx, payment)

	return &VerifyResult{Payment: payment, AlreadyProcessed: false}, nil
}

func (s *Service) paymentFromSession(session *gatewaytypes.Session) (*Payment, error) {
	paymentType := session.Metadata[gatewaytypes.MetaType]
	userEmail := session.Metadata[gatewaytypes.MetaUserEmail]
	if userEmail == "" {
		return nil, errors.NewInternalError("session metadata missing user email", nil)
	}

	now := s.now()
	payment := &Payment{
		StripeSessionID: session.ID,
		TransactionID:   session.PaymentIntent,
		Amount:          session.AmountTotal,
		Currency:        session.Currency,
		UserEmail:       userEmail,
		Type:            paymentType,
		Status:          paymentDatamodel.StatusCompleted,
		PaidAt:          now,
		CreatedAt:       now,
	}
	if session.CustomerDetails.Email != "" || session.CustomerDetails.Name != "" {
		details := session.CustomerDetails
		payment.CustomerDetails = &details
	}

	switch paymentType {
	case paymentDatamodel.TypePremium:
		plan := session.Metadata[gatewaytypes.MetaPlan]
		if plan == "" {
			return nil, errors.NewInternalError("session metadata missing plan", nil)
		}
		payment.Plan = &plan
	case paymentDatamodel.TypeBoost:
		issueID, err := strconv.ParseInt(session.Metadata[gatewaytypes.MetaIssueID], 10, 64)
		if err != nil {
			return nil, errors.NewInternalError("session metadata carries no usable issue id", err)
		}
		payment.IssueID = &issueID
	default:
		return nil, errors.NewInternalError(fmt.Sprintf("unknown payment type %q in session metadata", paymentType), nil)
	}

	return payment, nil
}

func (s *Service) applyEntitlement(ctx context.Context, payment *Payment, session *gatewaytypes.Session) error {
	switch payment.Type {
	case paymentDatamodel.TypePremium:
		expiresAt, err := time.Parse(time.RFC3339, session.Metadata[gatewaytypes.MetaExpiresAt])
		if err != nil {
			// The metadata should carry the instant computed at checkout;
			// recompute from the plan when it does not parse.
			s.logger.Warn("expiry metadata unusable, recomputing from plan",
				"session_id", session.ID,
				"value", session.Metadata[gatewaytypes.MetaExpiresAt])
			expiresAt, err = user.PlanExpiry(*payment.Plan, s.now())
			if err != nil {
				return s.compensate(payment, errors.NewInternalError("cannot determine premium expiry", err))
			}
		}

		modified, err := s.users.GrantPremium(payment.UserEmail, *payment.Plan, expiresAt, payment.ID)
		if err != nil {
			return s.compensate(payment, errors.NewInternalError("premium grant failed", err))
		}
		if modified == 0 {
			return s.compensate(payment,
				errors.NewInternalError("premium grant touched no account", nil))
		}

		s.eventBus.Publish(ctx, events.NewPremiumActivatedEvent(payment.UserEmail, *payment.Plan, expiresAt, payment.ID))
		return nil

	case paymentDatamodel.TypeBoost:
		result, err := s.issues.ApplyBoost(*payment.IssueID, payment.ID)
		if err != nil {
			return s.compensate(payment, errors.NewInternalError("boost write failed", err))
		}
		if result.ModifiedCount == 0 {
			return s.compensate(payment,
				errors.NewInternalError("boost touched no issue", nil))
		}

		s.eventBus.Publish(ctx, events.NewIssueBoostedEvent(*payment.IssueID, payment.UserEmail, payment.ID))
		return nil
	}

	return s.compensate(payment, errors.NewInternalError("unknown payment type", nil))
}

// compensate removes the payment row written just before a failed entitlement
// write, returning the flow to a retryable state. If the delete itself fails
// the row stays orphaned and needs operator attention.
func (s *Service) compensate(payment *Payment, cause *errors.AppError) error {
	s.logger.Error("entitlement write failed, compensating payment row",
		"payment_id", payment.ID,
		"session_id", payment.StripeSessionID,
		"type", payment.Type,
		"cause", cause.Message)

	if err := s.payments.DeleteByID(payment.ID); err != nil {
		s.logger.Error("compensation delete failed, payment row orphaned",
			"payment_id", payment.ID,
			"session_id", payment.StripeSessionID,
			"error", err)
	}

	cause.Code = errors.ErrCodeEntitlementFailed
	return cause
}

func (s *Service) publishVerified(ctx context.Context, payment *Payment) {
	event := events.NewPaymentVerifiedEvent(
		payment.ID,
		payment.StripeSessionID,
		payment.UserEmail,
		payment.Type,
		payment.Amount,
		payment.Currency,
	)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish payment verified event", "error", err, "payment_id", payment.ID)
	}
}
