package user

import (
	"log/slog"
	"time"

	errors "github.com/danandika/civic-report/internal"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/quota"
)

// Repository defines the data access methods for user accounts.
type Repository interface {
	Create(u *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id int64) (*User, error)
	UpdateRole(email, role, status string) (int64, error)
	ClearPremium(email string) error
	GrantPremium(email, plan string, expiresAt time.Time, paymentID int64) (int64, error)
	AppendAssignment(staffID int64, entry AssignmentEntry) error
	IncrementResolvedCount(staffID int64) error
	IncrementRejectedCount(staffID int64) error
	Delete(id int64) (int64, error)
}

// IssueStore is the slice of the issue repository the user service needs for
// counting and cascade deletion.
type IssueStore interface {
	CountBySubmitter(email string) (int64, error)
	DeleteBySubmitter(email string) (int64, error)
}

// PaymentStore is the slice of the payment repository used by the delete
// cascade.
type PaymentStore interface {
	DeleteByUserEmail(email string) (int64, error)
}

type Service struct {
	repo       Repository
	issues     IssueStore
	payments   PaymentStore
	freeLimit  int
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, issues IssueStore, payments PaymentStore, freeLimit int, logger *slog.Logger) *Service {
	if freeLimit <= 0 {
		freeLimit = quota.DefaultFreeIssueLimit
	}
	return &Service{
		repo:      repo,
		issues:    issues,
		payments:  payments,
		freeLimit: freeLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source, used by tests exercising expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates an account on first signup. Signing up again with the same
// email is a no-op returning the existing account, so retried requests stay
// safe. The returned bool reports whether a new account was created.
func (s *Service) Register(dto RegisterDTO) (*User, bool, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("signup validation failed", "error", err, "email", dto.Email)
		return nil, false, err
	}

	if existing, err := s.repo.GetByEmail(dto.Email); err == nil {
		s.logger.Info("signup for existing account, returning as-is", "email", dto.Email)
		return existing, false, nil
	}

	now := s.now()
	u := &User{
		Email:        dto.Email,
		Name:         dto.Name,
		PasswordHash: dto.PasswordHash,
		Role:         userDatamodel.RoleUser,
		Status:       userDatamodel.StatusActive,
		MaxIssues:    s.freeLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(u); err != nil {
		if err == ErrDuplicateEmail {
			// Lost a signup race; the other request's row wins.
			existing, getErr := s.repo.GetByEmail(dto.Email)
			if getErr == nil {
				return existing, false, nil
			}
		}
		s.logger.Error("failed to create user", "error", err, "email", dto.Email)
		return nil, false, errors.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user registered", "user_id", u.ID, "email", u.Email)
	return u, true, nil
}

// GetByEmail fetches a user and applies the lazy premium-expiry correction:
// when the stored flag says premium but the expiry has passed, the caller
// sees isPremium=false and a best-effort corrective write goes back to
// storage. There is no background sweep; staleness lasts until the next read.
func (s *Service) GetByEmail(email string) (*User, error) {
	u, err := s.repo.GetByEmail(email)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		s.logger.Error("failed to get user", "error", err, "email", email)
		return nil, errors.NewInternalError("failed to get user", err)
	}

	if PremiumExpired(u, s.now()) {
		s.logger.Info("premium expired, correcting stored flag",
			"email", u.Email,
			"expired_at", u.PremiumExpiresAt)

		if err := s.repo.ClearPremium(u.Email); err != nil {
			s.logger.Warn("premium correction write failed, will retry on next read",
				"error", err, "email", u.Email)
		}
		u.IsPremium = false
	}

	return u, nil
}

func (s *Service) GetByID(id int64) (*User, error) {
	u, err := s.repo.GetByID(id)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		s.logger.Error("failed to get user", "error", err, "user_id", id)
		return nil, errors.NewInternalError("failed to get user", err)
	}
	return u, nil
}

// Profile returns the stored record plus the computed allowance, re-running
// the quota check at read time.
func (s *Service) Profile(email string) (*ProfileView, error) {
	u, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}

	count, err := s.issues.CountBySubmitter(u.Email)
	if err != nil {
		s.logger.Error("failed to count issues for profile", "error", err, "email", u.Email)
		return nil, errors.NewInternalError("failed to count issues", err)
	}

	allowance := quota.Enforce(quota.Snapshot{
		Role:             u.Role,
		IsPremium:        u.IsPremium,
		PremiumExpiresAt: u.PremiumExpiresAt,
	}, count, u.MaxIssues, s.now())

	return &ProfileView{User: u, IssueCount: count, Allowance: allowance}, nil
}

func (s *Service) Stats(email string) (*StatsView, error) {
	profile, err := s.Profile(email)
	if err != nil {
		return nil, err
	}

	u := profile.User
	return &StatsView{
		Email:               u.Email,
		Role:                u.Role,
		IsPremium:           u.IsPremium,
		IssueCount:          profile.IssueCount,
		Allowance:           profile.Allowance,
		AssignedIssuesCount: u.AssignedIssuesCount,
		ResolvedIssuesCount: u.ResolvedIssuesCount,
		RejectedIssuesCount: u.RejectedIssuesCount,
	}, nil
}

// GrantPremium stamps premium state onto the account row and reports how
// many rows were written. Zero means the account vanished between the payment
// and the grant; the caller decides what to do with the orphaned payment.
func (s *Service) GrantPremium(email, plan string, expiresAt time.Time, paymentID int64) (int64, error) {
	modified, err := s.repo.GrantPremium(email, plan, expiresAt, paymentID)
	if err != nil {
		s.logger.Error("premium grant write failed", "error", err, "email", email)
		return 0, err
	}

	s.logger.Info("premium granted",
		"email", email,
		"plan", plan,
		"expires_at", expiresAt,
		"payment_id", paymentID,
		"modified", modified)

	return modified, nil
}

// UpdateRole changes an account's role; status is derived from the new role.
func (s *Service) UpdateRole(email string, dto UpdateRoleDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	status := userDatamodel.StatusForRole(dto.Role)
	modified, err := s.repo.UpdateRole(email, dto.Role, status)
	if err != nil {
		s.logger.Error("failed to update role", "error", err, "email", email, "role", dto.Role)
		return nil, errors.NewInternalError("failed to update role", err)
	}
	if modified == 0 {
		return nil, errors.ErrUserNotFound
	}

	s.logger.Info("user role updated", "email", email, "role", dto.Role, "status", status)
	return s.repo.GetByEmail(email)
}

// Delete removes an account and cascades to its issues and payments.
// Dependents go first (payments, then issues, then the user row) and every
// step is idempotent, so a cascade interrupted by a crash can be retried to
// completion. The steps are still not atomic as a whole.
func (s *Service) Delete(id int64) (*DeleteResult, error) {
	u, err := s.repo.GetByID(id)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.NewInternalError("failed to get user", err)
	}

	payments, err := s.payments.DeleteByUserEmail(u.Email)
	if err != nil {
		s.logger.Error("cascade payment delete failed", "error", err, "email", u.Email)
		return nil, errors.NewInternalError("failed to delete user payments", err)
	}

	issues, err := s.issues.DeleteBySubmitter(u.Email)
	if err != nil {
		s.logger.Error("cascade issue delete failed", "error", err, "email", u.Email)
		return nil, errors.NewInternalError("failed to delete user issues", err)
	}

	deleted, err := s.repo.Delete(id)
	if err != nil {
		s.logger.Error("user delete failed after cascades", "error", err, "user_id", id)
		return nil, errors.NewInternalError("failed to delete user", err)
	}

	s.logger.Info("user deleted with cascades",
		"user_id", id,
		"email", u.Email,
		"deleted_issues", issues,
		"deleted_payments", payments)

	return &DeleteResult{
		DeletedUsers:    deleted,
		DeletedIssues:   issues,
		DeletedPayments: payments,
	}, nil
}
