package issue

import (
	"log/slog"
	"time"

	errors "github.com/danandika/civic-report/internal"
	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
	"github.com/danandika/civic-report/internal/quota"
	"github.com/danandika/civic-report/internal/user"
)

// Repository defines the data access methods for issues. Update methods
// return the number of rows they touched so callers can detect a missing
// target.
type Repository interface {
	Create(iss *Issue) error
	GetByID(id int64) (*Issue, error)
	GetAll(limit, offset int) ([]*Issue, error)
	GetBySubmitter(email string, limit, offset int) ([]*Issue, error)
	CountBySubmitter(email string) (int64, error)
	UpdateStatus(id int64, status string, resolvedAt, rejectedAt *time.Time, rejectedBy *string) (int64, error)
	Assign(id int64, staffID int64, staffEmail, staffName string, at time.Time) (int64, error)
	ApplyBoost(id int64, paymentID int64, at time.Time) (int64, error)
	SetUpvotes(id int64, upvotes int, upvotedBy []string) (int64, error)
	Delete(id int64) (int64, error)
}

// UserDirectory is the slice of the user store the lifecycle needs: submitter
// lookups at the creation gate and staff bookkeeping on assignment and
// terminal transitions.
type UserDirectory interface {
	GetByEmail(email string) (*user.User, error)
	GetByID(id int64) (*user.User, error)
	AppendAssignment(staffID int64, entry user.AssignmentEntry) error
	IncrementResolvedCount(staffID int64) error
	IncrementRejectedCount(staffID int64) error
}

// PaymentStore is used by the delete cascade.
type PaymentStore interface {
	DeleteByIssueID(issueID int64) (int64, error)
}

type Service struct {
	repo      Repository
	users     UserDirectory
	payments  PaymentStore
	freeLimit int
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, users UserDirectory, payments PaymentStore, freeLimit int, logger *slog.Logger) *Service {
	if freeLimit <= 0 {
		freeLimit = quota.DefaultFreeIssueLimit
	}
	return &Service{
		repo:      repo,
		users:     users,
		payments:  payments,
		freeLimit: freeLimit,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create gates a new report on the submitter's quota and writes it with a
// role snapshot. The quota check and the insert are two storage round trips
// with no lock between them: two concurrent creations from the same capped
// user can both pass the gate and overshoot the cap by one. Documented race,
// accepted.
func (s *Service) Create(dto CreateIssueDTO, submitterEmail string) (*CreateResult, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("issue validation failed", "error", err, "submitter", submitterEmail)
		return nil, err
	}

	submitter, err := s.users.GetByEmail(submitterEmail)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		s.logger.Error("failed to load submitter", "error", err, "email", submitterEmail)
		return nil, errors.NewInternalError("failed to load submitter", err)
	}

	if submitter.Inactive() {
		s.logger.Warn("inactive account tried to report", "email", submitterEmail, "role", submitter.Role)
		return nil, errors.ErrUserInactive
	}

	now := s.now()
	count, err := s.repo.CountBySubmitter(submitterEmail)
	if err != nil {
		s.logger.Error("failed to count issues", "error", err, "email", submitterEmail)
		return nil, errors.NewInternalError("failed to count issues", err)
	}

	allowance := quota.Enforce(quota.Snapshot{
		Role:             submitter.Role,
		IsPremium:        submitter.IsPremium,
		PremiumExpiresAt: submitter.PremiumExpiresAt,
	}, count, submitter.MaxIssues, now)

	if !allowance.CanReportMore {
		s.logger.Warn("report quota exceeded",
			"email", submitterEmail,
			"current_count", count,
			"max_issues", submitter.MaxIssues)
		return nil, errors.NewConflictError("report quota exceeded", errors.ErrCodeQuotaExceeded).
			WithDetails(map[string]interface{}{
				"current_count": count,
				"max_issues":    submitter.MaxIssues,
			})
	}

	iss := &Issue{
		Title:           dto.Title,
		Description:     dto.Description,
		Category:        dto.Category,
		Location:        dto.Location,
		SubmittedBy:     submitter.Email,
		SubmittedByRole: submitter.Role,
		Status:          issueDatamodel.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(iss); err != nil {
		s.logger.Error("failed to create issue", "error", err, "email", submitterEmail)
		return nil, errors.NewInternalError("failed to create issue", err)
	}

	postCount, err := s.repo.CountBySubmitter(submitterEmail)
	if err != nil {
		s.logger.Warn("post-insert count failed, approximating", "error", err, "email", submitterEmail)
		postCount = count + 1
	}

	s.logger.Info("issue created",
		"issue_id", iss.ID,
		"submitter", submitterEmail,
		"role", submitter.Role,
		"user_issue_count", postCount)

	return &CreateResult{
		InsertedID:     iss.ID,
		UserIssueCount: postCount,
		UserRole:       submitter.Role,
		IsPremium:      user.PremiumActive(submitter, now),
	}, nil
}

// UpdateStatus moves an issue through the lifecycle. Terminal transitions
// stamp the issue first and then bump the assigned staff's counter; those are
// two single-row writes with no shared transaction. When the counter write
// fails the issue stays terminal and the failure is surfaced.
func (s *Service) UpdateStatus(issueID int64, dto UpdateStatusDTO) (*UpdateStatusResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	iss, err := s.repo.GetByID(issueID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrIssueNotFound
		}
		return nil, errors.NewInternalError("failed to load issue", err)
	}

	if !CanTransition(iss.Status, dto.Status) {
		s.logger.Warn("illegal status transition rejected",
			"issue_id", issueID,
			"from", iss.Status,
			"to", dto.Status)
		return nil, errors.NewValidationError("illegal status transition", errors.ErrCodeIllegalTransition).
			WithDetails(map[string]string{"from": iss.Status, "to": dto.Status})
	}

	now := s.now()
	var resolvedAt, rejectedAt *time.Time
	var rejectedBy *string

	switch dto.Status {
	case issueDatamodel.StatusResolved:
		resolvedAt = &now
	case issueDatamodel.StatusRejected:
		rejectedAt = &now
		rejectedBy = iss.AssignedStaffEmail
	}

	modified, err := s.repo.UpdateStatus(issueID, dto.Status, resolvedAt, rejectedAt, rejectedBy)
	if err != nil {
		s.logger.Error("failed to update issue status", "error", err, "issue_id", issueID)
		return nil, errors.NewInternalError("failed to update issue status", err)
	}
	if modified == 0 {
		return nil, errors.ErrIssueNotFound
	}

	if issueDatamodel.TerminalStatus(dto.Status) && iss.AssignedStaffID != nil {
		var counterErr error
		if dto.Status == issueDatamodel.StatusResolved {
			counterErr = s.users.IncrementResolvedCount(*iss.AssignedStaffID)
		} else {
			counterErr = s.users.IncrementRejectedCount(*iss.AssignedStaffID)
		}
		if counterErr != nil {
			// The issue is already terminal; the staff counter is now behind.
			s.logger.Error("staff counter update failed after terminal transition",
				"error", counterErr,
				"issue_id", issueID,
				"staff_id", *iss.AssignedStaffID,
				"status", dto.Status)
			return nil, errors.NewInternalError("issue updated but staff counter write failed", counterErr)
		}
	}

	updated, err := s.repo.GetByID(issueID)
	if err != nil {
		updated = iss
		updated.Status = dto.Status
	}

	s.logger.Info("issue status updated",
		"issue_id", issueID,
		"from", iss.Status,
		"to", dto.Status)

	return &UpdateStatusResult{ModifiedCount: modified, Issue: updated}, nil
}

// AssignStaff puts an issue into the assigned state and appends the
// denormalized log entry onto the staff account. Same dual-write caveat as
// UpdateStatus.
func (s *Service) AssignStaff(issueID int64, dto AssignStaffDTO) (*AssignResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	iss, err := s.repo.GetByID(issueID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrIssueNotFound
		}
		return nil, errors.NewInternalError("failed to load issue", err)
	}

	staff, err := s.users.GetByID(dto.StaffID)
	if err != nil || !staff.IsStaff() {
		s.logger.Warn("staff lookup failed for assignment", "staff_id", dto.StaffID, "error", err)
		return nil, errors.ErrStaffNotFound
	}

	now := s.now()
	modified, err := s.repo.Assign(issueID, staff.ID, staff.Email, staff.Name, now)
	if err != nil {
		s.logger.Error("failed to assign staff", "error", err, "issue_id", issueID, "staff_id", staff.ID)
		return nil, errors.NewInternalError("failed to assign staff", err)
	}
	if modified == 0 {
		return nil, errors.ErrIssueNotFound
	}

	entry := user.AssignmentEntry{
		IssueID:    iss.ID,
		IssueTitle: iss.Title,
		AssignedAt: now,
		Status:     issueDatamodel.StatusAssigned,
	}
	if err := s.users.AppendAssignment(staff.ID, entry); err != nil {
		s.logger.Error("assignment log append failed after issue write",
			"error", err,
			"issue_id", issueID,
			"staff_id", staff.ID)
		return nil, errors.NewInternalError("issue assigned but staff log write failed", err)
	}

	updated, err := s.repo.GetByID(issueID)
	if err != nil {
		updated = iss
	}

	s.logger.Info("staff assigned to issue",
		"issue_id", issueID,
		"staff_id", staff.ID,
		"staff_email", staff.Email)

	return &AssignResult{
		AssignedStaffID:    staff.ID,
		AssignedStaffEmail: staff.Email,
		AssignedStaffName:  staff.Name,
		Issue:              updated,
	}, nil
}

// ApplyBoost flips the boost flag unconditionally. Precondition checks (not
// already boosted, requester owns the issue, status pending) happen at
// checkout creation; a direct caller is trusted.
func (s *Service) ApplyBoost(issueID int64, paymentID int64) (*BoostResult, error) {
	modified, err := s.repo.ApplyBoost(issueID, paymentID, s.now())
	if err != nil {
		s.logger.Error("failed to apply boost", "error", err, "issue_id", issueID, "payment_id", paymentID)
		return nil, errors.NewInternalError("failed to apply boost", err)
	}
	if modified == 0 {
		return nil, errors.ErrIssueNotFound
	}

	s.logger.Info("issue boosted", "issue_id", issueID, "payment_id", paymentID)
	return &BoostResult{ModifiedCount: modified}, nil
}

// ToggleUpvote adds or removes the voter's email from the upvote set. This is
// a read-modify-write on a single row; concurrent toggles can lose a vote.
func (s *Service) ToggleUpvote(issueID int64, voterEmail string) (*UpvoteResult, error) {
	iss, err := s.repo.GetByID(issueID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrIssueNotFound
		}
		return nil, errors.NewInternalError("failed to load issue", err)
	}

	var upvoted bool
	var voters []string
	if iss.UpvotedByUser(voterEmail) {
		for _, e := range iss.UpvotedBy {
			if e != voterEmail {
				voters = append(voters, e)
			}
		}
	} else {
		voters = append(iss.UpvotedBy, voterEmail)
		upvoted = true
	}

	if _, err := s.repo.SetUpvotes(issueID, len(voters), voters); err != nil {
		s.logger.Error("failed to store upvote", "error", err, "issue_id", issueID)
		return nil, errors.NewInternalError("failed to store upvote", err)
	}

	return &UpvoteResult{Upvotes: len(voters), Upvoted: upvoted}, nil
}

func (s *Service) GetByID(issueID int64) (*Issue, error) {
	iss, err := s.repo.GetByID(issueID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrIssueNotFound
		}
		return nil, errors.NewInternalError("failed to load issue", err)
	}
	return iss, nil
}

func (s *Service) List(limit, offset int) ([]*Issue, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	issues, err := s.repo.GetAll(limit, offset)
	if err != nil {
		s.logger.Error("failed to list issues", "error", err)
		return nil, errors.NewInternalError("failed to list issues", err)
	}
	return issues, nil
}

func (s *Service) ListBySubmitter(email string, limit, offset int) ([]*Issue, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	issues, err := s.repo.GetBySubmitter(email, limit, offset)
	if err != nil {
		s.logger.Error("failed to list issues", "error", err, "email", email)
		return nil, errors.NewInternalError("failed to list issues", err)
	}
	return issues, nil
}

// Delete removes an issue, taking its payments with it: dependents first so a
// crashed cascade can be retried, then the issue row. Not atomic as a whole.
func (s *Service) Delete(issueID int64) (*DeleteResult, error) {
	if _, err := s.repo.GetByID(issueID); err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrIssueNotFound
		}
		return nil, errors.NewInternalError("failed to load issue", err)
	}

	payments, err := s.payments.DeleteByIssueID(issueID)
	if err != nil {
		s.logger.Error("cascade payment delete failed", "error", err, "issue_id", issueID)
		return nil, errors.NewInternalError("failed to delete issue payments", err)
	}

	deleted, err := s.repo.Delete(issueID)
	if err != nil {
		s.logger.Error("issue delete failed after payment cascade", "error", err, "issue_id", issueID)
		return nil, errors.NewInternalError("failed to delete issue", err)
	}

	s.logger.Info("issue deleted", "issue_id", issueID, "deleted_payments", payments)
	return &DeleteResult{DeletedIssues: deleted, DeletedPayments: payments}, nil
}
