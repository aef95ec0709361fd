package issue_test

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/danandika/civic-report/internal"
	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/issue"
	"github.com/danandika/civic-report/internal/user"
)

func TestIssue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Issue Lifecycle Suite")
}

type mockIssueRepo struct {
	issues map[int64]*issue.Issue
	nextID int64

	createErr error
	countErr  error

	statusCalls int
	assignCalls int
}

func newMockIssueRepo() *mockIssueRepo {
	return &mockIssueRepo{issues: map[int64]*issue.Issue{}, nextID: 1}
}

func (m *mockIssueRepo) Create(iss *issue.Issue) error {
	if m.createErr != nil {
		return m.createErr
	}
	iss.ID = m.nextID
	m.nextID++
	cp := *iss
	m.issues[iss.ID] = &cp
	return nil
}

func (m *mockIssueRepo) GetByID(id int64) (*issue.Issue, error) {
	iss, ok := m.issues[id]
	if !ok {
		return nil, issue.ErrNotFound
	}
	cp := *iss
	return &cp, nil
}

func (m *mockIssueRepo) GetAll(limit, offset int) ([]*issue.Issue, error) {
	var out []*issue.Issue
	for _, iss := range m.issues {
		out = append(out, iss)
	}
	return out, nil
}

func (m *mockIssueRepo) GetBySubmitter(email string, limit, offset int) ([]*issue.Issue, error) {
	var out []*issue.Issue
	for _, iss := range m.issues {
		if iss.SubmittedBy == email {
			out = append(out, iss)
		}
	}
	return out, nil
}

func (m *mockIssueRepo) CountBySubmitter(email string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	var count int64
	for _, iss := range m.issues {
		if iss.SubmittedBy == email {
			count++
		}
	}
	return count, nil
}

func (m *mockIssueRepo) UpdateStatus(id int64, status string, resolvedAt, rejectedAt *time.Time, rejectedBy *string) (int64, error) {
	m.statusCalls++
	iss, ok := m.issues[id]
	if !ok {
		return 0, nil
	}
	iss.Status = status
	iss.ResolvedAt = resolvedAt
	iss.RejectedAt = rejectedAt
	iss.RejectedBy = rejectedBy
	return 1, nil
}

func (m *mockIssueRepo) Assign(id int64, staffID int64, staffEmail, staffName string, at time.Time) (int64, error) {
	m.assignCalls++
	iss, ok := m.issues[id]
	if !ok {
		return 0, nil
	}
	iss.Status = issueDatamodel.StatusAssigned
	iss.AssignedStaffID = &staffID
	iss.AssignedStaffEmail = &staffEmail
	iss.AssignedStaffName = &staffName
	iss.AssignedAt = &at
	return 1, nil
}

func (m *mockIssueRepo) ApplyBoost(id int64, paymentID int64, at time.Time) (int64, error) {
	iss, ok := m.issues[id]
	if !ok {
		return 0, nil
	}
	iss.IsBoosted = true
	iss.BoostedAt = &at
	iss.BoostPaymentID = &paymentID
	return 1, nil
}

func (m *mockIssueRepo) SetUpvotes(id int64, upvotes int, upvotedBy []string) (int64, error) {
	iss, ok := m.issues[id]
	if !ok {
		return 0, nil
	}
	iss.Upvotes = upvotes
	iss.UpvotedBy = upvotedBy
	return 1, nil
}

func (m *mockIssueRepo) Delete(id int64) (int64, error) {
	if _, ok := m.issues[id]; !ok {
		return 0, nil
	}
	delete(m.issues, id)
	return 1, nil
}

type mockUserDirectory struct {
	usersByEmail map[string]*user.User
	usersByID    map[int64]*user.User

	resolvedIncrements int
	rejectedIncrements int
	incrementErr       error

	assignments   []user.AssignmentEntry
	assignmentErr error
}

func newMockUserDirectory() *mockUserDirectory {
	return &mockUserDirectory{
		usersByEmail: map[string]*user.User{},
		usersByID:    map[int64]*user.User{},
	}
}

func (m *mockUserDirectory) add(u *user.User) {
	m.usersByEmail[u.Email] = u
	m.usersByID[u.ID] = u
}

func (m *mockUserDirectory) GetByEmail(email string) (*user.User, error) {
	u, ok := m.usersByEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserDirectory) GetByID(id int64) (*user.User, error) {
	u, ok := m.usersByID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserDirectory) AppendAssignment(staffID int64, entry user.AssignmentEntry) error {
	if m.assignmentErr != nil {
		return m.assignmentErr
	}
	m.assignments = append(m.assignments, entry)
	return nil
}

func (m *mockUserDirectory) IncrementResolvedCount(staffID int64) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.resolvedIncrements++
	return nil
}

func (m *mockUserDirectory) IncrementRejectedCount(staffID int64) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.rejectedIncrements++
	return nil
}

type mockPaymentStore struct {
	deletedByIssue map[int64]int64
	deleteErr      error
}

func (m *mockPaymentStore) DeleteByIssueID(issueID int64) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if m.deletedByIssue == nil {
		m.deletedByIssue = map[int64]int64{}
	}
	n := m.deletedByIssue[issueID]
	return n, nil
}

var _ = Describe("Issue Service", func() {
	var (
		repo     *mockIssueRepo
		users    *mockUserDirectory
		payments *mockPaymentStore
		svc      *issue.Service
		now      time.Time
	)

	newCitizen := func(email string) *user.User {
		return &user.User{
			ID:        100,
			Email:     email,
			Name:      "Citizen",
			Role:      userDatamodel.RoleUser,
			Status:    userDatamodel.StatusActive,
			MaxIssues: 3,
		}
	}

	BeforeEach(func() {
		repo = newMockIssueRepo()
		users = newMockUserDirectory()
		payments = &mockPaymentStore{}
		now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		svc = issue.NewService(repo, users, payments, 3, logger).
			WithClock(func() time.Time { return now })
	})

	validDTO := func() issue.CreateIssueDTO {
		return issue.CreateIssueDTO{
			Title:       "Broken streetlight",
			Description: "The streetlight at 5th and Main has been out for a week",
			Category:    "infrastructure",
			Location:    "5th and Main",
		}
	}

	Describe("Create", func() {
		Context("when a free user is under the cap", func() {
			It("creates the issue with a pending status and a role snapshot", func() {
				users.add(newCitizen("citizen@example.com"))

				result, err := svc.Create(validDTO(), "citizen@example.com")

				Expect(err).ToNot(HaveOccurred())
				Expect(result.InsertedID).To(Equal(int64(1)))
				Expect(result.UserIssueCount).To(Equal(int64(1)))
				Expect(result.UserRole).To(Equal(userDatamodel.RoleUser))
				Expect(result.IsPremium).To(BeFalse())

				stored, _ := repo.GetByID(1)
				Expect(stored.Status).To(Equal(issueDatamodel.StatusPending))
				Expect(stored.SubmittedByRole).To(Equal(userDatamodel.RoleUser))
			})
		})

		Context("when a free user reaches the cap", func() {
			It("allows three reports and rejects the fourth with the current count", func() {
				users.add(newCitizen("capped@example.com"))

				for i := 0; i < 3; i++ {
					dto := validDTO()
					dto.Title = fmt.Sprintf("Report number %d", i+1)
					_, err := svc.Create(dto, "capped@example.com")
					Expect(err).ToNot(HaveOccurred())
				}

				_, err := svc.Create(validDTO(), "capped@example.com")
				Expect(err).To(HaveOccurred())

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeConflict))
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeQuotaExceeded))

				details, ok := appErr.Details.(map[string]interface{})
				Expect(ok).To(BeTrue())
				Expect(details["current_count"]).To(Equal(int64(3)))
			})
		})

		Context("when the submitter has active premium", func() {
			It("ignores the cap entirely", func() {
				u := newCitizen("premium@example.com")
				expiry := now.AddDate(0, 1, 0)
				u.IsPremium = true
				u.PremiumExpiresAt = &expiry
				users.add(u)

				for i := 0; i < 5; i++ {
					dto := validDTO()
					dto.Title = fmt.Sprintf("Premium report %d", i+1)
					_, err := svc.Create(dto, "premium@example.com")
					Expect(err).ToNot(HaveOccurred())
				}
			})
		})

		Context("when the submitter's premium has already expired", func() {
			It("falls back to the free cap", func() {
				u := newCitizen("lapsed@example.com")
				expiry := now.Add(-time.Hour)
				u.IsPremium = true
				u.PremiumExpiresAt = &expiry
				users.add(u)

				for i := 0; i < 3; i++ {
					dto := validDTO()
					dto.Title = fmt.Sprintf("Lapsed report %d", i+1)
					_, err := svc.Create(dto, "lapsed@example.com")
					Expect(err).ToNot(HaveOccurred())
				}

				_, err := svc.Create(validDTO(), "lapsed@example.com")
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeQuotaExceeded))
			})
		})

		Context("when staff report issues", func() {
			It("never applies the cap", func() {
				staff := newCitizen("staff@example.com")
				staff.Role = userDatamodel.RoleStaff
				users.add(staff)

				for i := 0; i < 10; i++ {
					dto := validDTO()
					dto.Title = fmt.Sprintf("Staff report %d", i+1)
					_, err := svc.Create(dto, "staff@example.com")
					Expect(err).ToNot(HaveOccurred())
				}
			})
		})

		Context("when the submitter is blocked", func() {
			It("returns a forbidden error", func() {
				u := newCitizen("blocked@example.com")
				u.Role = userDatamodel.RoleBlocked
				users.add(u)

				_, err := svc.Create(validDTO(), "blocked@example.com")

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeForbidden))
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeUserInactive))
			})
		})

		Context("when the submitter does not exist", func() {
			It("returns a not found error", func() {
				_, err := svc.Create(validDTO(), "ghost@example.com")
				Expect(err).To(Equal(apperrors.ErrUserNotFound))
			})
		})

		Context("when the title is too short", func() {
			It("fails validation before touching storage", func() {
				users.add(newCitizen("citizen@example.com"))

				dto := validDTO()
				dto.Title = "ab"
				_, err := svc.Create(dto, "citizen@example.com")

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
				Expect(repo.issues).To(BeEmpty())
			})
		})
	})

	Describe("UpdateStatus", func() {
		var staffID int64 = 7

		seedAssigned := func(status string) int64 {
			email := "staff@example.com"
			name := "Staff Member"
			iss := &issue.Issue{
				Title:              "Pothole",
				Description:        "Deep pothole on Elm street",
				Category:           "roads",
				SubmittedBy:        "citizen@example.com",
				SubmittedByRole:    userDatamodel.RoleUser,
				Status:             status,
				AssignedStaffID:    &staffID,
				AssignedStaffEmail: &email,
				AssignedStaffName:  &name,
			}
			Expect(repo.Create(iss)).To(Succeed())
			return iss.ID
		}

		Context("when moving between working statuses", func() {
			It("allows every non-terminal jump, including backwards", func() {
				working := []string{
					issueDatamodel.StatusPending,
					issueDatamodel.StatusAssigned,
					issueDatamodel.StatusInProgress,
				}
				for _, from := range working {
					for _, to := range working {
						id := seedAssigned(from)
						_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: to})
						Expect(err).ToNot(HaveOccurred(), "from %s to %s", from, to)
					}
				}
			})
		})

		Context("when an issue is resolved", func() {
			It("stamps resolved_at and bumps the staff resolved counter", func() {
				id := seedAssigned(issueDatamodel.StatusInProgress)

				result, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusResolved})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.ModifiedCount).To(Equal(int64(1)))
				Expect(result.Issue.ResolvedAt).ToNot(BeNil())
				Expect(result.Issue.ResolvedAt.Equal(now)).To(BeTrue())
				Expect(users.resolvedIncrements).To(Equal(1))
				Expect(users.rejectedIncrements).To(Equal(0))
			})
		})

		Context("when an issue is rejected", func() {
			It("stamps rejected_at, records who rejected it and bumps the rejected counter", func() {
				id := seedAssigned(issueDatamodel.StatusAssigned)

				result, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusRejected})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Issue.RejectedAt).ToNot(BeNil())
				Expect(result.Issue.RejectedBy).ToNot(BeNil())
				Expect(*result.Issue.RejectedBy).To(Equal("staff@example.com"))
				Expect(users.rejectedIncrements).To(Equal(1))
			})
		})

		Context("when a terminal issue is touched again", func() {
			It("rejects any further transition", func() {
				id := seedAssigned(issueDatamodel.StatusResolved)

				_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusInProgress})

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeIllegalTransition))
			})

			It("rejects a repeated terminal update without touching the staff counter", func() {
				id := seedAssigned(issueDatamodel.StatusInProgress)

				first, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusResolved})
				Expect(err).ToNot(HaveOccurred())
				Expect(users.resolvedIncrements).To(Equal(1))

				_, err = svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusResolved})

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeIllegalTransition))
				Expect(users.resolvedIncrements).To(Equal(1))

				stored, _ := repo.GetByID(id)
				Expect(stored.ResolvedAt).ToNot(BeNil())
				Expect(stored.ResolvedAt.Equal(*first.Issue.ResolvedAt)).To(BeTrue())
			})

			It("rejects a repeated rejection the same way", func() {
				id := seedAssigned(issueDatamodel.StatusAssigned)

				_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusRejected})
				Expect(err).ToNot(HaveOccurred())
				Expect(users.rejectedIncrements).To(Equal(1))

				_, err = svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusRejected})

				Expect(err).To(HaveOccurred())
				Expect(users.rejectedIncrements).To(Equal(1))
			})
		})

		Context("when the status is repeated on an open issue", func() {
			It("treats same-status updates as a no-op transition", func() {
				id := seedAssigned(issueDatamodel.StatusInProgress)

				_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusInProgress})
				Expect(err).ToNot(HaveOccurred())
			})
		})

		Context("when the staff counter write fails after the terminal write", func() {
			It("surfaces the failure but leaves the issue terminal", func() {
				id := seedAssigned(issueDatamodel.StatusInProgress)
				users.incrementErr = errors.New("connection reset")

				_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: issueDatamodel.StatusResolved})

				Expect(err).To(HaveOccurred())
				stored, _ := repo.GetByID(id)
				Expect(stored.Status).To(Equal(issueDatamodel.StatusResolved))
			})
		})

		Context("when the issue does not exist", func() {
			It("returns a not found error", func() {
				_, err := svc.UpdateStatus(999, issue.UpdateStatusDTO{Status: issueDatamodel.StatusResolved})
				Expect(err).To(Equal(apperrors.ErrIssueNotFound))
			})
		})

		Context("when the status value is unknown", func() {
			It("fails validation", func() {
				id := seedAssigned(issueDatamodel.StatusPending)

				_, err := svc.UpdateStatus(id, issue.UpdateStatusDTO{Status: "escalated"})

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			})
		})
	})

	Describe("AssignStaff", func() {
		var issueID int64

		BeforeEach(func() {
			iss := &issue.Issue{
				Title:           "Graffiti on the library wall",
				Description:     "Large tag appeared overnight",
				Category:        "vandalism",
				SubmittedBy:     "citizen@example.com",
				SubmittedByRole: userDatamodel.RoleUser,
				Status:          issueDatamodel.StatusPending,
			}
			Expect(repo.Create(iss)).To(Succeed())
			issueID = iss.ID
		})

		Context("when the target is a staff account", func() {
			It("assigns the issue and appends to the staff assignment log", func() {
				users.add(&user.User{
					ID:     7,
					Email:  "staff@example.com",
					Name:   "Staff Member",
					Role:   userDatamodel.RoleStaff,
					Status: userDatamodel.StatusActive,
				})

				result, err := svc.AssignStaff(issueID, issue.AssignStaffDTO{StaffID: 7})

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AssignedStaffEmail).To(Equal("staff@example.com"))
				Expect(result.Issue.Status).To(Equal(issueDatamodel.StatusAssigned))
				Expect(users.assignments).To(HaveLen(1))
				Expect(users.assignments[0].IssueID).To(Equal(issueID))
				Expect(users.assignments[0].Status).To(Equal(issueDatamodel.StatusAssigned))
			})
		})

		Context("when the target user is not staff", func() {
			It("returns staff not found", func() {
				users.add(&user.User{
					ID:    8,
					Email: "citizen2@example.com",
					Role:  userDatamodel.RoleUser,
				})

				_, err := svc.AssignStaff(issueID, issue.AssignStaffDTO{StaffID: 8})
				Expect(err).To(Equal(apperrors.ErrStaffNotFound))
				Expect(repo.assignCalls).To(Equal(0))
			})
		})

		Context("when the target user does not exist at all", func() {
			It("returns staff not found", func() {
				_, err := svc.AssignStaff(issueID, issue.AssignStaffDTO{StaffID: 99})
				Expect(err).To(Equal(apperrors.ErrStaffNotFound))
			})
		})

		Context("when the assignment log write fails after the issue write", func() {
			It("surfaces the failure but leaves the issue assigned", func() {
				users.add(&user.User{
					ID:    7,
					Email: "staff@example.com",
					Role:  userDatamodel.RoleStaff,
				})
				users.assignmentErr = errors.New("write timeout")

				_, err := svc.AssignStaff(issueID, issue.AssignStaffDTO{StaffID: 7})

				Expect(err).To(HaveOccurred())
				stored, _ := repo.GetByID(issueID)
				Expect(stored.Status).To(Equal(issueDatamodel.StatusAssigned))
			})
		})
	})

	Describe("ApplyBoost", func() {
		It("flips the boost flag and records the payment", func() {
			iss := &issue.Issue{
				Title:       "Flooded underpass",
				SubmittedBy: "citizen@example.com",
				Status:      issueDatamodel.StatusPending,
			}
			Expect(repo.Create(iss)).To(Succeed())

			result, err := svc.ApplyBoost(iss.ID, 42)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.ModifiedCount).To(Equal(int64(1)))

			stored, _ := repo.GetByID(iss.ID)
			Expect(stored.IsBoosted).To(BeTrue())
			Expect(*stored.BoostPaymentID).To(Equal(int64(42)))
		})

		It("returns not found for a missing issue", func() {
			_, err := svc.ApplyBoost(123, 42)
			Expect(err).To(Equal(apperrors.ErrIssueNotFound))
		})
	})

	Describe("ToggleUpvote", func() {
		var issueID int64

		BeforeEach(func() {
			iss := &issue.Issue{
				Title:       "Noise complaint",
				SubmittedBy: "citizen@example.com",
				Status:      issueDatamodel.StatusPending,
			}
			Expect(repo.Create(iss)).To(Succeed())
			issueID = iss.ID
		})

		It("adds a vote on the first toggle and removes it on the second", func() {
			first, err := svc.ToggleUpvote(issueID, "voter@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(first.Upvoted).To(BeTrue())
			Expect(first.Upvotes).To(Equal(1))

			second, err := svc.ToggleUpvote(issueID, "voter@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Upvoted).To(BeFalse())
			Expect(second.Upvotes).To(Equal(0))
		})

		It("keeps other voters intact", func() {
			_, err := svc.ToggleUpvote(issueID, "first@example.com")
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.ToggleUpvote(issueID, "second@example.com")
			Expect(err).ToNot(HaveOccurred())

			result, err := svc.ToggleUpvote(issueID, "first@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Upvotes).To(Equal(1))

			stored, _ := repo.GetByID(issueID)
			Expect(stored.UpvotedBy).To(Equal([]string{"second@example.com"}))
		})
	})

	Describe("Delete", func() {
		It("deletes payments before the issue row", func() {
			iss := &issue.Issue{
				Title:       "Abandoned vehicle",
				SubmittedBy: "citizen@example.com",
				Status:      issueDatamodel.StatusPending,
			}
			Expect(repo.Create(iss)).To(Succeed())
			payments.deletedByIssue = map[int64]int64{iss.ID: 1}

			result, err := svc.Delete(iss.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.DeletedIssues).To(Equal(int64(1)))
			Expect(result.DeletedPayments).To(Equal(int64(1)))

			_, getErr := repo.GetByID(iss.ID)
			Expect(getErr).To(Equal(issue.ErrNotFound))
		})

		It("aborts before touching the issue when the payment cascade fails", func() {
			iss := &issue.Issue{
				Title:       "Fallen tree",
				SubmittedBy: "citizen@example.com",
				Status:      issueDatamodel.StatusPending,
			}
			Expect(repo.Create(iss)).To(Succeed())
			payments.deleteErr = errors.New("cascade failed")

			_, err := svc.Delete(iss.ID)

			Expect(err).To(HaveOccurred())
			_, getErr := repo.GetByID(iss.ID)
			Expect(getErr).ToNot(HaveOccurred())
		})

		It("returns not found for a missing issue", func() {
			_, err := svc.Delete(555)
			Expect(err).To(Equal(apperrors.ErrIssueNotFound))
		})
	})
})
