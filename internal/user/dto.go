package user

import (
	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/core/common/validation"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/quota"
)

type RegisterDTO struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

func (d *RegisterDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("email", d.Email).Required().Email()
	validator.Field("name", d.Name).Required().MaxLength(120)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type UpdateRoleDTO struct {
	Role string `json:"role"`
}

func (d *UpdateRoleDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("role", d.Role).Required().OneOf(errors.ErrCodeInvalidRole,
		userDatamodel.RoleUser,
		userDatamodel.RoleAdmin,
		userDatamodel.RoleStaff,
		userDatamodel.RoleRejected,
		userDatamodel.RoleBlocked,
	)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ProfileView is the user as the profile endpoint reports it: stored record
// plus the computed allowance and effective premium state.
type ProfileView struct {
	User       *User           `json:"user"`
	IssueCount int64           `json:"issue_count"`
	Allowance  quota.Allowance `json:"allowance"`
}

type StatsView struct {
	Email               string          `json:"email"`
	Role                string          `json:"role"`
	IsPremium           bool            `json:"is_premium"`
	IssueCount          int64           `json:"issue_count"`
	Allowance           quota.Allowance `json:"allowance"`
	AssignedIssuesCount int             `json:"assigned_issues_count"`
	ResolvedIssuesCount int             `json:"resolved_issues_count"`
	RejectedIssuesCount int             `json:"rejected_issues_count"`
}

type DeleteResult struct {
	DeletedUsers    int64 `json:"deleted_users"`
	DeletedIssues   int64 `json:"deleted_issues"`
	DeletedPayments int64 `json:"deleted_payments"`
}
