package issue

import (
	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/core/common/validation"
	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
)

type CreateIssueDTO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
}

func (d *CreateIssueDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("title", d.Title).Required().MinLength(3).MaxLength(200)
	validator.Field("description", d.Description).Required().MaxLength(2000)
	validator.Field("category", d.Category).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type UpdateStatusDTO struct {
	Status string `json:"status"`
}

func (d *UpdateStatusDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("status", d.Status).Required().OneOf(errors.ErrCodeInvalidStatus,
		issueDatamodel.StatusPending,
		issueDatamodel.StatusAssigned,
		issueDatamodel.StatusInProgress,
		issueDatamodel.StatusResolved,
		issueDatamodel.StatusRejected,
	)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type AssignStaffDTO struct {
	StaffID int64 `json:"staff_id"`
}

func (d *AssignStaffDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("staff_id", d.StaffID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CreateResult echoes what the reference API returned on creation: the new
// id plus the submitter's post-insert count and effective premium state.
type CreateResult struct {
	InsertedID     int64  `json:"inserted_id"`
	UserIssueCount int64  `json:"user_issue_count"`
	UserRole       string `json:"user_role"`
	IsPremium      bool   `json:"is_premium"`
}

type UpdateStatusResult struct {
	ModifiedCount int64  `json:"modified_count"`
	Issue         *Issue `json:"issue"`
}

type AssignResult struct {
	AssignedStaffID    int64  `json:"assigned_staff_id"`
	AssignedStaffEmail string `json:"assigned_staff_email"`
	AssignedStaffName  string `json:"assigned_staff_name"`
	Issue              *Issue `json:"issue"`
}

type BoostResult struct {
	ModifiedCount int64 `json:"modified_count"`
}

type UpvoteResult struct {
	Upvotes int  `json:"upvotes"`
	Upvoted bool `json:"upvoted"`
}

type DeleteResult struct {
	DeletedIssues   int64 `json:"deleted_issues"`
	DeletedPayments int64 `json:"deleted_payments"`
}
