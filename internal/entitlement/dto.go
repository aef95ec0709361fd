package entitlement

import (
	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/core/common/validation"
	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
)

type PremiumCheckoutDTO struct {
	Plan string `json:"plan"`
}

func (d *PremiumCheckoutDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("plan", d.Plan).Required().OneOf(errors.ErrCodeInvalidPlan,
		userDatamodel.PlanMonthly,
		userDatamodel.PlanYearly,
	)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type BoostCheckoutDTO struct {
	IssueID int64 `json:"issue_id"`
}

func (d *BoostCheckoutDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("issue_id", d.IssueID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type VerifyDTO struct {
	SessionID string `json:"session_id"`
}

func (d *VerifyDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("session_id", d.SessionID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CheckoutResponse hands the hosted payment page back to the client.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// VerifyResult reports the stored payment. AlreadyProcessed is true when this
// session had been verified before and the call was a no-op replay.
type VerifyResult struct {
	Payment          *Payment `json:"payment"`
	AlreadyProcessed bool     `json:"already_processed"`
}
