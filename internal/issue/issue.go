package issue

import (
	"encoding/json"
	"errors"
	"time"

	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
)

type Issue struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location,omitempty"`

	SubmittedBy     string `json:"submitted_by"`
	SubmittedByRole string `json:"submitted_by_role"`

	Status string `json:"status"`

	IsBoosted      bool       `json:"is_boosted"`
	BoostedAt      *time.Time `json:"boosted_at,omitempty"`
	BoostPaymentID *int64     `json:"boost_payment_id,omitempty"`

	Upvotes   int      `json:"upvotes"`
	UpvotedBy []string `json:"upvoted_by,omitempty"`

	AssignedStaffID    *int64     `json:"assigned_staff_id,omitempty"`
	AssignedStaffEmail *string    `json:"assigned_staff_email,omitempty"`
	AssignedStaffName  *string    `json:"assigned_staff_name,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	RejectedBy *string    `json:"rejected_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("issue not found")

// transitions is the explicit status graph. Any non-terminal status may jump
// directly to any other status, matching how staff actually work tickets;
// resolved and rejected are terminal and accept nothing further.
var transitions = map[string][]string{
	issueDatamodel.StatusPending: {
		issueDatamodel.StatusAssigned,
		issueDatamodel.StatusInProgress,
		issueDatamodel.StatusResolved,
		issueDatamodel.StatusRejected,
	},
	issueDatamodel.StatusAssigned: {
		issueDatamodel.StatusPending,
		issueDatamodel.StatusInProgress,
		issueDatamodel.StatusResolved,
		issueDatamodel.StatusRejected,
	},
	issueDatamodel.StatusInProgress: {
		issueDatamodel.StatusPending,
		issueDatamodel.StatusAssigned,
		issueDatamodel.StatusResolved,
		issueDatamodel.StatusRejected,
	},
	issueDatamodel.StatusResolved: {},
	issueDatamodel.StatusRejected: {},
}

// CanTransition reports whether moving from one status to another is legal.
// Repeating the current status is legal only while the issue is still open;
// terminal states accept nothing, not even themselves, so a retried terminal
// update cannot re-stamp timestamps or double-count staff counters.
func CanTransition(from, to string) bool {
	if from == to {
		return !issueDatamodel.TerminalStatus(from)
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (i *Issue) Terminal() bool {
	return issueDatamodel.TerminalStatus(i.Status)
}

func (i *Issue) UpvotedByUser(email string) bool {
	for _, e := range i.UpvotedBy {
		if e == email {
			return true
		}
	}
	return false
}

func ToDataModel(i *Issue) *issueDatamodel.Issue {
	var upvoters json.RawMessage
	if len(i.UpvotedBy) > 0 {
		upvoters, _ = json.Marshal(i.UpvotedBy)
	}
	return &issueDatamodel.Issue{
		ID:                 i.ID,
		Title:              i.Title,
		Description:        i.Description,
		Category:           i.Category,
		Location:           i.Location,
		SubmittedBy:        i.SubmittedBy,
		SubmittedByRole:    i.SubmittedByRole,
		Status:             i.Status,
		IsBoosted:          i.IsBoosted,
		BoostedAt:          i.BoostedAt,
		BoostPaymentID:     i.BoostPaymentID,
		Upvotes:            i.Upvotes,
		UpvotedBy:          upvoters,
		AssignedStaffID:    i.AssignedStaffID,
		AssignedStaffEmail: i.AssignedStaffEmail,
		AssignedStaffName:  i.AssignedStaffName,
		AssignedAt:         i.AssignedAt,
		ResolvedAt:         i.ResolvedAt,
		RejectedAt:         i.RejectedAt,
		RejectedBy:         i.RejectedBy,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
}

func FromDataModel(m *issueDatamodel.Issue) *Issue {
	var upvoters []string
	if len(m.UpvotedBy) > 0 {
		_ = json.Unmarshal(m.UpvotedBy, &upvoters)
	}
	return &Issue{
		ID:                 m.ID,
		Title:              m.Title,
		Description:        m.Description,
		Category:           m.Category,
		Location:           m.Location,
		SubmittedBy:        m.SubmittedBy,
		SubmittedByRole:    m.SubmittedByRole,
		Status:             m.Status,
		IsBoosted:          m.IsBoosted,
		BoostedAt:          m.BoostedAt,
		BoostPaymentID:     m.BoostPaymentID,
		Upvotes:            m.Upvotes,
		UpvotedBy:          upvoters,
		AssignedStaffID:    m.AssignedStaffID,
		AssignedStaffEmail: m.AssignedStaffEmail,
		AssignedStaffName:  m.AssignedStaffName,
		AssignedAt:         m.AssignedAt,
		ResolvedAt:         m.ResolvedAt,
		RejectedAt:         m.RejectedAt,
		RejectedBy:         m.RejectedBy,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func FromDataModelSlice(models []*issueDatamodel.Issue) []*Issue {
	result := make([]*Issue, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
