package postgres

import (
	"encoding/json"
	"errors"
	"time"

	issueDatamodel "github.com/danandika/civic-report/internal/core/datamodel/issue"
	"github.com/danandika/civic-report/internal/issue"
	"gorm.io/gorm"
)

// IssueRepository implements issue.Repository using GORM. Writes go through
// Updates maps with explicit columns; update methods report RowsAffected so
// the service can tell a missing row from a no-op.
type IssueRepository struct {
	db *gorm.DB
}

// NewIssueRepository returns the concrete type: it satisfies both
// issue.Repository and the narrower store the user service consumes.
func NewIssueRepository(db *gorm.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

func (r *IssueRepository) Create(iss *issue.Issue) error {
	m := issue.ToDataModel(iss)
	if err := r.db.Create(m).Error; err != nil {
		return err
	}
	iss.ID = m.ID
	iss.CreatedAt = m.CreatedAt
	iss.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *IssueRepository) GetByID(id int64) (*issue.Issue, error) {
	var m issueDatamodel.Issue
	err := r.db.Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, issue.ErrNotFound
		}
		return nil, err
	}
	return issue.FromDataModel(&m), nil
}

// GetAll returns a page of issues, boosted reports first, then newest.
func (r *IssueRepository) GetAll(limit, offset int) ([]*issue.Issue, error) {
	var models []*issueDatamodel.Issue
	err := r.db.
		Order("is_boosted DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return issue.FromDataModelSlice(models), nil
}

func (r *IssueRepository) GetBySubmitter(email string, limit, offset int) ([]*issue.Issue, error) {
	var models []*issueDatamodel.Issue
	err := r.db.
		Where("submitted_by = ?", email).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return issue.FromDataModelSlice(models), nil
}

func (r *IssueRepository) CountBySubmitter(email string) (int64, error) {
	var count int64
	err := r.db.Model(&issueDatamodel.Issue{}).
		Where("submitted_by = ?", email).
		Count(&count).Error
	return count, err
}

func (r *IssueRepository) UpdateStatus(id int64, status string, resolvedAt, rejectedAt *time.Time, rejectedBy *string) (int64, error) {
	fields := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if resolvedAt != nil {
		fields["resolved_at"] = *resolvedAt
	}
	if rejectedAt != nil {
		fields["rejected_at"] = *rejectedAt
	}
	if rejectedBy != nil {
		fields["rejected_by"] = *rejectedBy
	}

	res := r.db.Model(&issueDatamodel.Issue{}).
		Where("id = ?", id).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *IssueRepository) Assign(id int64, staffID int64, staffEmail, staffName string, at time.Time) (int64, error) {
	res := r.db.Model(&issueDatamodel.Issue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":               issueDatamodel.StatusAssigned,
			"assigned_staff_id":    staffID,
			"assigned_staff_email": staffEmail,
			"assigned_staff_name":  staffName,
			"assigned_at":          at,
			"updated_at":           time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *IssueRepository) ApplyBoost(id int64, paymentID int64, at time.Time) (int64, error) {
	res := r.db.Model(&issueDatamodel.Issue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_boosted":       true,
			"boosted_at":       at,
			"boost_payment_id": paymentID,
			"updated_at":       time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *IssueRepository) SetUpvotes(id int64, upvotes int, upvotedBy []string) (int64, error) {
	var raw json.RawMessage
	if len(upvotedBy) > 0 {
		raw, _ = json.Marshal(upvotedBy)
	} else {
		raw = json.RawMessage("[]")
	}

	res := r.db.Model(&issueDatamodel.Issue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"upvotes":    upvotes,
			"upvoted_by": raw,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *IssueRepository) Delete(id int64) (int64, error) {
	res := r.db.Where("id = ?", id).Delete(&issueDatamodel.Issue{})
	return res.RowsAffected, res.Error
}

func (r *IssueRepository) DeleteBySubmitter(email string) (int64, error) {
	res := r.db.Where("submitted_by = ?", email).Delete(&issueDatamodel.Issue{})
	return res.RowsAffected, res.Error
}
