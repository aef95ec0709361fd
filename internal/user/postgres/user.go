package postgres

import (
	"encoding/json"
	"errors"
	"time"

	userDatamodel "github.com/danandika/civic-report/internal/core/datamodel/user"
	"github.com/danandika/civic-report/internal/user"
	"gorm.io/gorm"
)

// UserRepository implements user.Repository using GORM. Every method touches
// a single row; there is no cross-row transaction here.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(u *user.User) error {
	m := user.ToDataModel(u)
	if err := r.db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return user.ErrDuplicateEmail
		}
		return err
	}
	u.ID = m.ID
	u.CreatedAt = m.CreatedAt
	u.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *UserRepository) GetByEmail(email string) (*user.User, error) {
	var m userDatamodel.User
	err := r.db.Where("email = ?", email).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&m), nil
}

func (r *UserRepository) GetByID(id int64) (*user.User, error) {
	var m userDatamodel.User
	err := r.db.Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&m), nil
}

func (r *UserRepository) UpdateRole(email, role, status string) (int64, error) {
	res := r.db.Model(&userDatamodel.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"role":       role,
			"status":     status,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// ClearPremium is the lazy-expiry corrective write. It only flips the flag;
// plan and expiry stay for audit.
func (r *UserRepository) ClearPremium(email string) error {
	return r.db.Model(&userDatamodel.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"is_premium": false,
			"updated_at": time.Now(),
		}).Error
}

func (r *UserRepository) GrantPremium(email, plan string, expiresAt time.Time, paymentID int64) (int64, error) {
	res := r.db.Model(&userDatamodel.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"is_premium":         true,
			"premium_plan":       plan,
			"premium_expires_at": expiresAt,
			"premium_payment_id": paymentID,
			"updated_at":         time.Now(),
		})
	return res.RowsAffected, res.Error
}

// AppendAssignment adds one entry to the denormalized assignment log and
// bumps the assigned counter in the same single-row update.
func (r *UserRepository) AppendAssignment(staffID int64, entry user.AssignmentEntry) error {
	var m userDatamodel.User
	if err := r.db.Where("id = ?", staffID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.ErrNotFound
		}
		return err
	}

	var log []user.AssignmentEntry
	if len(m.AssignedIssues) > 0 {
		if err := json.Unmarshal(m.AssignedIssues, &log); err != nil {
			return err
		}
	}
	log = append(log, entry)

	raw, err := json.Marshal(log)
	if err != nil {
		return err
	}

	return r.db.Model(&userDatamodel.User{}).
		Where("id = ?", staffID).
		Updates(map[string]interface{}{
			"assigned_issues":       json.RawMessage(raw),
			"assigned_issues_count": gorm.Expr("assigned_issues_count + 1"),
			"updated_at":            time.Now(),
		}).Error
}

func (r *UserRepository) IncrementResolvedCount(staffID int64) error {
	return r.incrementCounter(staffID, "resolved_issues_count")
}

func (r *UserRepository) IncrementRejectedCount(staffID int64) error {
	return r.incrementCounter(staffID, "rejected_issues_count")
}

func (r *UserRepository) incrementCounter(staffID int64, column string) error {
	res := r.db.Model(&userDatamodel.User{}).
		Where("id = ?", staffID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(id int64) (int64, error) {
	res := r.db.Where("id = ?", id).Delete(&userDatamodel.User{})
	return res.RowsAffected, res.Error
}
