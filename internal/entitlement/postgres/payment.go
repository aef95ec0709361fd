package postgres

import (
	"errors"

	paymentDatamodel "github.com/danandika/civic-report/internal/core/datamodel/payment"
	"github.com/danandika/civic-report/internal/entitlement"
	"gorm.io/gorm"
)

// PaymentRepository implements entitlement.Repository plus the cascade
// deletes the user and issue services consume.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *entitlement.Payment) error {
	m := entitlement.ToDataModel(p)
	if err := r.db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return entitlement.ErrDuplicateSession
		}
		return err
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	return nil
}

func (r *PaymentRepository) GetBySessionID(sessionID string) (*entitlement.Payment, error) {
	var m paymentDatamodel.Payment
	err := r.db.Where("stripe_session_id = ?", sessionID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrNotFound
		}
		return nil, err
	}
	return entitlement.FromDataModel(&m), nil
}

func (r *PaymentRepository) GetByID(id int64) (*entitlement.Payment, error) {
	var m paymentDatamodel.Payment
	err := r.db.Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrNotFound
		}
		return nil, err
	}
	return entitlement.FromDataModel(&m), nil
}

func (r *PaymentRepository) DeleteByID(id int64) error {
	return r.db.Where("id = ?", id).Delete(&paymentDatamodel.Payment{}).Error
}

func (r *PaymentRepository) DeleteByUserEmail(email string) (int64, error) {
	res := r.db.Where("user_email = ?", email).Delete(&paymentDatamodel.Payment{})
	return res.RowsAffected, res.Error
}

func (r *PaymentRepository) DeleteByIssueID(issueID int64) (int64, error) {
	res := r.db.Where("issue_id = ?", issueID).Delete(&paymentDatamodel.Payment{})
	return res.RowsAffected, res.Error
}
