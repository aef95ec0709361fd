package postgres

import (
	"errors"

	"github.com/danandika/civic-report/internal/category"
	categoryDatamodel "github.com/danandika/civic-report/internal/core/datamodel/category"
	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) category.RepositoryAPI {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) GetAll() ([]*categoryDatamodel.IssueCategory, error) {
	var categories []*categoryDatamodel.IssueCategory
	err := r.db.Order("name ASC").Find(&categories).Error
	return categories, err
}

func (r *CategoryRepository) GetByName(name string) (*categoryDatamodel.IssueCategory, error) {
	var cat categoryDatamodel.IssueCategory
	err := r.db.Where("name = ?", name).First(&cat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

func (r *CategoryRepository) Create(cat *categoryDatamodel.IssueCategory) error {
	return r.db.Create(cat).Error
}
