package category

import (
	"log/slog"

	categoryDatamodel "github.com/danandika/civic-report/internal/core/datamodel/category"
)

type RepositoryAPI interface {
	GetAll() ([]*categoryDatamodel.IssueCategory, error)
	GetByName(name string) (*categoryDatamodel.IssueCategory, error)
	Create(cat *categoryDatamodel.IssueCategory) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetAllCategories() ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	var responses []CategoryResponse
	for _, dataCategory := range dataCategories {
		domainCategory := FromDataModel(dataCategory)
		if domainCategory.IsActive {
			responses = append(responses, domainCategory.ToResponse())
		}
	}

	return responses, nil
}

// IsValidCategory reports whether an active category with this name exists.
// Reports keep a free-text category column, so this is advisory, not enforced
// at the storage layer.
func (s *Service) IsValidCategory(name string) bool {
	cat, err := s.repo.GetByName(name)
	if err != nil {
		s.logger.Warn("error checking category validity", "name", name, "error", err)
		return false
	}
	return cat != nil && cat.IsActive
}
