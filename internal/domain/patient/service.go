package patient

import (
	"context"
	"fmt"
)

// Service provides read access to the patient collection and the filtered
// working set.
type Service struct {
	repo            Repository
	matcher         Matcher
	recommendations []string
}

// NewService creates a patient service.
func NewService(repo Repository, matcher Matcher) *Service {
	return &Service{repo: repo, matcher: matcher, recommendations: DefaultRecommendations}
}

// Search returns the working set for c, in data-source order.
func (s *Service) Search(ctx context.Context, c Criteria) ([]Patient, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return s.matcher.Filter(all, c), nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// GetDetail returns the overlay payload for a patient.
func (s *Service) GetDetail(ctx context.Context, id string) (*Detail, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	d := NewDetail(*p, s.recommendations)
	return &d, nil
}
