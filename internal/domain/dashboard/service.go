package dashboard

import (
	"context"
	"fmt"
)

// Service builds the dashboard view model from the repository.
type Service struct {
	repo Repository
}

// NewService creates a dashboard service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Overview loads the aggregates and shapes them for the dashboard tab.
func (s *Service) Overview(ctx context.Context) (ViewModel, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return ViewModel{}, fmt.Errorf("load stats: %w", err)
	}
	factors, err := s.repo.RiskFactors(ctx)
	if err != nil {
		return ViewModel{}, fmt.Errorf("load risk factors: %w", err)
	}
	trends, err := s.repo.MonthlyTrends(ctx)
	if err != nil {
		return ViewModel{}, fmt.Errorf("load monthly trends: %w", err)
	}
	return Build(Source{Stats: stats, RiskFactors: factors, MonthlyTrends: trends}), nil
}
