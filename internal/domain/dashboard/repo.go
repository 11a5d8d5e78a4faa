package dashboard

import "context"

// Repository supplies the aggregate dashboard data.
type Repository interface {
	Stats(ctx context.Context) (Stats, error)
	RiskFactors(ctx context.Context) ([]RiskFactorImpact, error)
	MonthlyTrends(ctx context.Context) ([]MonthlyTrendPoint, error)
}

// Writer replaces the stored aggregates.
type Writer interface {
	Replace(ctx context.Context, src Source) error
}
