package dashboard

import (
	"context"
	"sync"
)

// MemoryRepo is the in-process data source.
type MemoryRepo struct {
	mu  sync.RWMutex
	src Source
}

// NewMemoryRepo serves a fixed Source.
func NewMemoryRepo(src Source) *MemoryRepo {
	r := &MemoryRepo{}
	r.Replace(context.Background(), src)
	return r
}

func (r *MemoryRepo) Stats(_ context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.src.Stats, nil
}

func (r *MemoryRepo) RiskFactors(_ context.Context) ([]RiskFactorImpact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RiskFactorImpact, len(r.src.RiskFactors))
	copy(out, r.src.RiskFactors)
	return out, nil
}

func (r *MemoryRepo) MonthlyTrends(_ context.Context) ([]MonthlyTrendPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MonthlyTrendPoint, len(r.src.MonthlyTrends))
	copy(out, r.src.MonthlyTrends)
	return out, nil
}

func (r *MemoryRepo) Replace(_ context.Context, src Source) error {
	factors := make([]RiskFactorImpact, len(src.RiskFactors))
	copy(factors, src.RiskFactors)
	trends := make([]MonthlyTrendPoint, len(src.MonthlyTrends))
	copy(trends, src.MonthlyTrends)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.src = Source{Stats: src.Stats, RiskFactors: factors, MonthlyTrends: trends}
	return nil
}
