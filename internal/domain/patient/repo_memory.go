package patient

import (
	"context"
	"sync"
)

// MemoryRepo is the in-process data source.
type MemoryRepo struct {
	mu       sync.RWMutex
	patients []Patient
	byID     map[string]int
}

// NewMemoryRepo serves a fixed collection in the given order.
func NewMemoryRepo(patients []Patient) *MemoryRepo {
	r := &MemoryRepo{}
	r.set(patients)
	return r
}

func (r *MemoryRepo) set(patients []Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients = make([]Patient, 0, len(patients))
	r.byID = make(map[string]int, len(patients))
	for _, p := range patients {
		r.byID[p.ID] = len(r.patients)
		r.patients = append(r.patients, p.Clone())
	}
}

func (r *MemoryRepo) List(_ context.Context) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patient, len(r.patients))
	for i, p := range r.patients {
		out[i] = p.Clone()
	}
	return out, nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := r.patients[i].Clone()
	return &p, nil
}

// ReplaceAll swaps the collection, used by the sandbox seeder.
func (r *MemoryRepo) ReplaceAll(_ context.Context, patients []Patient) error {
	r.set(patients)
	return nil
}
