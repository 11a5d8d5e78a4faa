package patient

import "context"

// Repository is the read side of the patient data source.
type Repository interface {
	List(ctx context.Context) ([]Patient, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
}

// Writer replaces the stored collection.
type Writer interface {
	ReplaceAll(ctx context.Context, patients []Patient) error
}
