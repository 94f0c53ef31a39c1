package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	List(ctx context.Context, f Filter) ([]*Patient, int, error)
	// Relocate points an admitted patient at a new bed and ward. It returns
	// nil when the patient is no longer admitted.
	Relocate(ctx context.Context, id, bedID uuid.UUID, ward string) (*Patient, error)
	// MarkDischarged moves an admitted patient to discharged, or returns nil
	// when the patient was already discharged.
	MarkDischarged(ctx context.Context, id uuid.UUID) (*Patient, error)
}
