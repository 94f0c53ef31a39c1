package bed

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	GetByNumber(ctx context.Context, number string) (*Bed, error)
	List(ctx context.Context, f Filter) ([]*Bed, int, error)
	ListByWard(ctx context.Context, ward string) ([]*Bed, error)
	Update(ctx context.Context, b *Bed) error
	// ApplyChange writes ch only if the bed still has status from. It returns
	// the updated bed, or nil when the precondition no longer holds.
	ApplyChange(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Bed, error)
	// FindAvailable returns the lowest numbered available bed in ward whose
	// equipment type is one of equipment, or nil.
	FindAvailable(ctx context.Context, ward string, equipment []string) (*Bed, error)
	// Delete removes the bed unless it is occupied or reserved, which is a
	// Conflict.
	Delete(ctx context.Context, id uuid.UUID) error
	CountByWardStatus(ctx context.Context) ([]WardCount, error)
}
