package transfer

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists transfers. Conditional writes return nil when the
// transfer is no longer pending.
type Repository interface {
	// Create fails with a conflict when the patient already has a pending
	// transfer.
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error)
	// FindPendingByPatient returns nil when the patient has no pending transfer.
	FindPendingByPatient(ctx context.Context, patientID uuid.UUID) (*Transfer, error)
	List(ctx context.Context, f Filter) ([]*Transfer, int, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, reason, notes string) (*Transfer, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) (*Transfer, error)
	MarkDenied(ctx context.Context, id uuid.UUID, reviewer, reason string) (*Transfer, error)
	// Delete removes a pending transfer and reports whether one was removed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
