package bedrequest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists bed requests. Soft-deleted rows are invisible to every
// read. The state changing methods are conditional writes: each returns nil
// when the request is no longer in the status the transition starts from.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetByRequestID(ctx context.Context, requestID string) (*Request, error)
	// List orders by priority descending, then oldest first.
	List(ctx context.Context, f Filter) ([]*Request, int, error)
	// ListDue returns approved requests whose reservation expired at or
	// before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Request, error)

	UpdateDetails(ctx context.Context, r *Request) (*Request, error)
	MarkApproved(ctx context.Context, id uuid.UUID, a Approval) (*Request, error)
	MarkDenied(ctx context.Context, id uuid.UUID, reviewer, reason string) (*Request, error)
	MarkFulfilled(ctx context.Context, id, patientID uuid.UUID) (*Request, error)
	// MarkCancelled records the cancellation on a pending request, which
	// then reads as denied.
	MarkCancelled(ctx context.Context, id uuid.UUID, by, reason string) (*Request, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*Request, error)
	// SoftDelete flags a request in a terminal status as deleted.
	SoftDelete(ctx context.Context, id uuid.UUID, by string) (*Request, error)
}
