package alert

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	List(ctx context.Context, f Filter) ([]*Alert, int, error)
	// Acknowledge marks an unacknowledged alert; it returns nil when the
	// alert was already acknowledged.
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
}
