package cleaning

import (
	"context"

	"github.com/google/uuid"
)

type JobRepository interface {
	// Create inserts j. It fails with a conflict when the bed already has an
	// open job.
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	// FindOpenByBed returns the bed's pending or active job, or nil.
	FindOpenByBed(ctx context.Context, bedID uuid.UUID) (*Job, error)
	List(ctx context.Context, f JobFilter) ([]*Job, int, error)
	// UpdateStatus moves the job from -> to, stamping started_at or
	// completed_at. It returns nil when the job is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to JobStatus) (*Job, error)
	// SetAssignee replaces prev with staff on a job that is not completed.
	// It returns nil when the job completed or was reassigned meanwhile.
	SetAssignee(ctx context.Context, id uuid.UUID, prev *uuid.UUID, staff *Staff) (*Job, error)
	// Delete removes a job that is not completed and reports whether it did.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByCode(ctx context.Context, code string) (*Staff, error)
	List(ctx context.Context, limit, offset int) ([]*Staff, int, error)
	// AdjustActive adds activeDelta to active_jobs (never below zero) and
	// completedDelta to completed_jobs, then recomputes status.
	AdjustActive(ctx context.Context, id uuid.UUID, activeDelta, completedDelta int) (*Staff, error)
}
