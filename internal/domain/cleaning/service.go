package cleaning

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

const (
	EventJobCreated   = "cleaning:created"
	EventJobStarted   = "cleaning:started"
	EventJobAssigned  = "cleaning:assigned"
	EventJobCompleted = "cleaning:completed"
)

// BedMover is the part of the bed service the cleaning workflow drives.
// *bed.Service satisfies it.
type BedMover interface {
	Get(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
	Apply(ctx context.Context, observed *bed.Bed, ch bed.Change) (*bed.Bed, error)
	AfterTransition(ctx context.Context, prev bed.Status, b *bed.Bed)
}

type Service struct {
	jobs   JobRepository
	staff  StaffRepository
	beds   BedMover
	tx     db.TxRunner
	policy *auth.Policy
	pub    realtime.Publisher
	logger zerolog.Logger
}

func NewService(jobs JobRepository, staff StaffRepository, beds BedMover, tx db.TxRunner,
	policy *auth.Policy, pub realtime.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		jobs:   jobs,
		staff:  staff,
		beds:   beds,
		tx:     tx,
		policy: policy,
		pub:    pub,
		logger: logger.With().Str("component", "cleaning").Logger(),
	}
}

// ScheduleCleaning implements bed.CleaningScheduler.
func (s *Service) ScheduleCleaning(ctx context.Context, b *bed.Bed) error {
	_, err := s.AutoCreate(ctx, b)
	return err
}

// AutoCreate queues a cleaning job for b. When the bed already has a pending
// or active job that job is returned and nothing is created.
func (s *Service) AutoCreate(ctx context.Context, b *bed.Bed) (*Job, error) {
	existing, err := s.jobs.FindOpenByBed(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Debug().Str("bed", b.BedNumber).Str("job_id", existing.ID.String()).Msg("open cleaning job already exists")
		return existing, nil
	}

	j := &Job{
		BedID:      b.ID,
		BedNumber:  b.BedNumber,
		Ward:       b.Ward,
		Floor:      b.Floor,
		Section:    b.Section,
		RoomNumber: b.RoomNumber,
		Status:     JobPending,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost the race against a concurrent vacate of the same bed.
			if existing, ferr := s.jobs.FindOpenByBed(ctx, b.ID); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.logger.Info().Str("bed", b.BedNumber).Str("job_id", j.ID.String()).Msg("cleaning job created")
	s.publish(ctx, EventJobCreated, j)
	return j, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f JobFilter) ([]*Job, int, error) {
	if f.Status != "" && f.Status != JobPending && f.Status != JobActive && f.Status != JobCompleted {
		return nil, 0, apperr.Validation("unknown cleaning job status %q", f.Status)
	}
	return s.jobs.List(ctx, f)
}

// Start moves a pending job to active.
func (s *Service) Start(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Job, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionCleaningWork, auth.Resource{Ward: j.Ward}); err != nil {
		return nil, err
	}
	if j.Status != JobPending {
		return nil, apperr.Conflict("Cleaning job for bed %s is %s; only pending jobs can be started", j.BedNumber, j.Status)
	}
	updated, err := s.jobs.UpdateStatus(ctx, id, JobPending, JobActive)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.Conflict("Cleaning job for bed %s is no longer pending", j.BedNumber)
	}
	s.publish(ctx, EventJobStarted, updated)
	return updated, nil
}

// Assign hands the job to a staff member, moving one active slot from the
// previous assignee if there was one.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, id, staffID uuid.UUID) (*Job, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionCleaningAssign, auth.Resource{Ward: j.Ward}); err != nil {
		return nil, err
	}
	if j.Status == JobCompleted {
		return nil, apperr.Conflict("Cleaning job for bed %s is already completed", j.BedNumber)
	}
	member, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if j.AssignedStaffID != nil && *j.AssignedStaffID == staffID {
		return j, nil
	}

	var updated *Job
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.jobs.SetAssignee(ctx, id, j.AssignedStaffID, member)
		if err != nil {
			return err
		}
		if updated == nil {
			return apperr.Conflict("Cleaning job for bed %s changed while assigning; retry", j.BedNumber)
		}
		if j.AssignedStaffID != nil {
			if _, err := s.staff.AdjustActive(ctx, *j.AssignedStaffID, -1, 0); err != nil {
				return err
			}
		}
		_, err = s.staff.AdjustActive(ctx, staffID, 1, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventJobAssigned, updated)
	return updated, nil
}

// Complete finishes an active job, credits the assignee and returns the bed
// to service. A bed sent to maintenance meanwhile is cleaned back to
// available; one already returned to service by hand is left as is.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Job, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionCleaningWork, auth.Resource{Ward: j.Ward}); err != nil {
		return nil, err
	}
	if j.Status != JobActive {
		return nil, apperr.Conflict("Cleaning job for bed %s is %s; only active jobs can be completed", j.BedNumber, j.Status)
	}

	var (
		done  *Job
		freed *bed.Bed
		prev  bed.Status
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		done, err = s.jobs.UpdateStatus(ctx, id, JobActive, JobCompleted)
		if err != nil {
			return err
		}
		if done == nil {
			return apperr.Conflict("Cleaning job for bed %s is no longer active", j.BedNumber)
		}
		if done.AssignedStaffID != nil {
			if _, err := s.staff.AdjustActive(ctx, *done.AssignedStaffID, -1, 1); err != nil {
				return err
			}
		}
		b, err := s.beds.Get(ctx, done.BedID)
		if err != nil {
			return err
		}
		if b.Status != bed.StatusCleaning && b.Status != bed.StatusMaintenance {
			s.logger.Warn().Str("bed", b.BedNumber).Str("status", string(b.Status)).
				Msg("bed returned to service before its job completed; status kept")
			return nil
		}
		prev = b.Status
		freed, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusAvailable, Cleaned: true})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventJobCompleted, done)
	if freed != nil {
		s.beds.AfterTransition(ctx, prev, freed)
	}
	return done, nil
}

// Delete removes a job that has not completed, releasing its assignee's slot.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, auth.ActionCleaningManage, auth.Resource{Ward: j.Ward}); err != nil {
		return err
	}
	if j.Status == JobCompleted {
		return apperr.Conflict("Completed cleaning jobs cannot be deleted")
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		deleted, err := s.jobs.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.Conflict("Cleaning job for bed %s completed meanwhile", j.BedNumber)
		}
		if j.AssignedStaffID != nil {
			_, err = s.staff.AdjustActive(ctx, *j.AssignedStaffID, -1, 0)
		}
		return err
	})
}

func (s *Service) CreateStaff(ctx context.Context, actor auth.Actor, in StaffInput) (*Staff, error) {
	if err := s.policy.Authorize(actor, auth.ActionCleaningManage, auth.Resource{}); err != nil {
		return nil, err
	}
	in.StaffCode = strings.TrimSpace(in.StaffCode)
	in.Name = strings.TrimSpace(in.Name)
	if in.StaffCode == "" {
		return nil, apperr.Validation("staff code is required")
	}
	if in.Name == "" {
		return nil, apperr.Validation("staff name is required")
	}
	if existing, err := s.staff.GetByCode(ctx, in.StaffCode); err == nil && existing != nil {
		return nil, apperr.Conflict("Staff code %s already exists", in.StaffCode)
	} else if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	member := &Staff{StaffCode: in.StaffCode, Name: in.Name}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, limit, offset)
}

func (s *Service) publish(ctx context.Context, eventType string, j *Job) {
	ev := realtime.NewEvent(eventType, "cleaning_job", j.ID.String(), j)
	if err := realtime.Emit(ctx, s.pub, ev, realtime.WardTopic(j.Ward), realtime.BedTopic(j.BedID.String())); err != nil {
		s.logger.Warn().Err(err).Str("job_id", j.ID.String()).Msg("cleaning event not fully delivered")
	}
}
