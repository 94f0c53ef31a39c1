package patient

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
	EventPatientAdmitted   = "patient:admitted"
	EventPatientDischarged = "patient:discharged"
)

// BedMover is the part of the bed service discharge needs.
type BedMover interface {
	Get(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
	Apply(ctx context.Context, observed *bed.Bed, ch bed.Change) (*bed.Bed, error)
	AfterTransition(ctx context.Context, prev bed.Status, b *bed.Bed)
}

type Service struct {
	repo   Repository
	seq    db.Sequencer
	beds   BedMover
	tx     db.TxRunner
	policy *auth.Policy
	pub    realtime.Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, seq db.Sequencer, beds BedMover, tx db.TxRunner,
	policy *auth.Policy, pub realtime.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		seq:    seq,
		beds:   beds,
		tx:     tx,
		policy: policy,
		pub:    pub,
		logger: logger.With().Str("component", "patient").Logger(),
	}
}

// Admit records a patient bound to a bed. It does not touch the bed and does
// not publish, so request fulfilment can call it inside its transaction and
// announce the admission with AfterAdmit once committed.
func (s *Service) Admit(ctx context.Context, in AdmitInput) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("patient name is required")
	}
	if in.Ward == "" {
		return nil, apperr.Validation("ward is required")
	}
	if in.BedID == uuid.Nil {
		return nil, apperr.Validation("bed is required")
	}
	n, err := s.seq.Next(ctx, db.SeqPatient)
	if err != nil {
		return nil, apperr.Internal("allocate patient id", err)
	}
	bedID := in.BedID
	p := &Patient{
		PatientID:       db.FormatID("PAT", n),
		Name:            in.Name,
		Age:             in.Age,
		Gender:          in.Gender,
		TriageLevel:     in.TriageLevel,
		Ward:            in.Ward,
		BedID:           &bedID,
		Status:          StatusAdmitted,
		SourceRequestID: in.SourceRequestID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AfterAdmit(ctx context.Context, p *Patient) {
	s.publish(ctx, EventPatientAdmitted, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return s.repo.GetByPatientID(ctx, patientID)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Patient, int, error) {
	if f.Status != "" && f.Status != StatusAdmitted && f.Status != StatusDischarged {
		return nil, 0, apperr.Validation("unknown patient status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

// Relocate moves an admitted patient to another bed. Transfers call it
// inside their transaction.
func (s *Service) Relocate(ctx context.Context, id, bedID uuid.UUID, ward string) (*Patient, error) {
	p, err := s.repo.Relocate(ctx, id, bedID, ward)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.Conflict("Patient %s is no longer admitted", id)
	}
	return p, nil
}

// Discharge ends an admission and sends the patient's bed to cleaning.
func (s *Service) Discharge(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionPatientDischarge, auth.Resource{Ward: p.Ward}); err != nil {
		return nil, err
	}
	if p.Status != StatusAdmitted {
		return nil, apperr.Conflict("Patient %s is already discharged", p.PatientID)
	}

	var (
		discharged *Patient
		vacated    *bed.Bed
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		discharged, err = s.repo.MarkDischarged(ctx, id)
		if err != nil {
			return err
		}
		if discharged == nil {
			return apperr.Conflict("Patient %s is already discharged", p.PatientID)
		}
		if p.BedID == nil {
			return nil
		}
		b, err := s.beds.Get(ctx, *p.BedID)
		if err != nil {
			return err
		}
		if b.Status != bed.StatusOccupied || b.PatientID == nil || *b.PatientID != p.ID {
			s.logger.Warn().Str("patient", p.PatientID).Str("bed", b.BedNumber).
				Msg("bed no longer holds discharged patient; bed left unchanged")
			return nil
		}
		vacated, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusCleaning})
		return err
	})
	if err != nil {
		return nil, err
	}

	if vacated != nil {
		s.beds.AfterTransition(ctx, bed.StatusOccupied, vacated)
	}
	s.publish(ctx, EventPatientDischarged, discharged)
	return discharged, nil
}

// ReleaseOccupant ends the admission of patientID when bedID is vacated by
// hand, so the bed can never be handed to a second admitted patient. It runs
// inside the caller's transaction and returns the post-commit announcement,
// or nil when the patient no longer holds the bed.
func (s *Service) ReleaseOccupant(ctx context.Context, patientID, bedID uuid.UUID) (func(context.Context), error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if p.Status != StatusAdmitted || p.BedID == nil || *p.BedID != bedID {
		return nil, nil
	}
	discharged, err := s.repo.MarkDischarged(ctx, patientID)
	if err != nil || discharged == nil {
		return nil, err
	}
	s.logger.Info().Str("patient", discharged.PatientID).Str("bed_id", bedID.String()).
		Msg("admission ended by manual bed move")
	return func(ctx context.Context) {
		s.publish(ctx, EventPatientDischarged, discharged)
	}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, p *Patient) {
	ev := realtime.NewEvent(eventType, "patient", p.ID.String(), p)
	if err := realtime.Emit(ctx, s.pub, ev, realtime.WardTopic(p.Ward)); err != nil {
		s.logger.Warn().Err(err).Str("patient", p.PatientID).Msg("patient event not fully delivered")
	}
}
