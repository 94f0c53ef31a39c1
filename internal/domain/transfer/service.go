package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/domain/alert"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/patient"
	"github.com/bedtrack/bedtrack/internal/domain/settings"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

const (
	EventTransferRequested = "transfer:requested"
	EventTransferUpdated   = "transfer:updated"
	EventTransferCompleted = "transfer:completed"
	EventTransferDenied    = "transfer:denied"
	EventTransferDeleted   = "transfer:deleted"
)

// BedMover is the part of the bed service a transfer drives.
type BedMover interface {
	Get(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
	FindAvailable(ctx context.Context, ward string, equipment []string) (*bed.Bed, error)
	Apply(ctx context.Context, observed *bed.Bed, ch bed.Change) (*bed.Bed, error)
	AfterTransition(ctx context.Context, prev bed.Status, b *bed.Bed)
}

// Relocator moves the patient record along with the transfer.
type Relocator interface {
	Relocate(ctx context.Context, id, bedID uuid.UUID, ward string) (*patient.Patient, error)
}

type Service struct {
	repo     Repository
	beds     BedMover
	patients Relocator
	alerts   alert.Sink
	settings settings.Provider
	tx       db.TxRunner
	policy   *auth.Policy
	pub      realtime.Publisher
	logger   zerolog.Logger
}

type Deps struct {
	Repo     Repository
	Beds     BedMover
	Patients Relocator
	Alerts   alert.Sink
	Settings settings.Provider
	Tx       db.TxRunner
	Policy   *auth.Policy
	Pub      realtime.Publisher
}

func NewService(d Deps, logger zerolog.Logger) *Service {
	return &Service{
		repo:     d.Repo,
		beds:     d.Beds,
		patients: d.Patients,
		alerts:   d.Alerts,
		settings: d.Settings,
		tx:       d.Tx,
		policy:   d.Policy,
		pub:      d.Pub,
		logger:   logger.With().Str("component", "transfer").Logger(),
	}
}

// Request opens a transfer for the patient occupying in.BedID. All input
// checks run before anything is written.
func (s *Service) Request(ctx context.Context, actor auth.Actor, in RequestInput) (*Transfer, error) {
	in.TargetWard = strings.TrimSpace(in.TargetWard)
	in.CurrentWard = strings.TrimSpace(in.CurrentWard)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.TargetWard == "" {
		return nil, apperr.Validation("target ward is required")
	}
	if emergency := s.settings.Current().EmergencyWard; strings.EqualFold(in.TargetWard, emergency) {
		return nil, apperr.Validation("Patients cannot be transferred to %s", emergency)
	}
	if in.Reason == "" {
		return nil, apperr.Validation("transfer reason is required")
	}

	if in.CurrentWard != "" && strings.EqualFold(in.TargetWard, in.CurrentWard) {
		return nil, apperr.Validation("Patient is already in %s", in.CurrentWard)
	}

	b, err := s.beds.Get(ctx, in.BedID)
	if err != nil {
		return nil, err
	}
	if in.CurrentWard == "" {
		in.CurrentWard = b.Ward
		if strings.EqualFold(in.TargetWard, in.CurrentWard) {
			return nil, apperr.Validation("Patient is already in %s", in.CurrentWard)
		}
	}
	if err := s.policy.Authorize(actor, auth.ActionTransferRequest, auth.Resource{Ward: in.CurrentWard}); err != nil {
		return nil, err
	}
	if b.Status != bed.StatusOccupied || b.PatientID == nil || *b.PatientID != in.PatientID {
		return nil, apperr.Conflict("Bed %s does not hold patient %s", b.BedNumber, in.PatientID)
	}
	existing, err := s.repo.FindPendingByPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("Patient already has a pending transfer to %s", existing.TargetWard)
	}

	t := &Transfer{
		PatientID:   in.PatientID,
		SourceBedID: b.ID,
		CurrentWard: in.CurrentWard,
		TargetWard:  in.TargetWard,
		Reason:      in.Reason,
		Notes:       strings.TrimSpace(in.Notes),
		Status:      StatusPending,
		RequestedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("transfer", t.ID.String()).Str("from", t.CurrentWard).Str("to", t.TargetWard).Msg("transfer requested")
	s.publish(ctx, EventTransferRequested, t)
	return t, nil
}

// Approve moves the patient into an available bed of the target ward and
// completes the transfer. Both beds, the patient record and the transfer
// change in one transaction.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID, notes *string) (*Transfer, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionTransferReview, auth.Resource{Ward: t.TargetWard}); err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, notPending(t)
	}
	source, err := s.beds.Get(ctx, t.SourceBedID)
	if err != nil {
		return nil, err
	}
	if source.Status != bed.StatusOccupied || source.PatientID == nil || *source.PatientID != t.PatientID {
		return nil, apperr.Conflict("Bed %s no longer holds the patient being transferred", source.BedNumber)
	}
	dest, err := s.beds.FindAvailable(ctx, t.TargetWard, bed.DefaultEquipmentFor(t.TargetWard))
	if err != nil {
		return nil, err
	}

	var (
		completed *Transfer
		vacated   *bed.Bed
		occupied  *bed.Bed
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		vacated, err = s.beds.Apply(ctx, source, bed.Change{To: bed.StatusCleaning})
		if err != nil {
			return err
		}
		occupied, err = s.beds.Apply(ctx, dest, bed.Change{To: bed.StatusOccupied, PatientID: &t.PatientID})
		if err != nil {
			return err
		}
		if _, err = s.patients.Relocate(ctx, t.PatientID, dest.ID, dest.Ward); err != nil {
			return err
		}
		completed, err = s.repo.MarkCompleted(ctx, id, Completion{
			DestinationBedID: dest.ID,
			ReviewedBy:       actor.ID,
			Notes:            notes,
		})
		if err != nil {
			return err
		}
		if completed == nil {
			return apperr.Conflict("Transfer %s is no longer pending", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("transfer", id.String()).Str("from_bed", source.BedNumber).Str("to_bed", dest.BedNumber).
		Msg("transfer completed")
	s.beds.AfterTransition(ctx, bed.StatusOccupied, vacated)
	s.beds.AfterTransition(ctx, bed.StatusAvailable, occupied)
	s.publish(ctx, EventTransferCompleted, completed)
	s.raise(ctx, alert.Input{
		Severity: alert.SeverityInfo,
		Message:  fmt.Sprintf("Patient transferred from %s (%s) to %s (%s)", source.BedNumber, t.CurrentWard, dest.BedNumber, t.TargetWard),
		Ward:     t.TargetWard,
		BedID:    &occupied.ID,
	})
	return completed, nil
}

func (s *Service) Deny(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("a reason is required to deny a transfer")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionTransferReview, auth.Resource{Ward: t.TargetWard}); err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, notPending(t)
	}
	denied, err := s.repo.MarkDenied(ctx, id, actor.ID, reason)
	if err != nil {
		return nil, err
	}
	if denied == nil {
		return nil, apperr.Conflict("Transfer %s is no longer pending", id)
	}
	s.publish(ctx, EventTransferDenied, denied)
	return denied, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Transfer, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionTransferModify, auth.Resource{OwnerID: t.RequestedBy, Ward: t.CurrentWard}); err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, notPending(t)
	}
	reason, notes := t.Reason, t.Notes
	if in.Reason != nil {
		reason = strings.TrimSpace(*in.Reason)
		if reason == "" {
			return nil, apperr.Validation("transfer reason is required")
		}
	}
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}
	updated, err := s.repo.UpdateDetails(ctx, id, reason, notes)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.Conflict("Transfer %s is no longer pending", id)
	}
	s.publish(ctx, EventTransferUpdated, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, auth.ActionTransferModify, auth.Resource{OwnerID: t.RequestedBy, Ward: t.CurrentWard}); err != nil {
		return err
	}
	if t.Status != StatusPending {
		return notPending(t)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.Conflict("Transfer %s is no longer pending", id)
	}
	s.publish(ctx, EventTransferDeleted, t)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Transfer, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown transfer status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

func notPending(t *Transfer) error {
	return apperr.Conflict("Transfer %s is not pending (current status: %s)", t.ID, t.Status)
}

func (s *Service) raise(ctx context.Context, in alert.Input) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Create(ctx, in); err != nil {
		s.logger.Error().Err(err).Str("message", in.Message).Msg("failed to raise alert")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, t *Transfer) {
	ev := realtime.NewEvent(eventType, "transfer", t.ID.String(), t)
	topics := []string{realtime.WardTopic(t.CurrentWard)}
	if t.TargetWard != t.CurrentWard {
		topics = append(topics, realtime.WardTopic(t.TargetWard))
	}
	if err := realtime.Emit(ctx, s.pub, ev, topics...); err != nil {
		s.logger.Warn().Err(err).Str("transfer", t.ID.String()).Msg("transfer event not fully delivered")
	}
}
