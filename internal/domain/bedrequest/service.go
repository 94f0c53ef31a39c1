package bedrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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
	EventRequestCreated   = "request:created"
	EventRequestUpdated   = "request:updated"
	EventRequestApproved  = "request:approved"
	EventRequestDenied    = "request:denied"
	EventRequestFulfilled = "request:fulfilled"
	EventRequestCancelled = "request:cancelled"
	EventRequestExpired   = "request:expired"
)

const (
	defaultETA          = 30 * time.Minute
	defaultDenialReason = "No suitable bed available"
	dueBatchSize        = 500
)

// ErrAlreadyResolved means an expiry lost the race against another
// transition of the same request. Callers treat it as a no-op.
var ErrAlreadyResolved = errors.New("bed request already resolved")

// BedMover is the part of the bed service the request lifecycle drives.
type BedMover interface {
	Get(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
	Apply(ctx context.Context, observed *bed.Bed, ch bed.Change) (*bed.Bed, error)
	AfterTransition(ctx context.Context, prev bed.Status, b *bed.Bed)
}

// Admitter creates the patient record when a request is fulfilled.
type Admitter interface {
	Admit(ctx context.Context, in patient.AdmitInput) (*patient.Patient, error)
	AfterAdmit(ctx context.Context, p *patient.Patient)
}

type Service struct {
	repo     Repository
	seq      db.Sequencer
	beds     BedMover
	patients Admitter
	alerts   alert.Sink
	settings settings.Provider
	tx       db.TxRunner
	policy   *auth.Policy
	pub      realtime.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

type Deps struct {
	Repo     Repository
	Seq      db.Sequencer
	Beds     BedMover
	Patients Admitter
	Alerts   alert.Sink
	Settings settings.Provider
	Tx       db.TxRunner
	Policy   *auth.Policy
	Pub      realtime.Publisher
}

func NewService(d Deps, logger zerolog.Logger) *Service {
	return &Service{
		repo:     d.Repo,
		seq:      d.Seq,
		beds:     d.Beds,
		patients: d.Patients,
		alerts:   d.Alerts,
		settings: d.Settings,
		tx:       d.Tx,
		policy:   d.Policy,
		pub:      d.Pub,
		logger:   logger.With().Str("component", "bedrequest").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for ETAs and reservation expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Request, error) {
	if err := s.policy.Authorize(actor, auth.ActionRequestCreate, auth.Resource{Ward: in.PreferredWard}); err != nil {
		return nil, err
	}
	in.PatientName = strings.TrimSpace(in.PatientName)
	if in.PatientName == "" {
		return nil, apperr.Validation("patient name is required")
	}
	if in.PatientAge < 0 {
		return nil, apperr.Validation("patient age cannot be negative")
	}
	eta := s.now().Add(defaultETA)
	if in.ETA != nil {
		eta = *in.ETA
	}

	n, err := s.seq.Next(ctx, db.SeqRequest)
	if err != nil {
		return nil, apperr.Internal("allocate request id", err)
	}
	r := &Request{
		RequestID:         db.FormatID("REQ", n),
		RequestedBy:       actor.ID,
		RequestedByName:   actor.Name,
		PatientName:       in.PatientName,
		PatientAge:        in.PatientAge,
		PatientGender:     in.PatientGender,
		TriageLevel:       in.TriageLevel,
		RequiredEquipment: in.RequiredEquipment,
		Reason:            in.Reason,
		PreferredWard:     in.PreferredWard,
		ETA:               eta,
		Status:            StatusPending,
		Priority:          PriorityFor(in.TriageLevel),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info().Str("request", r.RequestID).Int("priority", r.Priority).Msg("bed request created")
	s.publish(ctx, EventRequestCreated, r)
	s.raise(ctx, alert.Input{
		Severity: alert.SeverityInfo,
		Message:  fmt.Sprintf("New bed request %s for %s (%s)", r.RequestID, r.PatientName, triageLabel(r.TriageLevel)),
		Ward:     s.intakeWard(r),
		Priority: r.Priority,
	})
	return r, nil
}

// Update edits the patient details of a pending request and recomputes its
// priority.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestUpdate, auth.Resource{OwnerID: r.RequestedBy, Ward: r.PreferredWard}); err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, notInStatus(r, StatusPending)
	}
	if in.PatientName != nil {
		r.PatientName = strings.TrimSpace(*in.PatientName)
		if r.PatientName == "" {
			return nil, apperr.Validation("patient name is required")
		}
	}
	if in.PatientAge != nil {
		if *in.PatientAge < 0 {
			return nil, apperr.Validation("patient age cannot be negative")
		}
		r.PatientAge = *in.PatientAge
	}
	if in.PatientGender != nil {
		r.PatientGender = *in.PatientGender
	}
	if in.TriageLevel != nil {
		r.TriageLevel = *in.TriageLevel
	}
	if in.RequiredEquipment != nil {
		r.RequiredEquipment = *in.RequiredEquipment
	}
	if in.Reason != nil {
		r.Reason = *in.Reason
	}
	if in.PreferredWard != nil {
		r.PreferredWard = *in.PreferredWard
	}
	if in.ETA != nil {
		r.ETA = *in.ETA
	}
	r.Priority = PriorityFor(r.TriageLevel)

	updated, err := s.repo.UpdateDetails(ctx, r)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.Conflict("Request %s changed while updating; it is no longer pending", r.RequestID)
	}
	s.publish(ctx, EventRequestUpdated, updated)
	return updated, nil
}

// Approve reserves an available bed for a pending request. The bed and the
// request change in one transaction.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id, bedID uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestApprove, auth.Resource{Ward: r.PreferredWard}); err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, notInStatus(r, StatusPending)
	}
	b, err := s.beds.Get(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if b.Status != bed.StatusAvailable {
		return nil, apperr.Conflict("Bed %s is not available (current status: %s)", b.BedNumber, b.Status)
	}

	expires := s.now().Add(s.settings.Current().ReservationTTL())
	note := "Reserved for " + r.RequestID
	var (
		approved *Request
		reserved *bed.Bed
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		reserved, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusReserved, Notes: &note})
		if err != nil {
			return err
		}
		approved, err = s.repo.MarkApproved(ctx, id, Approval{
			BedID:      b.ID,
			BedNumber:  b.BedNumber,
			BedWard:    b.Ward,
			ReviewedBy: actor.ID,
			ExpiresAt:  expires,
		})
		if err != nil {
			return err
		}
		if approved == nil {
			return apperr.Conflict("Request %s is no longer pending", r.RequestID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("request", r.RequestID).Str("bed", b.BedNumber).Time("expires_at", expires).Msg("bed reserved")
	s.beds.AfterTransition(ctx, bed.StatusAvailable, reserved)
	s.publish(ctx, EventRequestApproved, approved)
	s.raise(ctx, alert.Input{
		Severity: alert.SeverityInfo,
		Message:  fmt.Sprintf("Bed %s reserved for %s (%s)", b.BedNumber, r.PatientName, r.RequestID),
		Ward:     b.Ward,
		Priority: r.Priority,
		BedID:    &reserved.ID,
	})
	return approved, nil
}

func (s *Service) Deny(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestDeny, auth.Resource{Ward: r.PreferredWard}); err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, notInStatus(r, StatusPending)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultDenialReason
	}
	denied, err := s.repo.MarkDenied(ctx, id, actor.ID, reason)
	if err != nil {
		return nil, err
	}
	if denied == nil {
		return nil, apperr.Conflict("Request %s is no longer pending", r.RequestID)
	}

	s.publish(ctx, EventRequestDenied, denied)
	s.raise(ctx, alert.Input{
		Severity: alert.SeverityWarning,
		Message:  fmt.Sprintf("Bed request %s for %s denied: %s", r.RequestID, r.PatientName, reason),
		Ward:     s.intakeWard(r),
		Priority: r.Priority,
	})
	return denied, nil
}

// Fulfill admits the patient into the reserved bed. The patient record, the
// bed and the request change in one transaction.
func (s *Service) Fulfill(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Request, *patient.Patient, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestFulfill, auth.Resource{Ward: r.Ward()}); err != nil {
		return nil, nil, err
	}
	if r.Status != StatusApproved {
		return nil, nil, notInStatus(r, StatusApproved)
	}
	if r.AssignedBedID == nil {
		return nil, nil, apperr.Conflict("Request %s has no assigned bed", r.RequestID)
	}
	b, err := s.beds.Get(ctx, *r.AssignedBedID)
	if err != nil {
		return nil, nil, err
	}

	var (
		fulfilled *Request
		admitted  *patient.Patient
		occupied  *bed.Bed
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		admitted, err = s.patients.Admit(ctx, patient.AdmitInput{
			Name:            r.PatientName,
			Age:             r.PatientAge,
			Gender:          r.PatientGender,
			TriageLevel:     r.TriageLevel,
			Ward:            b.Ward,
			BedID:           b.ID,
			SourceRequestID: r.RequestID,
		})
		if err != nil {
			return err
		}
		occupied, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusOccupied, PatientID: &admitted.ID})
		if err != nil {
			return err
		}
		fulfilled, err = s.repo.MarkFulfilled(ctx, id, admitted.ID)
		if err != nil {
			return err
		}
		if fulfilled == nil {
			return apperr.Conflict("Request %s is no longer approved", r.RequestID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Str("request", r.RequestID).Str("patient", admitted.PatientID).Str("bed", b.BedNumber).Msg("bed request fulfilled")
	s.beds.AfterTransition(ctx, b.Status, occupied)
	s.patients.AfterAdmit(ctx, admitted)
	s.publish(ctx, EventRequestFulfilled, fulfilled)
	return fulfilled, admitted, nil
}

// Cancel withdraws a pending request on behalf of its requester or a
// manager. The request reads as denied afterwards, with the cancellation
// recorded.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestCancel, auth.Resource{OwnerID: r.RequestedBy, Ward: r.PreferredWard}); err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, notInStatus(r, StatusPending)
	}

	var (
		cancelled *Request
		released  *bed.Bed
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if r.AssignedBedID != nil {
			b, err := s.beds.Get(ctx, *r.AssignedBedID)
			if err != nil {
				return err
			}
			if b.Status == bed.StatusReserved {
				note := "Reservation cancelled for " + r.RequestID
				if released, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusAvailable, Notes: &note}); err != nil {
					return err
				}
			}
		}
		var err error
		cancelled, err = s.repo.MarkCancelled(ctx, id, actor.ID, strings.TrimSpace(reason))
		if err != nil {
			return err
		}
		if cancelled == nil {
			return apperr.Conflict("Request %s is no longer pending", r.RequestID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if released != nil {
		s.beds.AfterTransition(ctx, bed.StatusReserved, released)
	}
	s.publish(ctx, EventRequestCancelled, cancelled)
	return cancelled, nil
}

// DueForExpiry lists approved requests whose reservation has lapsed.
func (s *Service) DueForExpiry(ctx context.Context) ([]*Request, error) {
	return s.repo.ListDue(ctx, s.now(), dueBatchSize)
}

// Expire releases the bed held by an approved request whose reservation has
// lapsed. It returns ErrAlreadyResolved when the request has moved on.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusApproved {
		return nil, ErrAlreadyResolved
	}
	now := s.now()
	if r.ReservationExpiresAt == nil || r.ReservationExpiresAt.After(now) {
		return nil, apperr.Conflict("Reservation for %s has not expired yet", r.RequestID)
	}

	var (
		expired  *Request
		released *bed.Bed
		bedLabel = r.AssignedBedNumber
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		expired, err = s.repo.MarkExpired(ctx, id, now)
		if err != nil {
			return err
		}
		if expired == nil {
			return ErrAlreadyResolved
		}
		if r.AssignedBedID == nil {
			return nil
		}
		b, err := s.beds.Get(ctx, *r.AssignedBedID)
		if err != nil {
			return err
		}
		if b.Status != bed.StatusReserved {
			s.logger.Warn().Str("request", r.RequestID).Str("bed", b.BedNumber).Str("status", string(b.Status)).
				Msg("expired reservation no longer holds its bed")
			return nil
		}
		note := "Reservation expired for " + r.RequestID
		released, err = s.beds.Apply(ctx, b, bed.Change{To: bed.StatusAvailable, Notes: &note})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("request", r.RequestID).Str("bed", bedLabel).Msg("reservation expired")
	if released != nil {
		s.beds.AfterTransition(ctx, bed.StatusReserved, released)
	}
	s.publish(ctx, EventRequestExpired, expired)
	s.raise(ctx, alert.Input{
		Severity: alert.SeverityWarning,
		Message:  fmt.Sprintf("Reservation for %s (%s) expired; bed %s released", r.PatientName, r.RequestID, bedLabel),
		Ward:     r.AssignedBedWard,
		Priority: r.Priority,
		BedID:    r.AssignedBedID,
	})
	return expired, nil
}

// SoftDelete hides a request in a terminal status from every listing.
func (s *Service) SoftDelete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, auth.ActionRequestDelete, auth.Resource{Ward: r.Ward()}); err != nil {
		return err
	}
	if !r.Status.Terminal() {
		return apperr.Conflict("Request %s cannot be deleted while %s", r.RequestID, r.Status)
	}
	deleted, err := s.repo.SoftDelete(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if deleted == nil {
		return apperr.Conflict("Request %s was already deleted", r.RequestID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByRequestID(ctx context.Context, requestID string) (*Request, error) {
	return s.repo.GetByRequestID(ctx, requestID)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Request, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown request status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

func notInStatus(r *Request, want Status) error {
	return apperr.Conflict("Request %s is not %s (current status: %s)", r.RequestID, want, r.Status)
}

// intakeWard is where alerts about a request without a bed are shown.
func (s *Service) intakeWard(r *Request) string {
	if r.PreferredWard != "" {
		return r.PreferredWard
	}
	return s.settings.Current().EmergencyWard
}

func triageLabel(level string) string {
	if level == "" {
		return "untriaged"
	}
	return level
}

func (s *Service) raise(ctx context.Context, in alert.Input) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Create(ctx, in); err != nil {
		s.logger.Error().Err(err).Str("message", in.Message).Msg("failed to raise alert")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, r *Request) {
	ev := realtime.NewEvent(eventType, "bed_request", r.ID.String(), r)
	var topics []string
	if w := r.Ward(); w != "" {
		topics = append(topics, realtime.WardTopic(w))
	}
	if r.AssignedBedID != nil {
		topics = append(topics, realtime.BedTopic(r.AssignedBedID.String()))
	}
	if err := realtime.Emit(ctx, s.pub, ev, topics...); err != nil {
		s.logger.Warn().Err(err).Str("request", r.RequestID).Msg("request event not fully delivered")
	}
}
