package bed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

const EventBedUpdated = "bed:updated"

// CleaningScheduler queues a cleaning job for a bed that has just been vacated.
type CleaningScheduler interface {
	ScheduleCleaning(ctx context.Context, b *Bed) error
}

// OccupantReleaser ends the admission of the patient held by a bed that is
// vacated by hand. It runs inside the vacating transaction and returns a
// func to call once that transaction has committed.
type OccupantReleaser interface {
	ReleaseOccupant(ctx context.Context, patientID, bedID uuid.UUID) (func(context.Context), error)
}

type Service struct {
	repo      Repository
	policy    *auth.Policy
	pub       realtime.Publisher
	cleaning  CleaningScheduler
	occupants OccupantReleaser
	tx        db.TxRunner
	logger    zerolog.Logger
}

func NewService(repo Repository, policy *auth.Policy, pub realtime.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: policy,
		pub:    pub,
		logger: logger.With().Str("component", "bed").Logger(),
	}
}

// SetCleaningScheduler attaches the cleaning workflow. Without one, vacated
// beds are not queued for cleaning.
func (s *Service) SetCleaningScheduler(c CleaningScheduler) {
	s.cleaning = c
}

// SetOccupantReleaser makes manual moves out of occupied end the patient's
// admission in the same transaction as the bed write.
func (s *Service) SetOccupantReleaser(r OccupantReleaser, tx db.TxRunner) {
	s.occupants = r
	s.tx = tx
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Bed, error) {
	if err := s.policy.Authorize(actor, auth.ActionBedCreate, auth.Resource{Ward: in.Ward}); err != nil {
		return nil, err
	}
	in.BedNumber = strings.TrimSpace(in.BedNumber)
	in.Ward = strings.TrimSpace(in.Ward)
	if in.BedNumber == "" {
		return nil, apperr.Validation("bed number is required")
	}
	if in.Ward == "" {
		return nil, apperr.Validation("ward is required")
	}
	if in.Status == "" {
		in.Status = StatusAvailable
	}
	if in.Status != StatusAvailable && in.Status != StatusMaintenance {
		return nil, apperr.Validation("new beds must start available or in maintenance, got %q", in.Status)
	}
	if in.EquipmentType == "" {
		in.EquipmentType = DefaultEquipment
	}

	if existing, err := s.repo.GetByNumber(ctx, in.BedNumber); err == nil && existing != nil {
		return nil, apperr.Conflict("Bed %s already exists", in.BedNumber)
	} else if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	b := &Bed{
		BedNumber:     in.BedNumber,
		Ward:          in.Ward,
		Status:        in.Status,
		EquipmentType: in.EquipmentType,
		Floor:         in.Floor,
		Section:       in.Section,
		RoomNumber:    in.RoomNumber,
		Notes:         in.Notes,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, b)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Bed, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Bed, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown bed status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Bed, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionBedUpdate, auth.Resource{Ward: b.Ward}); err != nil {
		return nil, err
	}
	if in.EquipmentType != nil {
		if *in.EquipmentType == "" {
			return nil, apperr.Validation("equipment type cannot be empty")
		}
		b.EquipmentType = *in.EquipmentType
	}
	if in.Floor != nil {
		b.Floor = *in.Floor
	}
	if in.Section != nil {
		b.Section = *in.Section
	}
	if in.RoomNumber != nil {
		b.RoomNumber = *in.RoomNumber
	}
	if in.Notes != nil {
		b.Notes = *in.Notes
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, b)
	return b, nil
}

// Transition moves a bed to status to on behalf of actor. Occupying a bed
// needs a patient and therefore goes through request fulfilment or a
// transfer instead.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, to Status, notes *string) (*Bed, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown bed status %q", to)
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionBedStatus, auth.Resource{Ward: b.Ward}); err != nil {
		return nil, err
	}
	if to == StatusOccupied && CanTransition(b.Status, to) {
		return nil, apperr.Validation("occupying bed %s requires a patient; fulfil a bed request instead", b.BedNumber)
	}

	prev := b.Status
	var (
		updated  *Bed
		released func(context.Context)
	)
	err = s.withTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.Apply(ctx, b, Change{To: to, Notes: notes})
		if err != nil {
			return err
		}
		if prev == StatusOccupied && b.PatientID != nil && s.occupants != nil {
			released, err = s.occupants.ReleaseOccupant(ctx, *b.PatientID, b.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.AfterTransition(ctx, prev, updated)
	if released != nil {
		released(ctx)
	}
	return updated, nil
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTx(ctx, fn)
}

// Apply validates observed.Status -> ch.To against the transition table and
// writes it conditionally. It neither publishes nor schedules cleaning, so it
// is safe inside a transaction; call AfterTransition once committed.
func (s *Service) Apply(ctx context.Context, observed *Bed, ch Change) (*Bed, error) {
	if err := ValidateTransition(observed.Status, ch.To); err != nil {
		return nil, err
	}
	if ch.To == StatusOccupied && ch.PatientID == nil {
		return nil, apperr.Validation("bed %s cannot be occupied without a patient", observed.BedNumber)
	}
	updated, err := s.repo.ApplyChange(ctx, observed.ID, observed.Status, ch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		current, gerr := s.repo.GetByID(ctx, observed.ID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperr.Conflict("Bed %s is no longer %s (current status: %s)",
			observed.BedNumber, observed.Status, current.Status)
	}
	return updated, nil
}

// AfterTransition publishes the change and queues cleaning when the bed has
// just been vacated.
func (s *Service) AfterTransition(ctx context.Context, prev Status, b *Bed) {
	s.publish(ctx, b)
	if prev == StatusOccupied && b.Status != StatusOccupied && s.cleaning != nil {
		if err := s.cleaning.ScheduleCleaning(ctx, b); err != nil {
			s.logger.Error().Err(err).Str("bed_id", b.ID.String()).Msg("failed to schedule cleaning")
		}
	}
}

// Delete removes a bed that holds no patient or reservation.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, auth.ActionBedDelete, auth.Resource{Ward: b.Ward}); err != nil {
		return err
	}
	if b.Status == StatusOccupied || b.Status == StatusReserved {
		return apperr.Conflict("Bed %s cannot be deleted while %s", b.BedNumber, b.Status)
	}
	return s.repo.Delete(ctx, id)
}

// FindAvailable returns an available bed in ward with one of the given
// equipment types, or a no_capacity error.
func (s *Service) FindAvailable(ctx context.Context, ward string, equipment []string) (*Bed, error) {
	b, err := s.repo.FindAvailable(ctx, ward, equipment)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NoCapacity("No available bed in %s with equipment %s", ward, strings.Join(equipment, " or "))
	}
	return b, nil
}

func (s *Service) Stats(ctx context.Context) ([]WardCount, error) {
	return s.repo.CountByWardStatus(ctx)
}

// ReconcileCapacity makes each ward in target hold the requested number of
// beds. Missing beds are created; surplus beds are removed only when they are
// available and have never held a patient. Wards absent from target are left
// alone.
func (s *Service) ReconcileCapacity(ctx context.Context, actor auth.Actor, target map[string]int) (*ReconcileReport, error) {
	if err := s.policy.Authorize(actor, auth.ActionBedCapacity, auth.Resource{}); err != nil {
		return nil, err
	}
	report := &ReconcileReport{
		Created: map[string][]string{},
		Removed: map[string][]string{},
		Skipped: map[string]int{},
	}

	wards := make([]string, 0, len(target))
	for w := range target {
		wards = append(wards, w)
	}
	sort.Strings(wards)

	for _, ward := range wards {
		want := target[ward]
		if want < 0 {
			return nil, apperr.Validation("capacity for %s cannot be negative", ward)
		}
		beds, err := s.repo.ListByWard(ctx, ward)
		if err != nil {
			return nil, err
		}

		switch {
		case len(beds) < want:
			code := WardCode(ward)
			next := nextBedSeq(beds, code)
			for i := len(beds); i < want; i++ {
				b := &Bed{
					BedNumber:     fmt.Sprintf("%s-%03d", code, next),
					Ward:          ward,
					Status:        StatusAvailable,
					EquipmentType: DefaultEquipmentFor(ward)[0],
				}
				next++
				if err := s.repo.Create(ctx, b); err != nil {
					return nil, err
				}
				report.Created[ward] = append(report.Created[ward], b.BedNumber)
				s.publish(ctx, b)
			}

		case len(beds) > want:
			surplus := len(beds) - want
			// Remove the highest numbered candidates first.
			for i := len(beds) - 1; i >= 0 && surplus > 0; i-- {
				b := beds[i]
				if b.Status != StatusAvailable || b.PatientID != nil || b.EverOccupied {
					continue
				}
				if err := s.repo.Delete(ctx, b.ID); err != nil {
					if apperr.Is(err, apperr.KindConflict) {
						continue
					}
					return nil, err
				}
				report.Removed[ward] = append(report.Removed[ward], b.BedNumber)
				surplus--
			}
			if surplus > 0 {
				report.Skipped[ward] = surplus
			}
		}
	}

	s.logger.Info().
		Interface("created", report.Created).
		Interface("removed", report.Removed).
		Interface("skipped", report.Skipped).
		Msg("bed capacity reconciled")
	return report, nil
}

// WardCode derives the bed-number prefix for a ward: initials for multi-word
// names, the name itself when short, otherwise its first three letters.
func WardCode(ward string) string {
	words := strings.FieldsFunc(ward, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if len(words) == 0 {
		return "BED"
	}
	if len(words) > 1 {
		var b strings.Builder
		for _, w := range words {
			b.WriteRune(unicode.ToUpper([]rune(w)[0]))
		}
		return b.String()
	}
	w := strings.ToUpper(words[0])
	if len([]rune(w)) <= 4 {
		return w
	}
	return string([]rune(w)[:3])
}

func nextBedSeq(beds []*Bed, code string) int {
	highest := 0
	prefix := code + "-"
	for _, b := range beds {
		if !strings.HasPrefix(b.BedNumber, prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(b.BedNumber, prefix), "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

var wardEquipment = map[string][]string{
	"ICU":          {"ICU Monitor", "Ventilator"},
	"Emergency":    {"Cardiac Monitor", "Standard Bed"},
	"General Ward": {"Standard Bed"},
	"Pediatrics":   {"Pediatric Bed", "Standard Bed"},
	"Maternity":    {"Maternity Bed", "Standard Bed"},
}

// DefaultEquipmentFor returns the equipment types a ward's beds normally
// carry. Unknown wards get standard beds.
func DefaultEquipmentFor(ward string) []string {
	if eq, ok := wardEquipment[ward]; ok {
		out := make([]string, len(eq))
		copy(out, eq)
		return out
	}
	return []string{DefaultEquipment}
}

func (s *Service) publish(ctx context.Context, b *Bed) {
	ev := realtime.NewEvent(EventBedUpdated, "bed", b.ID.String(), b)
	if err := realtime.Emit(ctx, s.pub, ev, realtime.WardTopic(b.Ward), realtime.BedTopic(b.ID.String())); err != nil {
		s.logger.Warn().Err(err).Str("bed_id", b.ID.String()).Msg("bed event not fully delivered")
	}
}
