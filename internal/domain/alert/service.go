package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
)

const EventAlertCreated = "alert:created"

// Sink is the create-only interface the lifecycle services raise alerts on.
type Sink interface {
	Create(ctx context.Context, in Input) error
}

// Forwarder delivers critical alerts outside the system.
type Forwarder interface {
	Forward(ctx context.Context, a *Alert) error
}

type Service struct {
	repo      Repository
	policy    *auth.Policy
	pub       realtime.Publisher
	forwarder Forwarder
	logger    zerolog.Logger
}

func NewService(repo Repository, policy *auth.Policy, pub realtime.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: policy,
		pub:    pub,
		logger: logger.With().Str("component", "alert").Logger(),
	}
}

func (s *Service) SetForwarder(f Forwarder) {
	s.forwarder = f
}

func (s *Service) Create(ctx context.Context, in Input) error {
	_, err := s.Raise(ctx, in)
	return err
}

// Raise stores an alert, publishes it and hands critical alerts to the
// forwarder in the background.
func (s *Service) Raise(ctx context.Context, in Input) (*Alert, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, apperr.Validation("alert message is required")
	}
	switch in.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	case "":
		in.Severity = SeverityInfo
	default:
		return nil, apperr.Validation("unknown alert severity %q", in.Severity)
	}
	if in.Priority <= 0 {
		in.Priority = 1
	}

	a := &Alert{
		Severity: in.Severity,
		Message:  in.Message,
		Ward:     in.Ward,
		Priority: in.Priority,
		BedID:    in.BedID,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	ev := realtime.NewEvent(EventAlertCreated, "alert", a.ID.String(), a)
	var wardTopic string
	if a.Ward != "" {
		wardTopic = realtime.WardTopic(a.Ward)
	}
	if err := realtime.Emit(ctx, s.pub, ev, wardTopic); err != nil {
		s.logger.Warn().Err(err).Msg("alert event not fully delivered")
	}

	if a.Severity == SeverityCritical && s.forwarder != nil {
		go s.forward(context.WithoutCancel(ctx), a)
	}
	return a, nil
}

func (s *Service) forward(ctx context.Context, a *Alert) {
	if err := s.forwarder.Forward(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("critical alert not forwarded")
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Alert, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Acknowledge(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Alert, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActionAlertAck, auth.Resource{Ward: current.Ward}); err != nil {
		return nil, err
	}
	a, err := s.repo.Acknowledge(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.Conflict("Alert already acknowledged by %s", current.AcknowledgedBy)
	}
	return a, nil
}
