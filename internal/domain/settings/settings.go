// Package settings holds the hospital-wide tunables. They are loaded once at
// startup and replaced explicitly through Update or Reload; readers never
// touch the database.
package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
)

const (
	DefaultReservationTTLHours  = 2
	DefaultCriticalOccupancyPct = 90
	DefaultEmergencyWard        = "Emergency"
)

type Settings struct {
	ReservationTTLHours  float64        `json:"reservation_ttl_hours"`
	CriticalOccupancyPct int            `json:"critical_occupancy_pct"`
	EmergencyWard        string         `json:"emergency_ward"`
	WardCapacity         map[string]int `json:"ward_capacity"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func Defaults() Settings {
	return Settings{
		ReservationTTLHours:  DefaultReservationTTLHours,
		CriticalOccupancyPct: DefaultCriticalOccupancyPct,
		EmergencyWard:        DefaultEmergencyWard,
		WardCapacity:         map[string]int{},
	}
}

// ReservationTTL is how long an approved request holds its bed.
func (s Settings) ReservationTTL() time.Duration {
	return time.Duration(s.ReservationTTLHours * float64(time.Hour))
}

func (s Settings) clone() Settings {
	c := s
	c.WardCapacity = make(map[string]int, len(s.WardCapacity))
	for k, v := range s.WardCapacity {
		c.WardCapacity[k] = v
	}
	return c
}

func (s Settings) Validate() error {
	if s.ReservationTTLHours <= 0 || s.ReservationTTLHours > 72 {
		return apperr.Validation("reservation TTL must be between 0 and 72 hours, got %g", s.ReservationTTLHours)
	}
	if s.CriticalOccupancyPct < 1 || s.CriticalOccupancyPct > 100 {
		return apperr.Validation("critical occupancy must be between 1 and 100 percent, got %d", s.CriticalOccupancyPct)
	}
	if strings.TrimSpace(s.EmergencyWard) == "" {
		return apperr.Validation("emergency ward is required")
	}
	for ward, n := range s.WardCapacity {
		if n < 0 {
			return apperr.Validation("capacity for %s cannot be negative", ward)
		}
	}
	return nil
}

// Provider is what the lifecycle services read settings through.
type Provider interface {
	Current() Settings
}

type Repository interface {
	// Load returns nil when no settings row exists.
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Store is the process-wide settings holder.
type Store struct {
	mu     sync.RWMutex
	cur    Settings
	repo   Repository
	policy *auth.Policy
	logger zerolog.Logger
}

// NewStore starts from Defaults; call Reload to pick up persisted values.
func NewStore(repo Repository, policy *auth.Policy, logger zerolog.Logger) *Store {
	return &Store{
		cur:    Defaults(),
		repo:   repo,
		policy: policy,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Static returns a Provider fixed to s.
func Static(s Settings) Provider { return static(s) }

type static Settings

func (s static) Current() Settings { return Settings(s).clone() }

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Reload re-reads the persisted settings. A missing row keeps the defaults.
func (s *Store) Reload(ctx context.Context) (Settings, error) {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	next := Defaults()
	if loaded != nil {
		next = loaded.clone()
		if next.EmergencyWard == "" {
			next.EmergencyWard = DefaultEmergencyWard
		}
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()

	s.logger.Info().
		Float64("reservation_ttl_hours", next.ReservationTTLHours).
		Int("critical_occupancy_pct", next.CriticalOccupancyPct).
		Str("emergency_ward", next.EmergencyWard).
		Msg("settings loaded")
	return next.clone(), nil
}

func (s *Store) Update(ctx context.Context, actor auth.Actor, in Settings) (Settings, error) {
	if err := s.policy.Authorize(actor, auth.ActionSettingsUpdate, auth.Resource{}); err != nil {
		return Settings{}, err
	}
	in.EmergencyWard = strings.TrimSpace(in.EmergencyWard)
	if in.WardCapacity == nil {
		in.WardCapacity = map[string]int{}
	}
	if err := in.Validate(); err != nil {
		return Settings{}, err
	}
	next := in.clone()
	next.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, &next); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return next.clone(), nil
}
