package bedrequest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/redisx"
)

const (
	DefaultSweepInterval = 60 * time.Second
	sweepLockName        = "bedrequest-expiry-sweep"
)

// Expirer is the part of the request lifecycle the sweeper drives.
type Expirer interface {
	DueForExpiry(ctx context.Context) ([]*Request, error)
	Expire(ctx context.Context, id uuid.UUID) (*Request, error)
}

// Locker elects a single sweeping replica per tick.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), error)
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Expired  int  `json:"expired"`
	Resolved int  `json:"already_resolved"`
	Failed   int  `json:"failed"`
	Skipped  bool `json:"skipped"`
}

// Sweeper expires lapsed reservations on a fixed interval. It sweeps once
// when started and then on every tick until stopped.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	locker   Locker
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(expirer Expirer, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger.With().Str("component", "expiry-sweeper").Logger(),
	}
}

// SetLocker makes each tick sweep only when the lock is won.
func (s *Sweeper) SetLocker(l Locker) {
	s.locker = l
}

// Start runs the sweeper in the background. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
}

// Stop prevents further ticks and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info().Msg("expiry sweeper stopped")
}

// Run sweeps immediately and then on every tick. It blocks until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// A started sweep runs to the end of its batch even if Stop is called.
	res := s.SweepOnce(context.WithoutCancel(ctx))
	if res.Expired > 0 || res.Failed > 0 {
		s.logger.Info().Int("expired", res.Expired).Int("failed", res.Failed).
			Int("already_resolved", res.Resolved).Msg("expiry sweep finished")
	}
}

// SweepOnce expires every lapsed reservation once. Failures are logged per
// record and do not stop the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	var res SweepResult
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, sweepLockName, s.interval)
		if err != nil {
			if !errors.Is(err, redisx.ErrNotAcquired) {
				s.logger.Warn().Err(err).Msg("sweep lock unavailable; skipping tick")
			}
			res.Skipped = true
			return res
		}
		defer release(ctx)
	}

	due, err := s.expirer.DueForExpiry(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list lapsed reservations")
		res.Failed++
		return res
	}
	for _, r := range due {
		if err := s.expireOne(ctx, r); err != nil {
			if errors.Is(err, ErrAlreadyResolved) {
				res.Resolved++
				continue
			}
			res.Failed++
			s.logger.Error().Err(err).Str("request", r.RequestID).Msg("failed to expire reservation")
			continue
		}
		res.Expired++
	}
	return res
}

// expireOne turns a panic while expiring r into an error so the rest of the
// batch still runs.
func (s *Sweeper) expireOne(ctx context.Context, r *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic expiring %s: %v", r.RequestID, rec)
		}
	}()
	_, err = s.expirer.Expire(ctx, r.ID)
	return err
}
