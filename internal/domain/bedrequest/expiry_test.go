package bedrequest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedtrack/bedtrack/internal/domain/bedrequest"
	"github.com/bedtrack/bedtrack/internal/platform/redisx"
)

type fakeExpirer struct {
	mu      sync.Mutex
	due     []*bedrequest.Request
	results map[uuid.UUID]error
	panics  map[uuid.UUID]bool
	calls   int
	sweeps  atomic.Int32
}

func (f *fakeExpirer) DueForExpiry(context.Context) ([]*bedrequest.Request, error) {
	f.sweeps.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakeExpirer) Expire(_ context.Context, id uuid.UUID) (*bedrequest.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics[id] {
		panic("nil bed on reservation")
	}
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &bedrequest.Request{ID: id, Status: bedrequest.StatusExpired}, nil
}

func due(n int) []*bedrequest.Request {
	out := make([]*bedrequest.Request, n)
	for i := range out {
		out[i] = &bedrequest.Request{ID: uuid.New(), RequestID: fmt.Sprintf("REQ-%06d", i+1)}
	}
	return out
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) { l.released++ }, nil
}

func TestSweepOnce_IsolatesFailures(t *testing.T) {
	reqs := due(4)
	exp := &fakeExpirer{
		due: reqs,
		results: map[uuid.UUID]error{
			reqs[1].ID: errors.New("deadlock detected"),
			reqs[2].ID: bedrequest.ErrAlreadyResolved,
		},
	}
	s := bedrequest.NewSweeper(exp, time.Minute, zerolog.Nop())

	res := s.SweepOnce(context.Background())
	assert.Equal(t, bedrequest.SweepResult{Expired: 2, Resolved: 1, Failed: 1}, res)
	assert.Equal(t, 4, exp.calls, "a failure must not stop the batch")
}

func TestSweepOnce_PanickingRecordDoesNotStopBatch(t *testing.T) {
	reqs := due(3)
	exp := &fakeExpirer{due: reqs, panics: map[uuid.UUID]bool{reqs[0].ID: true}}
	s := bedrequest.NewSweeper(exp, time.Minute, zerolog.Nop())

	var res bedrequest.SweepResult
	require.NotPanics(t, func() { res = s.SweepOnce(context.Background()) })
	assert.Equal(t, bedrequest.SweepResult{Expired: 2, Failed: 1}, res)
	assert.Equal(t, 3, exp.calls)
}

func TestSweepOnce_SkipsWhenLockHeld(t *testing.T) {
	exp := &fakeExpirer{due: due(2)}
	s := bedrequest.NewSweeper(exp, time.Minute, zerolog.Nop())
	s.SetLocker(&fakeLocker{err: redisx.ErrNotAcquired})

	res := s.SweepOnce(context.Background())
	assert.True(t, res.Skipped)
	assert.Zero(t, exp.calls)
	assert.Zero(t, exp.sweeps.Load())
}

func TestSweepOnce_ReleasesLock(t *testing.T) {
	exp := &fakeExpirer{due: due(1)}
	lock := &fakeLocker{}
	s := bedrequest.NewSweeper(exp, time.Minute, zerolog.Nop())
	s.SetLocker(lock)

	res := s.SweepOnce(context.Background())
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}

func TestSweeper_StartSweepsImmediatelyAndStops(t *testing.T) {
	exp := &fakeExpirer{}
	s := bedrequest.NewSweeper(exp, time.Hour, zerolog.Nop())
	s.Start(context.Background())
	s.Start(context.Background())

	require.Eventually(t, func() bool { return exp.sweeps.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(1), exp.sweeps.Load())
	s.Stop()
}

func TestSweeper_RunStopsOnCancelledContext(t *testing.T) {
	exp := &fakeExpirer{}
	s := bedrequest.NewSweeper(exp, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
	assert.Equal(t, int32(0), exp.sweeps.Load(), "a cancelled context never sweeps")
}
