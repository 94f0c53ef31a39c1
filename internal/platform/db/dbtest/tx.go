// Package dbtest provides a transaction runner for services exercised
// against in-memory repositories.
package dbtest

import (
	"context"
	"sync"
)

// Checkpointer is an in-memory store that can roll back to a saved state.
type Checkpointer interface {
	Checkpoint() (restore func())
}

type txKey struct{}

// Tx checkpoints every participant before fn runs and restores them all when
// fn fails, mirroring a rolled back database transaction. Transactions are
// serialised; nested calls join the outer one.
type Tx struct {
	participants []Checkpointer
	serial       sync.Mutex

	mu        sync.Mutex
	commits   int
	rollbacks int
}

func NewTx(participants ...Checkpointer) *Tx {
	return &Tx{participants: participants}
}

func (t *Tx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == t {
		return fn(ctx)
	}
	t.serial.Lock()
	defer t.serial.Unlock()

	restores := make([]func(), 0, len(t.participants))
	for _, p := range t.participants {
		restores = append(restores, p.Checkpoint())
	}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		t.mu.Lock()
		t.rollbacks++
		t.mu.Unlock()
		return err
	}
	t.mu.Lock()
	t.commits++
	t.mu.Unlock()
	return nil
}

func (t *Tx) Commits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commits
}

func (t *Tx) Rollbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}
