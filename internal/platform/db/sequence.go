package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequence names used for human-readable identifiers.
const (
	SeqRequest = "request"
	SeqPatient = "patient"
)

// Sequencer hands out the next value of a named counter.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Sequence hands out monotonic per-name counters from the id_sequence table.
// The increment happens in a single UPSERT so concurrent callers never see the
// same value.
type Sequence struct {
	pool *pgxpool.Pool
}

func NewSequence(pool *pgxpool.Pool) *Sequence {
	return &Sequence{pool: pool}
}

func (s *Sequence) Next(ctx context.Context, name string) (int64, error) {
	var v int64
	err := Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO id_sequence (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = id_sequence.value + 1
		RETURNING value`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return v, nil
}

// FormatID renders a counter as PREFIX-NNNNNN.
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}
