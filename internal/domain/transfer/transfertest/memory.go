// Package transfertest provides an in-memory transfer.Repository.
package transfertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedtrack/bedtrack/internal/domain/transfer"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

type Repo struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*transfer.Transfer
	seq       int
}

func NewRepo() *Repo {
	return &Repo{transfers: make(map[uuid.UUID]*transfer.Transfer)}
}

func clone(t *transfer.Transfer) *transfer.Transfer {
	c := *t
	return &c
}

func (r *Repo) Checkpoint() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*transfer.Transfer, len(r.transfers))
	for id, t := range r.transfers {
		saved[id] = clone(t)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.transfers = saved
	}
}

func (r *Repo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

func (r *Repo) Create(_ context.Context, t *transfer.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transfers {
		if existing.PatientID == t.PatientID && existing.Status == transfer.StatusPending {
			return apperr.Conflict("Patient already has a pending transfer")
		}
	}
	r.seq++
	t.ID = uuid.New()
	t.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Microsecond)
	t.UpdatedAt = t.CreatedAt
	r.transfers[t.ID] = clone(t)
	return nil
}

func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, apperr.NotFound("Transfer %s not found", id)
	}
	return clone(t), nil
}

func (r *Repo) FindPendingByPatient(_ context.Context, patientID uuid.UUID) (*transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.PatientID == patientID && t.Status == transfer.StatusPending {
			return clone(t), nil
		}
	}
	return nil, nil
}

func (r *Repo) List(_ context.Context, f transfer.Filter) ([]*transfer.Transfer, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*transfer.Transfer
	for _, t := range r.transfers {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.PatientID != nil && t.PatientID != *f.PatientID {
			continue
		}
		if f.Ward != "" && t.CurrentWard != f.Ward && t.TargetWard != f.Ward {
			continue
		}
		matched = append(matched, clone(t))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *Repo) pending(id uuid.UUID, fn func(t *transfer.Transfer)) *transfer.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok || t.Status != transfer.StatusPending {
		return nil
	}
	fn(t)
	t.UpdatedAt = time.Now()
	return clone(t)
}

func (r *Repo) UpdateDetails(_ context.Context, id uuid.UUID, reason, notes string) (*transfer.Transfer, error) {
	return r.pending(id, func(t *transfer.Transfer) {
		t.Reason, t.Notes = reason, notes
	}), nil
}

func (r *Repo) MarkCompleted(_ context.Context, id uuid.UUID, c transfer.Completion) (*transfer.Transfer, error) {
	return r.pending(id, func(t *transfer.Transfer) {
		now := time.Now()
		dest := c.DestinationBedID
		t.Status = transfer.StatusCompleted
		t.DestinationBedID = &dest
		t.ReviewedBy, t.ReviewedAt, t.CompletedAt = c.ReviewedBy, &now, &now
		if c.Notes != nil {
			t.Notes = *c.Notes
		}
	}), nil
}

func (r *Repo) MarkDenied(_ context.Context, id uuid.UUID, reviewer, reason string) (*transfer.Transfer, error) {
	return r.pending(id, func(t *transfer.Transfer) {
		now := time.Now()
		t.Status = transfer.StatusDenied
		t.ReviewedBy, t.ReviewedAt, t.DenyReason = reviewer, &now, reason
	}), nil
}

func (r *Repo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok || t.Status != transfer.StatusPending {
		return false, nil
	}
	delete(r.transfers, id)
	return true, nil
}
