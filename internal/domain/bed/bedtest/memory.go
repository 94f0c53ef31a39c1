// Package bedtest provides an in-memory bed.Repository for tests of the
// workflows that move beds.
package bedtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

type Repo struct {
	mu   sync.Mutex
	beds map[uuid.UUID]*bed.Bed
	// FailApply makes the next ApplyChange for this bed fail with the error.
	FailApply map[uuid.UUID]error
	// ShiftBeforeDelete moves the bed to the status just before the next
	// Delete of it runs.
	ShiftBeforeDelete map[uuid.UUID]bed.Status
}

func NewRepo() *Repo {
	return &Repo{
		beds:              make(map[uuid.UUID]*bed.Bed),
		FailApply:         make(map[uuid.UUID]error),
		ShiftBeforeDelete: make(map[uuid.UUID]bed.Status),
	}
}

func clone(b *bed.Bed) *bed.Bed {
	c := *b
	return &c
}

// Add stores b as-is, assigning an id when missing.
func (r *Repo) Add(b *bed.Bed) *bed.Bed {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.EquipmentType == "" {
		b.EquipmentType = bed.DefaultEquipment
	}
	if b.Status == bed.StatusOccupied {
		b.EverOccupied = true
	}
	r.beds[b.ID] = clone(b)
	return b
}

// Snapshot copies the current state for a later Restore.
func (r *Repo) Snapshot() map[uuid.UUID]*bed.Bed {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*bed.Bed, len(r.beds))
	for id, b := range r.beds {
		out[id] = clone(b)
	}
	return out
}

func (r *Repo) Restore(s map[uuid.UUID]*bed.Bed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beds = s
}

// Checkpoint implements dbtest.Checkpointer.
func (r *Repo) Checkpoint() func() {
	saved := r.Snapshot()
	return func() { r.Restore(saved) }
}

func (r *Repo) Create(_ context.Context, b *bed.Bed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.beds {
		if existing.BedNumber == b.BedNumber {
			return apperr.Conflict("Bed %s already exists", b.BedNumber)
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	r.beds[b.ID] = clone(b)
	return nil
}

func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.beds[id]
	if !ok {
		return nil, apperr.NotFound("Bed %s not found", id)
	}
	return clone(b), nil
}

func (r *Repo) GetByNumber(_ context.Context, number string) (*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.beds {
		if b.BedNumber == number {
			return clone(b), nil
		}
	}
	return nil, apperr.NotFound("Bed %s not found", number)
}

func (r *Repo) sorted() []*bed.Bed {
	out := make([]*bed.Bed, 0, len(r.beds))
	for _, b := range r.beds {
		out = append(out, clone(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ward != out[j].Ward {
			return out[i].Ward < out[j].Ward
		}
		return out[i].BedNumber < out[j].BedNumber
	})
	return out
}

func (r *Repo) List(_ context.Context, f bed.Filter) ([]*bed.Bed, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*bed.Bed
	for _, b := range r.sorted() {
		if f.Ward != "" && b.Ward != f.Ward {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.EquipmentType != "" && b.EquipmentType != f.EquipmentType {
			continue
		}
		matched = append(matched, b)
	}
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

func (r *Repo) ListByWard(_ context.Context, ward string) ([]*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bed.Bed
	for _, b := range r.sorted() {
		if b.Ward == ward {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *Repo) Update(_ context.Context, b *bed.Bed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.beds[b.ID]
	if !ok {
		return apperr.NotFound("Bed %s not found", b.ID)
	}
	cur.EquipmentType = b.EquipmentType
	cur.Floor, cur.Section, cur.RoomNumber, cur.Notes = b.Floor, b.Section, b.RoomNumber, b.Notes
	cur.UpdatedAt = time.Now()
	return nil
}

func (r *Repo) ApplyChange(_ context.Context, id uuid.UUID, from bed.Status, ch bed.Change) (*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailApply[id]; ok {
		delete(r.FailApply, id)
		return nil, err
	}
	cur, ok := r.beds[id]
	if !ok || cur.Status != from {
		return nil, nil
	}
	cur.Status = ch.To
	cur.PatientID = nil
	if ch.To == bed.StatusOccupied && ch.PatientID != nil {
		pid := *ch.PatientID
		cur.PatientID = &pid
		cur.EverOccupied = true
	}
	if ch.Notes != nil {
		cur.Notes = *ch.Notes
	}
	if ch.Cleaned {
		now := time.Now()
		cur.LastCleanedAt = &now
	}
	cur.UpdatedAt = time.Now()
	return clone(cur), nil
}

func (r *Repo) FindAvailable(_ context.Context, ward string, equipment []string) (*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.sorted() {
		if b.Ward != ward || b.Status != bed.StatusAvailable {
			continue
		}
		for _, eq := range equipment {
			if b.EquipmentType == eq {
				return b, nil
			}
		}
	}
	return nil, nil
}

func (r *Repo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.beds[id]
	if !ok {
		return nil
	}
	if to, ok := r.ShiftBeforeDelete[id]; ok {
		delete(r.ShiftBeforeDelete, id)
		cur.Status = to
	}
	if cur.Status == bed.StatusOccupied || cur.Status == bed.StatusReserved {
		return apperr.Conflict("Bed %s cannot be deleted while %s", cur.BedNumber, cur.Status)
	}
	delete(r.beds, id)
	return nil
}

func (r *Repo) CountByWardStatus(_ context.Context) ([]bed.WardCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[[2]string]int{}
	for _, b := range r.beds {
		counts[[2]string{b.Ward, string(b.Status)}]++
	}
	var out []bed.WardCount
	for k, n := range counts {
		out = append(out, bed.WardCount{Ward: k[0], Status: bed.Status(k[1]), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ward != out[j].Ward {
			return out[i].Ward < out[j].Ward
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}
