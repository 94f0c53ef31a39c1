// Package patienttest provides an in-memory patient.Repository.
package patienttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedtrack/bedtrack/internal/domain/patient"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

type Repo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*patient.Patient
}

func NewRepo() *Repo {
	return &Repo{patients: make(map[uuid.UUID]*patient.Patient)}
}

func clone(p *patient.Patient) *patient.Patient {
	c := *p
	return &c
}

// Add stores p as-is, assigning an id when missing.
func (r *Repo) Add(p *patient.Patient) *patient.Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = patient.StatusAdmitted
	}
	if p.AdmittedAt.IsZero() {
		p.AdmittedAt = time.Now()
	}
	r.patients[p.ID] = clone(p)
	return p
}

func (r *Repo) Checkpoint() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*patient.Patient, len(r.patients))
	for id, p := range r.patients {
		saved[id] = clone(p)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.patients = saved
	}
}

func (r *Repo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patients)
}

func (r *Repo) Create(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	now := time.Now()
	p.AdmittedAt, p.CreatedAt, p.UpdatedAt = now, now, now
	r.patients[p.ID] = clone(p)
	return nil
}

func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, apperr.NotFound("Patient %s not found", id)
	}
	return clone(p), nil
}

func (r *Repo) GetByPatientID(_ context.Context, patientID string) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.PatientID == patientID {
			return clone(p), nil
		}
	}
	return nil, apperr.NotFound("Patient %s not found", patientID)
}

func (r *Repo) List(_ context.Context, f patient.Filter) ([]*patient.Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*patient.Patient
	for _, p := range r.patients {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Ward != "" && p.Ward != f.Ward {
			continue
		}
		matched = append(matched, clone(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PatientID > matched[j].PatientID })
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

func (r *Repo) Relocate(_ context.Context, id, bedID uuid.UUID, ward string) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.Status != patient.StatusAdmitted {
		return nil, nil
	}
	b := bedID
	p.BedID = &b
	p.Ward = ward
	p.UpdatedAt = time.Now()
	return clone(p), nil
}

func (r *Repo) MarkDischarged(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.Status != patient.StatusAdmitted {
		return nil, nil
	}
	now := time.Now()
	p.Status = patient.StatusDischarged
	p.DischargedAt = &now
	p.UpdatedAt = now
	return clone(p), nil
}
