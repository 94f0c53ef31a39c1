// Package cleaningtest provides in-memory cleaning repositories.
package cleaningtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedtrack/bedtrack/internal/domain/cleaning"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*cleaning.Job
	seq  int
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[uuid.UUID]*cleaning.Job)}
}

func cloneJob(j *cleaning.Job) *cleaning.Job {
	c := *j
	return &c
}

func (r *JobRepo) Checkpoint() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*cleaning.Job, len(r.jobs))
	for id, j := range r.jobs {
		saved[id] = cloneJob(j)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.jobs = saved
	}
}

// ForBed returns every job recorded for a bed, oldest first.
func (r *JobRepo) ForBed(bedID uuid.UUID) []*cleaning.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*cleaning.Job
	for _, j := range r.ordered() {
		if j.BedID == bedID {
			out = append(out, j)
		}
	}
	return out
}

func (r *JobRepo) ordered() []*cleaning.Job {
	out := make([]*cleaning.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

func (r *JobRepo) Create(_ context.Context, j *cleaning.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.BedID == j.BedID && existing.Open() {
			return apperr.Conflict("Bed %s already has an open cleaning job", j.BedNumber)
		}
	}
	r.seq++
	j.ID = uuid.New()
	if j.Status == "" {
		j.Status = cleaning.JobPending
	}
	// Strictly increasing timestamps keep ordering stable.
	j.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Microsecond)
	j.UpdatedAt = j.CreatedAt
	r.jobs[j.ID] = cloneJob(j)
	return nil
}

func (r *JobRepo) GetByID(_ context.Context, id uuid.UUID) (*cleaning.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperr.NotFound("Cleaning job %s not found", id)
	}
	return cloneJob(j), nil
}

func (r *JobRepo) FindOpenByBed(_ context.Context, bedID uuid.UUID) (*cleaning.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.BedID == bedID && j.Open() {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

func (r *JobRepo) List(_ context.Context, f cleaning.JobFilter) ([]*cleaning.Job, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*cleaning.Job
	all := r.ordered()
	for i := len(all) - 1; i >= 0; i-- {
		j := all[i]
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Ward != "" && j.Ward != f.Ward {
			continue
		}
		if f.StaffID != nil && (j.AssignedStaffID == nil || *j.AssignedStaffID != *f.StaffID) {
			continue
		}
		matched = append(matched, j)
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

func (r *JobRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to cleaning.JobStatus) (*cleaning.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != from {
		return nil, nil
	}
	now := time.Now()
	j.Status = to
	switch to {
	case cleaning.JobActive:
		j.StartedAt = &now
	case cleaning.JobCompleted:
		j.CompletedAt = &now
	}
	j.UpdatedAt = now
	return cloneJob(j), nil
}

func (r *JobRepo) SetAssignee(_ context.Context, id uuid.UUID, prev *uuid.UUID, staff *cleaning.Staff) (*cleaning.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !j.Open() {
		return nil, nil
	}
	if (prev == nil) != (j.AssignedStaffID == nil) || (prev != nil && *prev != *j.AssignedStaffID) {
		return nil, nil
	}
	sid := staff.ID
	j.AssignedStaffID = &sid
	j.AssignedStaffName = staff.Name
	j.UpdatedAt = time.Now()
	return cloneJob(j), nil
}

func (r *JobRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !j.Open() {
		return false, nil
	}
	delete(r.jobs, id)
	return true, nil
}

type StaffRepo struct {
	mu    sync.Mutex
	staff map[uuid.UUID]*cleaning.Staff
}

func NewStaffRepo() *StaffRepo {
	return &StaffRepo{staff: make(map[uuid.UUID]*cleaning.Staff)}
}

func cloneStaff(s *cleaning.Staff) *cleaning.Staff {
	c := *s
	return &c
}

func (r *StaffRepo) Checkpoint() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*cleaning.Staff, len(r.staff))
	for id, s := range r.staff {
		saved[id] = cloneStaff(s)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.staff = saved
	}
}

func (r *StaffRepo) Create(_ context.Context, s *cleaning.Staff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.staff {
		if existing.StaffCode == s.StaffCode {
			return apperr.Conflict("Staff code %s already exists", s.StaffCode)
		}
	}
	s.ID = uuid.New()
	s.Status = cleaning.StaffAvailable
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.staff[s.ID] = cloneStaff(s)
	return nil
}

func (r *StaffRepo) GetByID(_ context.Context, id uuid.UUID) (*cleaning.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.staff[id]
	if !ok {
		return nil, apperr.NotFound("Cleaning staff %s not found", id)
	}
	return cloneStaff(s), nil
}

func (r *StaffRepo) GetByCode(_ context.Context, code string) (*cleaning.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.staff {
		if s.StaffCode == code {
			return cloneStaff(s), nil
		}
	}
	return nil, apperr.NotFound("Cleaning staff %s not found", code)
}

func (r *StaffRepo) List(_ context.Context, limit, offset int) ([]*cleaning.Staff, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*cleaning.Staff, 0, len(r.staff))
	for _, s := range r.staff {
		out = append(out, cloneStaff(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffCode < out[j].StaffCode })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}

func (r *StaffRepo) AdjustActive(_ context.Context, id uuid.UUID, activeDelta, completedDelta int) (*cleaning.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.staff[id]
	if !ok {
		return nil, apperr.NotFound("Cleaning staff %s not found", id)
	}
	s.ActiveJobs += activeDelta
	if s.ActiveJobs < 0 {
		s.ActiveJobs = 0
	}
	s.CompletedJobs += completedDelta
	s.Status = cleaning.StaffAvailable
	if s.ActiveJobs > 0 {
		s.Status = cleaning.StaffBusy
	}
	s.UpdatedAt = time.Now()
	return cloneStaff(s), nil
}
