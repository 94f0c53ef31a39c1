// Package bedrequesttest provides an in-memory bedrequest.Repository.
package bedrequesttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedtrack/bedtrack/internal/domain/bedrequest"
	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

type Repo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*bedrequest.Request
	seq      int
}

func NewRepo() *Repo {
	return &Repo{requests: make(map[uuid.UUID]*bedrequest.Request)}
}

func clone(r *bedrequest.Request) *bedrequest.Request {
	c := *r
	return &c
}

func (r *Repo) Checkpoint() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*bedrequest.Request, len(r.requests))
	for id, req := range r.requests {
		saved[id] = clone(req)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.requests = saved
	}
}

// Raw returns a request including soft-deleted ones.
func (r *Repo) Raw(id uuid.UUID) *bedrequest.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		return clone(req)
	}
	return nil
}

func (r *Repo) Create(_ context.Context, req *bedrequest.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = uuid.New()
	req.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Microsecond)
	req.UpdatedAt = req.CreatedAt
	r.requests[req.ID] = clone(req)
	return nil
}

func (r *Repo) live(id uuid.UUID) (*bedrequest.Request, bool) {
	req, ok := r.requests[id]
	if !ok || req.IsDeleted {
		return nil, false
	}
	return req, true
}

func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*bedrequest.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.live(id)
	if !ok {
		return nil, apperr.NotFound("Bed request %s not found", id)
	}
	return clone(req), nil
}

func (r *Repo) GetByRequestID(_ context.Context, requestID string) (*bedrequest.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.RequestID == requestID && !req.IsDeleted {
			return clone(req), nil
		}
	}
	return nil, apperr.NotFound("Bed request %s not found", requestID)
}

func (r *Repo) List(_ context.Context, f bedrequest.Filter) ([]*bedrequest.Request, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*bedrequest.Request
	for _, req := range r.requests {
		if req.IsDeleted {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if f.Ward != "" && req.PreferredWard != f.Ward && req.AssignedBedWard != f.Ward {
			continue
		}
		if f.RequestedBy != "" && req.RequestedBy != f.RequestedBy {
			continue
		}
		matched = append(matched, clone(req))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
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

func (r *Repo) ListDue(_ context.Context, now time.Time, limit int) ([]*bedrequest.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bedrequest.Request
	for _, req := range r.requests {
		if req.IsDeleted || req.Status != bedrequest.StatusApproved || req.ReservationExpiresAt == nil {
			continue
		}
		if !req.ReservationExpiresAt.After(now) {
			out = append(out, clone(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationExpiresAt.Before(*out[j].ReservationExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mutate applies fn to a live request accepted by ok, or returns nil.
func (r *Repo) mutate(id uuid.UUID, ok func(*bedrequest.Request) bool, fn func(*bedrequest.Request)) *bedrequest.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, found := r.live(id)
	if !found || !ok(req) {
		return nil
	}
	fn(req)
	req.UpdatedAt = time.Now()
	return clone(req)
}

func inStatus(s bedrequest.Status) func(*bedrequest.Request) bool {
	return func(req *bedrequest.Request) bool { return req.Status == s }
}

func (r *Repo) UpdateDetails(_ context.Context, in *bedrequest.Request) (*bedrequest.Request, error) {
	return r.mutate(in.ID, inStatus(bedrequest.StatusPending), func(req *bedrequest.Request) {
		req.PatientName, req.PatientAge, req.PatientGender = in.PatientName, in.PatientAge, in.PatientGender
		req.TriageLevel, req.RequiredEquipment, req.Reason = in.TriageLevel, in.RequiredEquipment, in.Reason
		req.PreferredWard, req.ETA, req.Priority = in.PreferredWard, in.ETA, in.Priority
	}), nil
}

func (r *Repo) MarkApproved(_ context.Context, id uuid.UUID, a bedrequest.Approval) (*bedrequest.Request, error) {
	return r.mutate(id, inStatus(bedrequest.StatusPending), func(req *bedrequest.Request) {
		now := time.Now()
		bedID, expires := a.BedID, a.ExpiresAt
		req.Status = bedrequest.StatusApproved
		req.AssignedBedID, req.AssignedBedNumber, req.AssignedBedWard = &bedID, a.BedNumber, a.BedWard
		req.ReviewedBy, req.ReviewedAt = a.ReviewedBy, &now
		req.ReservationExpiresAt = &expires
	}), nil
}

func (r *Repo) MarkDenied(_ context.Context, id uuid.UUID, reviewer, reason string) (*bedrequest.Request, error) {
	return r.mutate(id, inStatus(bedrequest.StatusPending), func(req *bedrequest.Request) {
		now := time.Now()
		req.Status = bedrequest.StatusDenied
		req.ReviewedBy, req.ReviewedAt, req.DenialReason = reviewer, &now, reason
	}), nil
}

func (r *Repo) MarkFulfilled(_ context.Context, id, patientID uuid.UUID) (*bedrequest.Request, error) {
	ok := func(req *bedrequest.Request) bool {
		return req.Status == bedrequest.StatusApproved && req.AssignedBedID != nil
	}
	return r.mutate(id, ok, func(req *bedrequest.Request) {
		now := time.Now()
		pid := patientID
		req.Status = bedrequest.StatusFulfilled
		req.FulfilledAt, req.PatientID = &now, &pid
		req.ReservationExpiresAt = nil
	}), nil
}

func (r *Repo) MarkCancelled(_ context.Context, id uuid.UUID, by, reason string) (*bedrequest.Request, error) {
	return r.mutate(id, inStatus(bedrequest.StatusPending), func(req *bedrequest.Request) {
		now := time.Now()
		req.Status = bedrequest.StatusDenied
		req.CancelledBy, req.CancelledAt, req.CancelReason = by, &now, reason
		req.AssignedBedID, req.AssignedBedNumber, req.AssignedBedWard = nil, "", ""
		req.ReservationExpiresAt = nil
	}), nil
}

func (r *Repo) MarkExpired(_ context.Context, id uuid.UUID, now time.Time) (*bedrequest.Request, error) {
	ok := func(req *bedrequest.Request) bool {
		return req.Status == bedrequest.StatusApproved && req.ReservationExpiresAt != nil &&
			!req.ReservationExpiresAt.After(now)
	}
	return r.mutate(id, ok, func(req *bedrequest.Request) {
		at := now
		req.Status = bedrequest.StatusExpired
		req.ExpiredAt = &at
		req.ReservationExpiresAt = nil
		req.AssignedBedID, req.AssignedBedNumber, req.AssignedBedWard = nil, "", ""
	}), nil
}

func (r *Repo) SoftDelete(_ context.Context, id uuid.UUID, by string) (*bedrequest.Request, error) {
	ok := func(req *bedrequest.Request) bool { return req.Status.Terminal() }
	return r.mutate(id, ok, func(req *bedrequest.Request) {
		now := time.Now()
		req.IsDeleted, req.DeletedBy, req.DeletedAt = true, by, &now
	}), nil
}
