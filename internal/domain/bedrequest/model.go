package bedrequest

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusFulfilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDenied, StatusFulfilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

const (
	PriorityCritical = 5
	PriorityUrgent   = 3
	PriorityRoutine  = 2
)

// PriorityFor derives a request's priority from its triage level.
func PriorityFor(triage string) int {
	switch strings.ToLower(strings.TrimSpace(triage)) {
	case "critical":
		return PriorityCritical
	case "urgent", "semi-urgent":
		return PriorityUrgent
	}
	return PriorityRoutine
}

// Request maps to the bed_request table. The assigned bed snapshot is set iff
// the request is approved or fulfilled; ReservationExpiresAt only while
// approved.
type Request struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	RequestID            string     `db:"request_id" json:"request_id"`
	RequestedBy          string     `db:"requested_by" json:"requested_by"`
	RequestedByName      string     `db:"requested_by_name" json:"requested_by_name,omitempty"`
	PatientName          string     `db:"patient_name" json:"patient_name"`
	PatientAge           int        `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender        string     `db:"patient_gender" json:"patient_gender,omitempty"`
	TriageLevel          string     `db:"triage_level" json:"triage_level,omitempty"`
	RequiredEquipment    string     `db:"required_equipment" json:"required_equipment,omitempty"`
	Reason               string     `db:"reason" json:"reason,omitempty"`
	PreferredWard        string     `db:"preferred_ward" json:"preferred_ward,omitempty"`
	ETA                  time.Time  `db:"eta" json:"eta"`
	Status               Status     `db:"status" json:"status"`
	Priority             int        `db:"priority" json:"priority"`
	AssignedBedID        *uuid.UUID `db:"assigned_bed_id" json:"assigned_bed_id,omitempty"`
	AssignedBedNumber    string     `db:"assigned_bed_number" json:"assigned_bed_number,omitempty"`
	AssignedBedWard      string     `db:"assigned_bed_ward" json:"assigned_bed_ward,omitempty"`
	ReviewedBy           string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	DenialReason         string     `db:"denial_reason" json:"denial_reason,omitempty"`
	ReservationExpiresAt *time.Time `db:"reservation_expires_at" json:"reservation_expires_at,omitempty"`
	FulfilledAt          *time.Time `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
	PatientID            *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	CancelledBy          string     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt          *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason         string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ExpiredAt            *time.Time `db:"expired_at" json:"expired_at,omitempty"`
	IsDeleted            bool       `db:"is_deleted" json:"-"`
	DeletedBy            string     `db:"deleted_by" json:"-"`
	DeletedAt            *time.Time `db:"deleted_at" json:"-"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Ward is the ward a request concerns: the assigned bed's once approved,
// otherwise the preferred ward.
func (r *Request) Ward() string {
	if r.AssignedBedWard != "" {
		return r.AssignedBedWard
	}
	return r.PreferredWard
}

type CreateInput struct {
	PatientName       string     `json:"patient_name"`
	PatientAge        int        `json:"patient_age"`
	PatientGender     string     `json:"patient_gender"`
	TriageLevel       string     `json:"triage_level"`
	RequiredEquipment string     `json:"required_equipment"`
	Reason            string     `json:"reason"`
	PreferredWard     string     `json:"preferred_ward"`
	ETA               *time.Time `json:"eta"`
}

type UpdateInput struct {
	PatientName       *string    `json:"patient_name"`
	PatientAge        *int       `json:"patient_age"`
	PatientGender     *string    `json:"patient_gender"`
	TriageLevel       *string    `json:"triage_level"`
	RequiredEquipment *string    `json:"required_equipment"`
	Reason            *string    `json:"reason"`
	PreferredWard     *string    `json:"preferred_ward"`
	ETA               *time.Time `json:"eta"`
}

// Approval is the bed snapshot and expiry written when a request is approved.
type Approval struct {
	BedID      uuid.UUID
	BedNumber  string
	BedWard    string
	ReviewedBy string
	ExpiresAt  time.Time
}

type Filter struct {
	Status      Status
	Ward        string
	RequestedBy string
	Limit       int
	Offset      int
}
