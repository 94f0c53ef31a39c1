package transfer

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDenied    Status = "denied"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDenied:
		return true
	}
	return false
}

// Transfer maps to the ward_transfer table. DestinationBedID is set once the
// transfer completes.
type Transfer struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	SourceBedID      uuid.UUID  `db:"source_bed_id" json:"source_bed_id"`
	DestinationBedID *uuid.UUID `db:"destination_bed_id" json:"destination_bed_id,omitempty"`
	CurrentWard      string     `db:"current_ward" json:"current_ward"`
	TargetWard       string     `db:"target_ward" json:"target_ward"`
	Reason           string     `db:"reason" json:"reason"`
	Notes            string     `db:"notes" json:"notes,omitempty"`
	Status           Status     `db:"status" json:"status"`
	RequestedBy      string     `db:"requested_by" json:"requested_by"`
	ReviewedBy       string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DenyReason       string     `db:"deny_reason" json:"deny_reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

type RequestInput struct {
	BedID       uuid.UUID `json:"bed_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	CurrentWard string    `json:"current_ward"`
	TargetWard  string    `json:"target_ward"`
	Reason      string    `json:"reason"`
	Notes       string    `json:"notes"`
}

type UpdateInput struct {
	Reason *string `json:"reason"`
	Notes  *string `json:"notes"`
}

// Completion is what an approval writes onto the transfer.
type Completion struct {
	DestinationBedID uuid.UUID
	ReviewedBy       string
	Notes            *string
}

// Filter narrows a listing. Ward matches either end of the transfer.
type Filter struct {
	Status    Status
	PatientID *uuid.UUID
	Ward      string
	Limit     int
	Offset    int
}
