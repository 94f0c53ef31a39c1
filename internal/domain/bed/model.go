package bed

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusCleaning    Status = "cleaning"
	StatusReserved    Status = "reserved"
	StatusMaintenance Status = "maintenance"
)

const DefaultEquipment = "Standard Bed"

// Bed maps to the bed table. PatientID is set iff Status is occupied.
type Bed struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BedNumber     string     `db:"bed_number" json:"bed_number"`
	Ward          string     `db:"ward" json:"ward"`
	Status        Status     `db:"status" json:"status"`
	EquipmentType string     `db:"equipment_type" json:"equipment_type"`
	PatientID     *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Floor         string     `db:"floor" json:"floor,omitempty"`
	Section       string     `db:"section" json:"section,omitempty"`
	RoomNumber    string     `db:"room_number" json:"room_number,omitempty"`
	Notes         string     `db:"notes" json:"notes,omitempty"`
	EverOccupied  bool       `db:"ever_occupied" json:"ever_occupied"`
	LastCleanedAt *time.Time `db:"last_cleaned_at" json:"last_cleaned_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Change describes a status transition applied with a conditional write.
// PatientID is required for occupied and ignored otherwise; nil Notes keeps
// the current notes.
type Change struct {
	To        Status
	PatientID *uuid.UUID
	Notes     *string
	Cleaned   bool
}

type CreateInput struct {
	BedNumber     string `json:"bed_number"`
	Ward          string `json:"ward"`
	EquipmentType string `json:"equipment_type"`
	Status        Status `json:"status"`
	Floor         string `json:"floor"`
	Section       string `json:"section"`
	RoomNumber    string `json:"room_number"`
	Notes         string `json:"notes"`
}

// UpdateInput carries descriptive fields only; status moves through Transition.
type UpdateInput struct {
	EquipmentType *string `json:"equipment_type"`
	Floor         *string `json:"floor"`
	Section       *string `json:"section"`
	RoomNumber    *string `json:"room_number"`
	Notes         *string `json:"notes"`
}

type Filter struct {
	Ward          string
	Status        Status
	EquipmentType string
	Limit         int
	Offset        int
}

// WardCount is the number of beds in one ward with one status.
type WardCount struct {
	Ward   string `json:"ward"`
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// ReconcileReport summarises a capacity reconciliation per ward.
type ReconcileReport struct {
	Created map[string][]string `json:"created"`
	Removed map[string][]string `json:"removed"`
	Skipped map[string]int      `json:"skipped"`
}
