package patient

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAdmitted   Status = "admitted"
	StatusDischarged Status = "discharged"
)

// Patient maps to the patient table. PatientID is the human readable
// PAT-NNNNNN identifier.
type Patient struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       string     `db:"patient_id" json:"patient_id"`
	Name            string     `db:"name" json:"name"`
	Age             int        `db:"age" json:"age,omitempty"`
	Gender          string     `db:"gender" json:"gender,omitempty"`
	TriageLevel     string     `db:"triage_level" json:"triage_level,omitempty"`
	Ward            string     `db:"ward" json:"ward"`
	BedID           *uuid.UUID `db:"bed_id" json:"bed_id,omitempty"`
	Status          Status     `db:"status" json:"status"`
	AdmittedAt      time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt    *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	SourceRequestID string     `db:"source_request_id" json:"source_request_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type AdmitInput struct {
	Name            string
	Age             int
	Gender          string
	TriageLevel     string
	Ward            string
	BedID           uuid.UUID
	SourceRequestID string
}

type Filter struct {
	Status Status
	Ward   string
	Limit  int
	Offset int
}
