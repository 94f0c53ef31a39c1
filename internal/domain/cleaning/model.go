package cleaning

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
)

type StaffStatus string

const (
	StaffAvailable StaffStatus = "available"
	StaffBusy      StaffStatus = "busy"
)

// Job maps to the cleaning_job table. Bed location fields are a snapshot
// taken when the job is created.
type Job struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	BedID             uuid.UUID  `db:"bed_id" json:"bed_id"`
	BedNumber         string     `db:"bed_number" json:"bed_number"`
	Ward              string     `db:"ward" json:"ward"`
	Floor             string     `db:"floor" json:"floor,omitempty"`
	Section           string     `db:"section" json:"section,omitempty"`
	RoomNumber        string     `db:"room_number" json:"room_number,omitempty"`
	Status            JobStatus  `db:"status" json:"status"`
	AssignedStaffID   *uuid.UUID `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	AssignedStaffName string     `db:"assigned_staff_name" json:"assigned_staff_name,omitempty"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the job still blocks a new job for the same bed.
func (j *Job) Open() bool {
	return j.Status != JobCompleted
}

// Staff maps to the cleaning_staff table. Status is busy iff ActiveJobs > 0.
type Staff struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	StaffCode     string      `db:"staff_code" json:"staff_code"`
	Name          string      `db:"name" json:"name"`
	Status        StaffStatus `db:"status" json:"status"`
	ActiveJobs    int         `db:"active_jobs" json:"active_jobs"`
	CompletedJobs int         `db:"completed_jobs" json:"completed_jobs"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

type JobFilter struct {
	Status  JobStatus
	Ward    string
	StaffID *uuid.UUID
	Limit   int
	Offset  int
}

type StaffInput struct {
	StaffCode string `json:"staff_code"`
	Name      string `json:"name"`
}
