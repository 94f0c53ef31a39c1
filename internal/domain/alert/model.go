package alert

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Severity       Severity   `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	Ward           string     `db:"ward" json:"ward,omitempty"`
	Priority       int        `db:"priority" json:"priority"`
	BedID          *uuid.UUID `db:"bed_id" json:"bed_id,omitempty"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy string     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Input is what lifecycle services raise.
type Input struct {
	Severity Severity
	Message  string
	Ward     string
	Priority int
	BedID    *uuid.UUID
}

type Filter struct {
	Severity       Severity
	Ward           string
	Unacknowledged bool
	Limit          int
	Offset         int
}
