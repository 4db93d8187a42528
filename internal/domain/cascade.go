package domain

import (
	"time"

	"github.com/uptrace/bun"
)

type CascadeStatus string

const (
	CascadePending   CascadeStatus = "pending"
	CascadeCompleted CascadeStatus = "completed"
	CascadeFailed    CascadeStatus = "failed"
)

// CascadeRun journals the absence cascade for one approved absence. A failed
// run is retried in full; the absence itself stays approved. Attempts and
// CancelledCount are totals over every run for the absence.
type CascadeRun struct {
	bun.BaseModel `bun:"table:absence_cascades"`

	AbsenceID      string        `bun:"absence_id,pk"`
	EmployeeID     string        `bun:"employee_id,notnull"`
	Status         CascadeStatus `bun:"status,notnull"`
	Attempts       int           `bun:"attempts,notnull"`
	CancelledCount int           `bun:"cancelled_count,notnull"`
	LastError      string        `bun:"last_error"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull"`
}
