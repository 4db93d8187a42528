package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID     `bun:"id,pk,type:uuid"`
	BusinessID      string        `bun:"business_id,notnull"`
	LocationID      string        `bun:"location_id,notnull"`
	EmployeeID      string        `bun:"employee_id,notnull"`
	ClientID        string        `bun:"client_id,notnull"`
	ServiceID       string        `bun:"service_id,notnull"`
	StartTime       time.Time     `bun:"start_time,notnull"`
	EndTime         time.Time     `bun:"end_time,notnull"`
	Status          Status        `bun:"status,notnull"`
	CancelledReason *CancelReason `bun:"cancelled_reason"`
	RescheduledFrom *uuid.UUID    `bun:"rescheduled_from,type:uuid"`
	IdempotencyKey  *string       `bun:"idempotency_key"`
	StatusChangedBy string        `bun:"status_changed_by,notnull"`
	CreatedAt       time.Time     `bun:"created_at,notnull"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// SameBooking reports whether b describes the same booking request as a. It is
// used to tell an idempotent replay from a reused key.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.EmployeeID == b.EmployeeID &&
		a.LocationID == b.LocationID &&
		a.ServiceID == b.ServiceID &&
		a.ClientID == b.ClientID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

// IdempotentID derives the appointment id for a booking retried under the same
// key, so a replay collides with the original row.
func IdempotentID(employeeID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("bookingcore:book:"+employeeID+":"+key))
}
