// Package events carries the notifications the engine emits after a commit.
// Delivery is fire-and-forget: a sink never reports failure to the caller.
package events

import (
	"context"
	"time"

	"bookingcore/backend/internal/domain"
)

type Type string

const (
	TypeAppointmentCreated       Type = "appointment.created"
	TypeAppointmentStatusChanged Type = "appointment.status_changed"
	TypeAppointmentCancelled     Type = "appointment.cancelled"
)

type Event struct {
	Type            Type                `json:"type"`
	AppointmentID   string              `json:"appointment_id"`
	ClientID        string              `json:"client_id"`
	EmployeeID      string              `json:"employee_id"`
	LocationID      string              `json:"location_id"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	From            domain.Status       `json:"from,omitempty"`
	To              domain.Status       `json:"to,omitempty"`
	Reason          domain.CancelReason `json:"reason,omitempty"`
	Actor           string              `json:"actor,omitempty"`
	RescheduledFrom string              `json:"rescheduled_from,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

type Sink interface {
	Publish(ctx context.Context, e Event)
}

func base(t Type, a domain.Appointment, at time.Time) Event {
	return Event{
		Type:          t,
		AppointmentID: a.ID.String(),
		ClientID:      a.ClientID,
		EmployeeID:    a.EmployeeID,
		LocationID:    a.LocationID,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Actor:         a.StatusChangedBy,
		OccurredAt:    at.UTC(),
	}
}

func Created(a domain.Appointment, at time.Time) Event {
	e := base(TypeAppointmentCreated, a, at)
	if a.RescheduledFrom != nil {
		e.RescheduledFrom = a.RescheduledFrom.String()
	}
	return e
}

// ForTransition returns the events for before -> after: always a
// status_changed, plus a cancelled when the target is cancelled.
func ForTransition(before, after domain.Appointment, at time.Time) []Event {
	changed := base(TypeAppointmentStatusChanged, after, at)
	changed.From = before.Status
	changed.To = after.Status
	if after.CancelledReason != nil {
		changed.Reason = *after.CancelledReason
	}
	out := []Event{changed}
	if after.Status == domain.StatusCancelled {
		cancelled := base(TypeAppointmentCancelled, after, at)
		if after.CancelledReason != nil {
			cancelled.Reason = *after.CancelledReason
		}
		out = append(out, cancelled)
	}
	return out
}

func PublishAll(ctx context.Context, sink Sink, evs []Event) {
	if sink == nil {
		return
	}
	for _, e := range evs {
		sink.Publish(ctx, e)
	}
}
