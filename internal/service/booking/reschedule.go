package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/store"
)

// RescheduleRequest moves an appointment to a new window. Empty employee,
// location and service fields keep the values of the original appointment.
type RescheduleRequest struct {
	EmployeeID      string
	LocationID      string
	ServiceID       string
	StartTime       time.Time
	DurationMinutes int
	IdempotencyKey  string
	Actor           string
}

// Reschedule atomically marks the original appointment rescheduled and books
// the new window with rescheduled_from pointing back at it. The original
// interval does not block the new one. When the employee changes both
// calendars are locked.
func (m *Manager) Reschedule(ctx context.Context, appointmentID uuid.UUID, req RescheduleRequest) (_ Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", appointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	if appointmentID == uuid.Nil {
		return Booking{}, domain.Errorf(domain.KindValidation, "appointment_id is required")
	}
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		return Booking{}, domain.Errorf(domain.KindValidation, "actor is required")
	}

	original, err := m.appointments.Get(ctx, appointmentID)
	if err != nil {
		return Booking{}, mapStoreError(err)
	}

	next := normalize(Request{
		EmployeeID:      firstNonEmpty(req.EmployeeID, original.EmployeeID),
		LocationID:      firstNonEmpty(req.LocationID, original.LocationID),
		ServiceID:       firstNonEmpty(req.ServiceID, original.ServiceID),
		ClientID:        original.ClientID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		IdempotencyKey:  req.IdempotencyKey,
		Actor:           req.Actor,
	})
	if err := validate(next); err != nil {
		return Booking{}, err
	}

	var id uuid.UUID
	if next.IdempotencyKey != "" {
		id = domain.IdempotentID(next.EmployeeID, next.IdempotencyKey)
		if b, ok, err := m.replay(ctx, id, next); err != nil || ok {
			if ok && !rescheduledFrom(b.Appointment, appointmentID) {
				return Booking{}, domain.ErrIdempotencyConflict
			}
			return b, err
		}
	}

	if !original.Status.CanTransitionTo(domain.StatusRescheduled) {
		return Booking{}, domain.Errorf(domain.KindInvalidStatusTransition, "cannot reschedule a %s appointment", original.Status)
	}

	p, err := m.plan(ctx, next, id)
	if err != nil {
		return Booking{}, err
	}
	p.appt.RescheduledFrom = &appointmentID

	var (
		out     Booking
		before  domain.Appointment
		retired domain.Appointment
	)
	employees := []string{original.EmployeeID, next.EmployeeID}
	err = m.appointments.InEmployeeTransaction(ctx, employees, func(ctx context.Context, tx store.AppointmentTx) error {
		if id != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, id)
			switch {
			case err == nil:
				if !existing.SameBooking(p.appt) || !rescheduledFrom(existing, appointmentID) {
					return domain.ErrIdempotencyConflict
				}
				out = Booking{Appointment: existing, Replayed: true}
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		cur, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		updated, _, err := domain.Apply(cur, domain.TransitionRequest{
			Target: domain.StatusRescheduled,
			Actor:  req.Actor,
			At:     m.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateAppointmentStatus(ctx, updated); err != nil {
			return err
		}

		saved, err := m.commit(ctx, tx, p)
		if err != nil {
			return err
		}
		before, retired = cur, updated
		out = Booking{Appointment: saved}
		return nil
	})
	if err != nil {
		return Booking{}, mapStoreError(err)
	}

	if !out.Replayed {
		now := m.now()
		evs := events.ForTransition(before, retired, now)
		evs = append(evs, events.Created(out.Appointment, now))
		m.publish(ctx, evs...)
	}
	return out, nil
}

func rescheduledFrom(a domain.Appointment, id uuid.UUID) bool {
	return a.RescheduledFrom != nil && *a.RescheduledFrom == id
}

func firstNonEmpty(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
