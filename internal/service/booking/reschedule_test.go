package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/store"
)

func TestReschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the appointment and links it back", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}

		moved, err := f.m.Reschedule(ctx, orig.Appointment.ID, RescheduleRequest{StartTime: at(2, 14, 0), Actor: "c1"})
		if err != nil {
			t.Fatalf("Reschedule error: %v", err)
		}
		na := moved.Appointment
		if na.RescheduledFrom == nil || *na.RescheduledFrom != orig.Appointment.ID {
			t.Fatalf("rescheduled_from = %v, want %s", na.RescheduledFrom, orig.Appointment.ID)
		}
		if na.Status != domain.StatusScheduled || !na.StartTime.Equal(at(2, 14, 0)) {
			t.Fatalf("new appointment = %+v", na)
		}
		old, err := f.store.Get(ctx, orig.Appointment.ID)
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if old.Status != domain.StatusRescheduled {
			t.Fatalf("old status = %s, want rescheduled", old.Status)
		}

		changed := f.events.OfType(events.TypeAppointmentStatusChanged)
		if len(changed) != 1 || changed[0].To != domain.StatusRescheduled {
			t.Fatalf("status events = %+v", changed)
		}
		if n := len(f.events.OfType(events.TypeAppointmentCreated)); n != 2 {
			t.Fatalf("created events = %d, want 2", n)
		}
	})

	t.Run("old interval does not block the new one", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}
		if _, err := f.m.Reschedule(ctx, orig.Appointment.ID, RescheduleRequest{StartTime: at(2, 10, 15), Actor: "c1"}); err != nil {
			t.Fatalf("Reschedule error: %v", err)
		}
	})

	t.Run("conflict leaves the original untouched", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}
		if _, err := f.m.Book(ctx, req("e1", at(2, 14, 0))); err != nil {
			t.Fatalf("Book error: %v", err)
		}

		_, err = f.m.Reschedule(ctx, orig.Appointment.ID, RescheduleRequest{StartTime: at(2, 14, 0), Actor: "c1"})
		if !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("err = %v, want %v", err, domain.ErrSlotUnavailable)
		}
		old, _ := f.store.Get(ctx, orig.Appointment.ID)
		if old.Status != domain.StatusScheduled {
			t.Fatalf("old status = %s, want scheduled", old.Status)
		}
	})

	t.Run("moves to another employee", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}
		moved, err := f.m.Reschedule(ctx, orig.Appointment.ID, RescheduleRequest{EmployeeID: "e2", StartTime: at(2, 10, 0), Actor: "admin"})
		if err != nil {
			t.Fatalf("Reschedule error: %v", err)
		}
		if moved.Appointment.EmployeeID != "e2" || moved.Appointment.ClientID != "c1" {
			t.Fatalf("moved = %+v", moved.Appointment)
		}
	})

	t.Run("terminal appointments cannot move", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}
		err = f.store.InEmployeeTransaction(ctx, []string{"e1"}, func(ctx context.Context, tx store.AppointmentTx) error {
			a, _ := tx.GetAppointment(ctx, orig.Appointment.ID)
			a.Status = domain.StatusCancelled
			return tx.UpdateAppointmentStatus(ctx, a)
		})
		if err != nil {
			t.Fatalf("cancel error: %v", err)
		}

		_, err = f.m.Reschedule(ctx, orig.Appointment.ID, RescheduleRequest{StartTime: at(2, 14, 0), Actor: "c1"})
		if !errors.Is(err, domain.ErrInvalidStatusTransition) {
			t.Fatalf("err = %v, want %v", err, domain.ErrInvalidStatusTransition)
		}
	})

	t.Run("replay with the same key", func(t *testing.T) {
		f := newFixture(t)
		orig, err := f.m.Book(ctx, req("e1", at(2, 10, 0)))
		if err != nil {
			t.Fatalf("Book error: %v", err)
		}
		r := RescheduleRequest{StartTime: at(2, 14, 0), Actor: "c1", IdempotencyKey: "move-1"}
		first, err := f.m.Reschedule(ctx, orig.Appointment.ID, r)
		if err != nil {
			t.Fatalf("Reschedule error: %v", err)
		}
		again, err := f.m.Reschedule(ctx, orig.Appointment.ID, r)
		if err != nil {
			t.Fatalf("replay error: %v", err)
		}
		if !again.Replayed || again.Appointment.ID != first.Appointment.ID {
			t.Fatalf("replay = %+v", again)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.Reschedule(ctx, uuid.New(), RescheduleRequest{StartTime: at(2, 14, 0), Actor: "c1"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want %v", err, domain.ErrNotFound)
		}
	})
}
