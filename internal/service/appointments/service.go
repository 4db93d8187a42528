package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/store"
)

const maxListWindow = 93 * 24 * time.Hour

var tracer = otel.Tracer("bookingcore/backend/internal/service/appointments")

func validationError(msg string) error {
	return domain.Errorf(domain.KindValidation, "%s", msg)
}

type Service struct {
	repo   store.AppointmentRepository
	events events.Sink
	now    func() time.Time
}

func NewService(repo store.AppointmentRepository, sink events.Sink, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, events: sink, now: now}
}

type TransitionInput struct {
	AppointmentID uuid.UUID
	Target        domain.Status
	Reason        domain.CancelReason
	Actor         string
}

// Transition moves an appointment through the state machine under the
// employee lock. Replaying a transition that already happened returns the
// current row without emitting events.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (_ domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.Transition", trace.WithAttributes(
		attribute.String("appointment_id", in.AppointmentID.String()),
		attribute.String("target", string(in.Target)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	in.Actor = strings.TrimSpace(in.Actor)
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.Actor == "" {
		return domain.Appointment{}, validationError("actor is required")
	}
	if _, ok := domain.ParseStatus(string(in.Target)); !ok {
		return domain.Appointment{}, validationError("unknown target_status")
	}
	if in.Target == domain.StatusRescheduled {
		return domain.Appointment{}, validationError("use the reschedule operation to reschedule")
	}
	if in.Reason != "" && in.Target != domain.StatusCancelled {
		return domain.Appointment{}, validationError("reason is only allowed when cancelling")
	}

	current, err := s.repo.Get(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}

	var (
		before, after domain.Appointment
		changed       bool
	)
	err = s.repo.InEmployeeTransaction(ctx, []string{current.EmployeeID}, func(ctx context.Context, tx store.AppointmentTx) error {
		cur, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		out, ok, err := domain.Apply(cur, domain.TransitionRequest{
			Target: in.Target,
			Reason: in.Reason,
			Actor:  in.Actor,
			At:     s.now(),
		})
		if err != nil {
			return err
		}
		before, after, changed = cur, out, ok
		if !ok {
			return nil
		}
		return tx.UpdateAppointmentStatus(ctx, out)
	})
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}

	if changed {
		events.PublishAll(ctx, s.events, events.ForTransition(before, after, s.now()))
	}
	return after, nil
}

func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, validationError("employee_id is required")
	}

	start := windowStart.UTC()
	end := windowEnd.UTC()
	if end.Equal(start) || end.Before(start) {
		return nil, domain.Errorf(domain.KindInvalidInterval, "window end must be after window start")
	}
	if end.Sub(start) > maxListWindow {
		return nil, validationError("window too long")
	}

	return s.repo.List(ctx, employeeID, start, end)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Errorf(domain.KindNotFound, "appointment not found")
	case errors.Is(err, store.ErrLockTimeout):
		return domain.ErrConcurrentBookingConflict
	default:
		return err
	}
}
