// Package booking is the only writer of new appointment rows. Every commit
// re-checks the window under the employee lock.
package booking

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

	"bookingcore/backend/internal/availability"
	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/service/calendar"
	"bookingcore/backend/internal/store"
)

const (
	maxIdempotencyKeyLen = 256
	maxDurationMinutes   = 24 * 60
)

var tracer = otel.Tracer("bookingcore/backend/internal/service/booking")

type Options struct {
	Now func() time.Time
}

type Manager struct {
	appointments store.AppointmentRepository
	calendar     *calendar.Loader
	events       events.Sink
	now          func() time.Time
}

func NewManager(appointments store.AppointmentRepository, cal *calendar.Loader, sink events.Sink, opts Options) *Manager {
	m := &Manager{
		appointments: appointments,
		calendar:     cal,
		events:       sink,
		now:          opts.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

type Request struct {
	EmployeeID string
	LocationID string
	ServiceID  string
	ClientID   string
	StartTime  time.Time
	// DurationMinutes overrides the service duration when positive.
	DurationMinutes int
	IdempotencyKey  string
	// Actor defaults to ClientID.
	Actor string
}

// Booking is the outcome of Book or Reschedule. Replayed is set when an
// idempotency key matched an existing appointment and nothing was written.
type Booking struct {
	Appointment domain.Appointment
	Replayed    bool
}

type plan struct {
	appt  domain.Appointment
	rules availability.Rules
	days  availability.DateRange
}

func (m *Manager) Book(ctx context.Context, req Request) (_ Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("employee_id", req.EmployeeID),
		attribute.String("location_id", req.LocationID),
	))
	defer func() { endSpan(span, err) }()

	req = normalize(req)
	if err := validate(req); err != nil {
		return Booking{}, err
	}
	if req.Actor == "" {
		req.Actor = req.ClientID
	}

	var id uuid.UUID
	if req.IdempotencyKey != "" {
		id = domain.IdempotentID(req.EmployeeID, req.IdempotencyKey)
		if b, ok, err := m.replay(ctx, id, req); err != nil || ok {
			return b, err
		}
	}

	p, err := m.plan(ctx, req, id)
	if err != nil {
		return Booking{}, err
	}

	var out Booking
	err = m.appointments.InEmployeeTransaction(ctx, []string{req.EmployeeID}, func(ctx context.Context, tx store.AppointmentTx) error {
		if id != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, id)
			switch {
			case err == nil:
				if !existing.SameBooking(p.appt) {
					return domain.ErrIdempotencyConflict
				}
				out = Booking{Appointment: existing, Replayed: true}
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		saved, err := m.commit(ctx, tx, p)
		if err != nil {
			return err
		}
		out = Booking{Appointment: saved}
		return nil
	})
	if err != nil {
		return Booking{}, mapStoreError(err)
	}

	if !out.Replayed {
		m.publish(ctx, events.Created(out.Appointment, m.now()))
	}
	return out, nil
}

// replay returns the appointment already committed under id. It runs before
// validation so a retry succeeds even after the window has moved into the past.
func (m *Manager) replay(ctx context.Context, id uuid.UUID, req Request) (Booking, bool, error) {
	existing, err := m.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Booking{}, false, nil
		}
		return Booking{}, false, err
	}
	if !matchesRequest(existing, req) {
		return Booking{}, false, domain.ErrIdempotencyConflict
	}
	return Booking{Appointment: existing, Replayed: true}, true, nil
}

func matchesRequest(a domain.Appointment, req Request) bool {
	if a.EmployeeID != req.EmployeeID ||
		a.LocationID != req.LocationID ||
		a.ServiceID != req.ServiceID ||
		a.ClientID != req.ClientID ||
		!a.StartTime.Equal(req.StartTime.UTC()) {
		return false
	}
	if req.DurationMinutes > 0 {
		return a.EndTime.Sub(a.StartTime) == time.Duration(req.DurationMinutes)*time.Minute
	}
	return true
}

// plan resolves the duration and calendar and validates the window. It takes
// no lock.
func (m *Manager) plan(ctx context.Context, req Request, id uuid.UUID) (plan, error) {
	duration, err := m.calendar.ServiceDuration(ctx, req.ServiceID)
	if err != nil {
		return plan{}, err
	}
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	start := req.StartTime.UTC()
	end := start.Add(duration)
	if !start.After(m.now()) {
		return plan{}, domain.Errorf(domain.KindInvalidInterval, "start_time must be in the future")
	}

	// One day of margin on both sides covers any zone offset.
	days := availability.DateRange{
		From: domain.DateOf(start).AddDays(-1),
		To:   domain.DateOf(end).AddDays(1),
	}
	rules, err := m.calendar.Rules(ctx, req.EmployeeID, req.LocationID, days)
	if err != nil {
		return plan{}, err
	}
	window := domain.Interval{Start: start, End: end}
	if err := availability.CheckWindow(rules, window); err != nil {
		return plan{}, err
	}

	var key *string
	if req.IdempotencyKey != "" {
		k := req.IdempotencyKey
		key = &k
	}
	return plan{
		appt: domain.Appointment{
			ID:              id,
			BusinessID:      rules.BusinessID,
			LocationID:      req.LocationID,
			EmployeeID:      req.EmployeeID,
			ClientID:        req.ClientID,
			ServiceID:       req.ServiceID,
			StartTime:       start,
			EndTime:         end,
			Status:          domain.StatusScheduled,
			IdempotencyKey:  key,
			StatusChangedBy: req.Actor,
		},
		rules: rules,
		days:  days,
	}, nil
}

// commit re-runs the conflict detector against committed state and inserts.
// It must run inside the employee lock.
func (m *Manager) commit(ctx context.Context, tx store.AppointmentTx, p plan) (domain.Appointment, error) {
	absences, err := m.calendar.ApprovedAbsences(ctx, p.appt.EmployeeID, p.days)
	if err != nil {
		return domain.Appointment{}, err
	}
	active, err := tx.ListActiveAppointments(ctx, p.appt.EmployeeID, p.appt.StartTime, p.appt.EndTime)
	if err != nil {
		return domain.Appointment{}, err
	}
	slot := availability.Slot{
		StartTime:  p.appt.StartTime,
		EndTime:    p.appt.EndTime,
		EmployeeID: p.appt.EmployeeID,
		LocationID: p.appt.LocationID,
	}
	if err := availability.ConflictError(availability.Conflict(slot, active, absences, p.rules.Location())); err != nil {
		return domain.Appointment{}, err
	}
	return tx.InsertAppointment(ctx, p.appt)
}

func (m *Manager) publish(ctx context.Context, evs ...events.Event) {
	events.PublishAll(ctx, m.events, evs)
}

func normalize(req Request) Request {
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Actor = strings.TrimSpace(req.Actor)
	return req
}

func validate(req Request) error {
	if req.EmployeeID == "" || req.LocationID == "" || req.ServiceID == "" || req.ClientID == "" {
		return domain.Errorf(domain.KindValidation, "employee_id, location_id, service_id and client_id are required")
	}
	if req.StartTime.IsZero() {
		return domain.Errorf(domain.KindValidation, "start_time is required")
	}
	if req.DurationMinutes < 0 {
		return domain.Errorf(domain.KindInvalidInterval, "duration_minutes must be positive")
	}
	if req.DurationMinutes > maxDurationMinutes {
		return domain.Errorf(domain.KindInvalidInterval, "duration_minutes must be at most %d", maxDurationMinutes)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return domain.Errorf(domain.KindValidation, "idempotency_key too long")
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrLockTimeout):
		return domain.ErrConcurrentBookingConflict
	case errors.Is(err, store.ErrConflict):
		return domain.ErrSlotUnavailable
	case errors.Is(err, store.ErrIdempotencyConflict):
		return domain.ErrIdempotencyConflict
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrNotFound
	default:
		return err
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := domain.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		}
	}
	span.End()
}
