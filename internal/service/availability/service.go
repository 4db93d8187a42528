package availability

import (
	"context"
	"strings"
	"time"

	"bookingcore/backend/internal/availability"
	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/service/calendar"
	"bookingcore/backend/internal/store"
)

const DefaultMaxRangeDays = 31

type Options struct {
	DefaultInterval time.Duration
	MaxRangeDays    int
	Now             func() time.Time
}

// Service answers availability queries. It reads committed state without
// taking the employee lock, so a returned slot may be gone by the time it is
// booked.
type Service struct {
	calendar        *calendar.Loader
	appointments    store.AppointmentRepository
	defaultInterval time.Duration
	maxRangeDays    int
	now             func() time.Time
}

func NewService(cal *calendar.Loader, appointments store.AppointmentRepository, opts Options) *Service {
	s := &Service{
		calendar:        cal,
		appointments:    appointments,
		defaultInterval: opts.DefaultInterval,
		maxRangeDays:    opts.MaxRangeDays,
		now:             opts.Now,
	}
	if s.defaultInterval <= 0 {
		s.defaultInterval = availability.DefaultInterval
	}
	if s.maxRangeDays <= 0 {
		s.maxRangeDays = DefaultMaxRangeDays
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type Query struct {
	EmployeeID string
	LocationID string
	ServiceID  string
	Days       availability.DateRange
	// Interval is the step between slot starts. Zero means the configured default.
	Interval time.Duration
}

func (s *Service) ListSlots(ctx context.Context, q Query) ([]availability.Slot, error) {
	q.EmployeeID = strings.TrimSpace(q.EmployeeID)
	q.LocationID = strings.TrimSpace(q.LocationID)
	q.ServiceID = strings.TrimSpace(q.ServiceID)
	if q.EmployeeID == "" || q.LocationID == "" || q.ServiceID == "" {
		return nil, domain.Errorf(domain.KindValidation, "employee_id, location_id and service_id are required")
	}
	if q.Days.To.Before(q.Days.From) {
		return nil, domain.Errorf(domain.KindInvalidInterval, "date_to must not be before date_from")
	}
	if n := q.Days.Days(); n > s.maxRangeDays {
		return nil, domain.Errorf(domain.KindValidation, "date range spans %d days, at most %d allowed", n, s.maxRangeDays)
	}
	interval := q.Interval
	if interval < 0 {
		return nil, domain.Errorf(domain.KindValidation, "interval must be positive")
	}
	if interval == 0 {
		interval = s.defaultInterval
	}

	duration, err := s.calendar.ServiceDuration(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	rules, err := s.calendar.Rules(ctx, q.EmployeeID, q.LocationID, q.Days)
	if err != nil {
		return nil, err
	}
	absences, err := s.calendar.ApprovedAbsences(ctx, q.EmployeeID, q.Days)
	if err != nil {
		return nil, err
	}
	window := domain.DaysWindow(q.Days.From, q.Days.To, rules.Location())
	existing, err := s.appointments.List(ctx, q.EmployeeID, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]availability.Slot, 0)
	for slot := range availability.GenerateSlots(rules, q.Days, duration, interval) {
		if !slot.StartTime.After(now) {
			continue
		}
		if availability.IsAvailable(slot, existing, absences, rules.Location()) {
			out = append(out, slot)
		}
	}
	return out, nil
}
