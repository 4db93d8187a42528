// Package calendar loads the read-only calendar rules that the slot generator
// and the booking path evaluate.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingcore/backend/internal/availability"
	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/store"
)

type Loader struct {
	rules store.CalendarRules
}

func NewLoader(rules store.CalendarRules) *Loader {
	return &Loader{rules: rules}
}

// Rules assembles the calendar of one employee at one location for the days
// in r. Holidays come from the location's country.
func (l *Loader) Rules(ctx context.Context, employeeID, locationID string, r availability.DateRange) (availability.Rules, error) {
	loc, err := l.rules.GetLocation(ctx, locationID)
	if err != nil {
		return availability.Rules{}, notFound(err, "location %s not found", locationID)
	}
	zone, err := loc.Zone()
	if err != nil {
		return availability.Rules{}, fmt.Errorf("location %s time zone %q: %w", locationID, loc.TimeZone, err)
	}

	schedules, err := l.rules.ListWorkSchedules(ctx, employeeID, locationID)
	if err != nil {
		return availability.Rules{}, err
	}
	byDay := make(map[time.Weekday]domain.WorkSchedule, len(schedules))
	for _, ws := range schedules {
		if ws.DayOfWeek < 0 || ws.DayOfWeek > 6 {
			continue
		}
		byDay[time.Weekday(ws.DayOfWeek)] = ws
	}

	holidays, err := l.rules.ListHolidays(ctx, loc.CountryID, r.From, r.To)
	if err != nil {
		return availability.Rules{}, err
	}

	return availability.Rules{
		EmployeeID: employeeID,
		LocationID: locationID,
		BusinessID: loc.BusinessID,
		Zone:       zone,
		Schedules:  byDay,
		Holidays:   holidays,
	}, nil
}

func (l *Loader) ServiceDuration(ctx context.Context, serviceID string) (time.Duration, error) {
	svc, err := l.rules.GetService(ctx, serviceID)
	if err != nil {
		return 0, notFound(err, "service %s not found", serviceID)
	}
	d := svc.Duration()
	if d <= 0 {
		return 0, domain.Errorf(domain.KindValidation, "service %s has no duration", serviceID)
	}
	return d, nil
}

func (l *Loader) ApprovedAbsences(ctx context.Context, employeeID string, r availability.DateRange) ([]domain.Absence, error) {
	return l.rules.ListApprovedAbsences(ctx, employeeID, r.From, r.To)
}

func (l *Loader) Absence(ctx context.Context, absenceID string) (domain.Absence, error) {
	a, err := l.rules.GetAbsence(ctx, absenceID)
	if err != nil {
		return domain.Absence{}, notFound(err, "absence %s not found", absenceID)
	}
	return a, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, format, args...)
	}
	return err
}
