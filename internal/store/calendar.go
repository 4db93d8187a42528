package store

import (
	"context"

	"bookingcore/backend/internal/domain"
)

// CalendarRules reads the externally owned calendar data. The engine never
// writes through it.
type CalendarRules interface {
	GetLocation(ctx context.Context, locationID string) (domain.Location, error)
	GetService(ctx context.Context, serviceID string) (domain.Service, error)
	ListWorkSchedules(ctx context.Context, employeeID, locationID string) ([]domain.WorkSchedule, error)
	// ListHolidays returns holidays dated within [from, to] plus every recurring
	// holiday of the country.
	ListHolidays(ctx context.Context, countryID string, from, to domain.Date) ([]domain.Holiday, error)
	ListApprovedAbsences(ctx context.Context, employeeID string, from, to domain.Date) ([]domain.Absence, error)
	GetAbsence(ctx context.Context, absenceID string) (domain.Absence, error)
}
