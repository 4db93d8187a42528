package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/store"
)

// CalendarRepo reads the tables owned by the business-management side of the
// platform. It never writes.
type CalendarRepo struct {
	db bun.IDB
}

func NewCalendarRepo(db bun.IDB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

func (r *CalendarRepo) GetLocation(ctx context.Context, locationID string) (domain.Location, error) {
	var row domain.Location
	err := r.db.NewSelect().Model(&row).Where("id = ?", locationID).Limit(1).Scan(ctx)
	return row, notFound(err)
}

func (r *CalendarRepo) GetService(ctx context.Context, serviceID string) (domain.Service, error) {
	var row domain.Service
	err := r.db.NewSelect().Model(&row).Where("id = ?", serviceID).Limit(1).Scan(ctx)
	return row, notFound(err)
}

func (r *CalendarRepo) GetAbsence(ctx context.Context, absenceID string) (domain.Absence, error) {
	var row domain.Absence
	err := r.db.NewSelect().Model(&row).Where("id = ?", absenceID).Limit(1).Scan(ctx)
	return row, notFound(err)
}

func (r *CalendarRepo) ListWorkSchedules(ctx context.Context, employeeID, locationID string) ([]domain.WorkSchedule, error) {
	var rows []domain.WorkSchedule
	err := r.db.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("location_id = ?", locationID).
		OrderExpr("day_of_week ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CalendarRepo) ListHolidays(ctx context.Context, countryID string, from, to domain.Date) ([]domain.Holiday, error) {
	var rows []domain.Holiday
	err := r.db.NewSelect().
		Model(&rows).
		Where("country_id = ?", countryID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("date BETWEEN ?::date AND ?::date", from.String(), to.String()).
				WhereOr("recurring")
		}).
		OrderExpr("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CalendarRepo) ListApprovedAbsences(ctx context.Context, employeeID string, from, to domain.Date) ([]domain.Absence, error) {
	var rows []domain.Absence
	err := r.db.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("status = ?", domain.AbsenceApproved).
		Where("start_date <= ?::date", to.String()).
		Where("end_date >= ?::date", from.String()).
		OrderExpr("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
