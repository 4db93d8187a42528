package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgLockNotAvailable   = "55P03"
	pgSerialization      = "40001"
	pgDeadlockDetected   = "40P01"
	pgQueryCanceled      = "57014"

	noOverlapConstraint = "appointments_no_overlap"
)

type AppointmentRepo struct {
	db          *bun.DB
	lockTimeout time.Duration
}

func NewAppointmentRepo(db *bun.DB, lockTimeout time.Duration) *AppointmentRepo {
	return &AppointmentRepo{db: db, lockTimeout: lockTimeout}
}

type appointmentTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return row, nil
}

func (r *AppointmentRepo) List(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InEmployeeTransaction runs fn in a transaction holding the advisory lock of
// every listed employee. Locks are taken in sorted order so two callers that
// share employees cannot deadlock.
func (r *AppointmentRepo) InEmployeeTransaction(ctx context.Context, employeeIDs []string, fn func(ctx context.Context, tx store.AppointmentTx) error) error {
	ids := slices.Clone(employeeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := lockEmployeeCalendar(ctx, tx, id); err != nil {
				return err
			}
		}
		return fn(ctx, appointmentTx{tx: tx})
	})
	return mapTxError(err)
}

func lockEmployeeCalendar(ctx context.Context, tx bun.Tx, employeeID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", employeeID).Exec(ctx)
	return err
}

func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerialization, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%w: %s", store.ErrLockTimeout, pgErr.Message)
		}
	}
	return err
}

func (r appointmentTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := r.tx.NewSelect().
		Model(&row).
		Where("id = ?", appointmentID).
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return row, nil
}

func (r appointmentTx) ListActiveAppointments(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("status IN (?)", bun.In(domain.ActiveStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r appointmentTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt

	// A failed statement aborts the transaction; the savepoint keeps it usable
	// for the idempotent lookup below and for the caller.
	if _, err := r.tx.NewRaw("SAVEPOINT insert_appointment").Exec(ctx); err != nil {
		return domain.Appointment{}, err
	}
	_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		if _, rbErr := r.tx.NewRaw("ROLLBACK TO SAVEPOINT insert_appointment").Exec(ctx); rbErr != nil {
			return domain.Appointment{}, errors.Join(err, rbErr)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint {
				return domain.Appointment{}, store.ErrConflict
			}
			if pgErr.Code == pgUniqueViolation {
				var existing domain.Appointment
				selectErr := r.tx.NewSelect().
					Model(&existing).
					Where("id = ?", m.ID).
					Limit(1).
					Scan(ctx)
				if selectErr != nil {
					return domain.Appointment{}, err
				}
				if !existing.SameBooking(appt) {
					return domain.Appointment{}, store.ErrIdempotencyConflict
				}
				return existing, nil
			}
		}
		return domain.Appointment{}, err
	}
	if _, err := r.tx.NewRaw("RELEASE SAVEPOINT insert_appointment").Exec(ctx); err != nil {
		return domain.Appointment{}, err
	}

	return m, nil
}

func (r appointmentTx) UpdateAppointmentStatus(ctx context.Context, appt domain.Appointment) error {
	res, err := r.tx.NewUpdate().
		Model(&appt).
		Column("status", "cancelled_reason", "status_changed_by", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
