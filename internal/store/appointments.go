package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookingcore/backend/internal/domain"
)

// AppointmentRepository is the only mutable store the engine owns. Every write
// runs inside InEmployeeTransaction, which serializes callers per employee.
type AppointmentRepository interface {
	InEmployeeTransaction(ctx context.Context, employeeIDs []string, fn func(ctx context.Context, tx AppointmentTx) error) error
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// AppointmentTx is the view of the appointment table inside an employee lock.
type AppointmentTx interface {
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ListActiveAppointments(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, appt domain.Appointment) error
}
