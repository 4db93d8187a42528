package availability

import (
	"time"

	"bookingcore/backend/internal/domain"
)

type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictAppointment
	ConflictAbsence
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictAppointment:
		return "appointment"
	case ConflictAbsence:
		return "absence"
	default:
		return "none"
	}
}

// Conflict reports what, if anything, blocks slot. Only active appointments and
// approved absences of the slot's employee count. Absence days are taken in loc.
func Conflict(slot Slot, existing []domain.Appointment, absences []domain.Absence, loc *time.Location) ConflictKind {
	if loc == nil {
		loc = time.UTC
	}
	w := slot.Interval()
	for _, a := range absences {
		if a.Status != domain.AbsenceApproved || a.EmployeeID != slot.EmployeeID {
			continue
		}
		if w.Overlaps(a.Window(loc)) {
			return ConflictAbsence
		}
	}
	for _, a := range existing {
		if !a.Status.Active() || a.EmployeeID != slot.EmployeeID {
			continue
		}
		if w.Overlaps(a.Interval()) {
			return ConflictAppointment
		}
	}
	return ConflictNone
}

func IsAvailable(slot Slot, existing []domain.Appointment, absences []domain.Absence, loc *time.Location) bool {
	return Conflict(slot, existing, absences, loc) == ConflictNone
}

// ConflictError maps a conflict to the error a booking attempt returns.
func ConflictError(k ConflictKind) error {
	switch k {
	case ConflictAbsence:
		return domain.ErrEmployeeOnApprovedAbsence
	case ConflictAppointment:
		return domain.ErrSlotUnavailable
	default:
		return nil
	}
}
