package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable classification of an engine error.
type ErrorKind string

const (
	KindOutsideBusinessHours      ErrorKind = "outside_business_hours"
	KindHolidayBlocked            ErrorKind = "holiday_blocked"
	KindEmployeeOnApprovedAbsence ErrorKind = "employee_on_approved_absence"
	KindSlotUnavailable           ErrorKind = "slot_unavailable"
	KindConcurrentBookingConflict ErrorKind = "concurrent_booking_conflict"
	KindInvalidStatusTransition   ErrorKind = "invalid_status_transition"
	KindInvalidInterval           ErrorKind = "invalid_interval"
	KindIdempotencyConflict       ErrorKind = "idempotency_conflict"
	KindAbsenceNotApproved        ErrorKind = "absence_not_approved"
	KindValidation                ErrorKind = "validation_failed"
	KindNotFound                  ErrorKind = "not_found"
)

// Error carries a kind plus a human-readable message. Two errors match under
// errors.Is when their kinds are equal, so callers compare against the
// package-level sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrOutsideBusinessHours      = &Error{Kind: KindOutsideBusinessHours, Message: "requested time is outside the employee's working hours"}
	ErrHolidayBlocked            = &Error{Kind: KindHolidayBlocked, Message: "requested day is a holiday"}
	ErrEmployeeOnApprovedAbsence = &Error{Kind: KindEmployeeOnApprovedAbsence, Message: "employee is absent on the requested day"}
	ErrSlotUnavailable           = &Error{Kind: KindSlotUnavailable, Message: "the requested slot is no longer available"}
	ErrConcurrentBookingConflict = &Error{Kind: KindConcurrentBookingConflict, Message: "another booking for this employee is in progress, retry from availability"}
	ErrInvalidStatusTransition   = &Error{Kind: KindInvalidStatusTransition, Message: "status transition is not allowed"}
	ErrInvalidInterval           = &Error{Kind: KindInvalidInterval, Message: "invalid appointment interval"}
	ErrIdempotencyConflict       = &Error{Kind: KindIdempotencyConflict, Message: "idempotency key was already used for a different booking"}
	ErrAbsenceNotApproved        = &Error{Kind: KindAbsenceNotApproved, Message: "absence is not approved"}
	ErrValidation                = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrNotFound                  = &Error{Kind: KindNotFound, Message: "not found"}
)

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
