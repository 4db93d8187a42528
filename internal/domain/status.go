package domain

import "time"

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

type CancelReason string

const (
	ReasonClientRequested CancelReason = "client_requested"
	ReasonAdminCancelled  CancelReason = "admin_cancelled"
	ReasonAbsenceCascade  CancelReason = "absence_cascade"
	ReasonNoShow          CancelReason = "no_show"
)

func (r CancelReason) Valid() bool {
	switch r {
	case ReasonClientRequested, ReasonAdminCancelled, ReasonAbsenceCascade, ReasonNoShow:
		return true
	}
	return false
}

// transitions is the single source of truth for legal status changes. States
// absent from the map are terminal.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Re-entering one of these with the same actor is a successful no-op.
var idempotentTargets = map[Status]bool{
	StatusConfirmed: true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// ActiveStatuses hold their interval against other bookings.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return st, true
	}
	return "", false
}

func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionRequest asks the state machine to move an appointment to Target.
type TransitionRequest struct {
	Target Status
	Reason CancelReason
	Actor  string
	At     time.Time
}

// Apply validates req against a and returns the updated appointment. changed is
// false for an idempotent replay; a is never modified.
func Apply(a Appointment, req TransitionRequest) (out Appointment, changed bool, err error) {
	if req.Actor == "" {
		return a, false, Errorf(KindValidation, "actor is required")
	}
	if a.Status == req.Target && idempotentTargets[req.Target] && a.StatusChangedBy == req.Actor {
		if req.Target != StatusCancelled || a.CancelledReason == nil || req.Reason == "" || *a.CancelledReason == req.Reason {
			return a, false, nil
		}
	}
	if !a.Status.CanTransitionTo(req.Target) {
		return a, false, Errorf(KindInvalidStatusTransition, "cannot move appointment from %s to %s", a.Status, req.Target)
	}

	out = a
	out.Status = req.Target
	out.StatusChangedBy = req.Actor
	if !req.At.IsZero() {
		out.UpdatedAt = req.At.UTC()
	}
	if req.Target == StatusCancelled {
		reason := req.Reason
		if reason == "" {
			reason = ReasonAdminCancelled
		}
		if !reason.Valid() {
			return a, false, Errorf(KindValidation, "unknown cancel reason %q", reason)
		}
		out.CancelledReason = &reason
	}
	return out, true, nil
}
