package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bookingcore/backend/internal/domain"
)

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindSlotUnavailable:           http.StatusConflict,
	domain.KindConcurrentBookingConflict: http.StatusConflict,
	domain.KindNotFound:                  http.StatusNotFound,
	domain.KindOutsideBusinessHours:      http.StatusUnprocessableEntity,
	domain.KindHolidayBlocked:            http.StatusUnprocessableEntity,
	domain.KindEmployeeOnApprovedAbsence: http.StatusUnprocessableEntity,
	domain.KindInvalidStatusTransition:   http.StatusUnprocessableEntity,
	domain.KindInvalidInterval:           http.StatusUnprocessableEntity,
	domain.KindIdempotencyConflict:       http.StatusUnprocessableEntity,
	domain.KindAbsenceNotApproved:        http.StatusUnprocessableEntity,
	domain.KindValidation:                http.StatusUnprocessableEntity,
}

// mapError returns the status, code and message for err. Engine errors keep
// their own message. Anything else is reported as an internal error without
// leaking details.
func mapError(err error) (int, string, string) {
	var e *domain.Error
	if errors.As(err, &e) {
		if status, ok := kindStatus[e.Kind]; ok {
			return status, string(e.Kind), e.Error()
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled", "request cancelled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
