package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingcore/backend/internal/availability"
	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/health"
	"bookingcore/backend/internal/service/appointments"
	availsvc "bookingcore/backend/internal/service/availability"
	"bookingcore/backend/internal/service/booking"
	"bookingcore/backend/internal/service/cascade"
)

const (
	maxBodyBytes       = 1 << 20
	idempotencyHeader  = "Idempotency-Key"
	healthProbeTimeout = 2 * time.Second
)

type availabilityService interface {
	ListSlots(ctx context.Context, q availsvc.Query) ([]availability.Slot, error)
}

type bookingService interface {
	Book(ctx context.Context, req booking.Request) (booking.Booking, error)
	Reschedule(ctx context.Context, appointmentID uuid.UUID, req booking.RescheduleRequest) (booking.Booking, error)
}

type appointmentService interface {
	Transition(ctx context.Context, in appointments.TransitionInput) (domain.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

type cascadeService interface {
	OnAbsenceApproved(ctx context.Context, absenceID string) ([]cascade.CancelledAppointment, error)
}

type Services struct {
	Availability availabilityService
	Booking      bookingService
	Appointments appointmentService
	Cascade      cascadeService
	Checks       []health.Checker
}

type Handler struct {
	availability availabilityService
	booking      bookingService
	appointments appointmentService
	cascade      cascadeService
	checks       []health.Checker
	log          *slog.Logger
}

func NewHandler(s Services, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		availability: s.Availability,
		booking:      s.Booking,
		appointments: s.Appointments,
		cascade:      s.Cascade,
		checks:       s.Checks,
		log:          log,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/availability", h.handleAvailability)
	mux.HandleFunc("POST /v1/bookings", h.handleBook)
	mux.HandleFunc("GET /v1/appointments", h.handleListAppointments)
	mux.HandleFunc("GET /v1/appointments/{id}", h.handleGetAppointment)
	mux.HandleFunc("POST /v1/appointments/{id}/transition", h.handleTransition)
	mux.HandleFunc("POST /v1/appointments/{id}/reschedule", h.handleReschedule)
	mux.HandleFunc("POST /internal/absences/{id}/approved", h.handleAbsenceApproved)
	return mux
}

type healthResponse struct {
	Status string          `json:"status"`
	Checks []health.Result `json:"checks,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, healthy := health.Probe(r.Context(), healthProbeTimeout, h.checks)
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: results})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: results})
}

type slotView struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	EmployeeID string    `json:"employee_id"`
	LocationID string    `json:"location_id"`
}

type availabilityResponse struct {
	Slots []slotView `json:"slots"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := domain.ParseDate(q.Get("date_from"))
	if err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "date_from must be YYYY-MM-DD")
		return
	}
	to, err := domain.ParseDate(q.Get("date_to"))
	if err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "date_to must be YYYY-MM-DD")
		return
	}
	var interval time.Duration
	if raw := strings.TrimSpace(q.Get("interval_minutes")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "interval_minutes must be a positive integer")
			return
		}
		interval = time.Duration(minutes) * time.Minute
	}

	slots, err := h.availability.ListSlots(r.Context(), availsvc.Query{
		EmployeeID: q.Get("employee_id"),
		LocationID: q.Get("location_id"),
		ServiceID:  q.Get("service_id"),
		Days:       availability.DateRange{From: from, To: to},
		Interval:   interval,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := availabilityResponse{Slots: make([]slotView, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotView{
			StartTime:  s.StartTime.UTC(),
			EndTime:    s.EndTime.UTC(),
			EmployeeID: s.EmployeeID,
			LocationID: s.LocationID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type bookingRequest struct {
	EmployeeID      string    `json:"employee_id"`
	LocationID      string    `json:"location_id"`
	ServiceID       string    `json:"service_id"`
	ClientID        string    `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IdempotencyKey  string    `json:"idempotency_key"`
	Actor           string    `json:"actor"`
}

type appointmentView struct {
	AppointmentID   string     `json:"appointment_id"`
	Status          string     `json:"status"`
	BusinessID      string     `json:"business_id"`
	LocationID      string     `json:"location_id"`
	EmployeeID      string     `json:"employee_id"`
	ClientID        string     `json:"client_id"`
	ServiceID       string     `json:"service_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	CancelledReason string     `json:"cancelled_reason,omitempty"`
	RescheduledFrom string     `json:"rescheduled_from,omitempty"`
	StatusChangedBy string     `json:"status_changed_by"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

func toAppointmentView(a domain.Appointment) appointmentView {
	v := appointmentView{
		AppointmentID:   a.ID.String(),
		Status:          string(a.Status),
		BusinessID:      a.BusinessID,
		LocationID:      a.LocationID,
		EmployeeID:      a.EmployeeID,
		ClientID:        a.ClientID,
		ServiceID:       a.ServiceID,
		StartTime:       a.StartTime.UTC(),
		EndTime:         a.EndTime.UTC(),
		StatusChangedBy: a.StatusChangedBy,
	}
	if a.CancelledReason != nil {
		v.CancelledReason = string(*a.CancelledReason)
	}
	if a.RescheduledFrom != nil {
		v.RescheduledFrom = a.RescheduledFrom.String()
	}
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt.UTC()
		v.CreatedAt = &t
	}
	if !a.UpdatedAt.IsZero() {
		t := a.UpdatedAt.UTC()
		v.UpdatedAt = &t
	}
	return v
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := idempotencyKey(r, req.IdempotencyKey)

	b, err := h.booking.Book(r.Context(), booking.Request{
		EmployeeID:      req.EmployeeID,
		LocationID:      req.LocationID,
		ServiceID:       req.ServiceID,
		ClientID:        req.ClientID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		IdempotencyKey:  key,
		Actor:           req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeBooking(w, b)
}

type rescheduleRequest struct {
	EmployeeID      string    `json:"employee_id"`
	LocationID      string    `json:"location_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IdempotencyKey  string    `json:"idempotency_key"`
	Actor           string    `json:"actor"`
}

func (h *Handler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	b, err := h.booking.Reschedule(r.Context(), id, booking.RescheduleRequest{
		EmployeeID:      req.EmployeeID,
		LocationID:      req.LocationID,
		ServiceID:       req.ServiceID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		IdempotencyKey:  idempotencyKey(r, req.IdempotencyKey),
		Actor:           req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeBooking(w, b)
}

func writeBooking(w http.ResponseWriter, b booking.Booking) {
	status := http.StatusCreated
	if b.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toAppointmentView(b.Appointment))
}

type transitionRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
	Actor        string `json:"actor"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	target, ok := domain.ParseStatus(strings.TrimSpace(req.TargetStatus))
	if !ok {
		writeError(w, requestID(r), http.StatusUnprocessableEntity, string(domain.KindValidation), "target_status is not a known status")
		return
	}

	a, err := h.appointments.Transition(r.Context(), appointments.TransitionInput{
		AppointmentID: id,
		Target:        target,
		Reason:        domain.CancelReason(strings.TrimSpace(req.Reason)),
		Actor:         req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentView(a))
}

func (h *Handler) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	a, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentView(a))
}

type listResponse struct {
	Appointments []appointmentView `json:"appointments"`
}

func (h *Handler) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "from must be an RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "to must be an RFC3339 timestamp")
		return
	}

	rows, err := h.appointments.List(r.Context(), q.Get("employee_id"), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := listResponse{Appointments: make([]appointmentView, 0, len(rows))}
	for _, a := range rows {
		resp.Appointments = append(resp.Appointments, toAppointmentView(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelledView struct {
	AppointmentID  string    `json:"appointment_id"`
	ClientID       string    `json:"client_id"`
	EmployeeID     string    `json:"employee_id"`
	LocationID     string    `json:"location_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	PreviousStatus string    `json:"previous_status"`
}

type absenceApprovedResponse struct {
	AbsenceID string          `json:"absence_id"`
	Cancelled []cancelledView `json:"cancelled"`
}

func (h *Handler) handleAbsenceApproved(w http.ResponseWriter, r *http.Request) {
	absenceID := strings.TrimSpace(r.PathValue("id"))
	cancelled, err := h.cascade.OnAbsenceApproved(r.Context(), absenceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := absenceApprovedResponse{AbsenceID: absenceID, Cancelled: make([]cancelledView, 0, len(cancelled))}
	for _, c := range cancelled {
		resp.Cancelled = append(resp.Cancelled, cancelledView{
			AppointmentID:  c.AppointmentID.String(),
			ClientID:       c.ClientID,
			EmployeeID:     c.EmployeeID,
			LocationID:     c.LocationID,
			StartTime:      c.StartTime.UTC(),
			EndTime:        c.EndTime.UTC(),
			PreviousStatus: string(c.PreviousStatus),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON payload"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", msg)
		return false
	}
	return true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "request_id", requestID(r), "error", err)
	}
	writeError(w, requestID(r), status, code, msg)
}

// idempotencyKey prefers the header over the body field.
func idempotencyKey(r *http.Request, body string) string {
	if v := strings.TrimSpace(r.Header.Get(idempotencyHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(body)
}
