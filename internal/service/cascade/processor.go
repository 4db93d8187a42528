// Package cascade cancels the appointments that fall on an approved absence.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/service/calendar"
	"bookingcore/backend/internal/store"
)

// SystemActor is recorded as status_changed_by on cascaded cancellations.
const SystemActor = "system:absence_cascade"

var tracer = otel.Tracer("bookingcore/backend/internal/service/cascade")

type Options struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

type Processor struct {
	calendar     *calendar.Loader
	rules        store.CalendarRules
	appointments store.AppointmentRepository
	journal      store.CascadeJournal
	events       events.Sink
	log          *slog.Logger
	opts         Options
}

func NewProcessor(rules store.CalendarRules, appointments store.AppointmentRepository, journal store.CascadeJournal, sink events.Sink, log *slog.Logger, opts Options) *Processor {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		calendar:     calendar.NewLoader(rules),
		rules:        rules,
		appointments: appointments,
		journal:      journal,
		events:       sink,
		log:          log,
		opts:         opts,
	}
}

type CancelledAppointment struct {
	AppointmentID  uuid.UUID
	ClientID       string
	EmployeeID     string
	LocationID     string
	StartTime      time.Time
	EndTime        time.Time
	PreviousStatus domain.Status
}

type transition struct {
	before domain.Appointment
	after  domain.Appointment
}

// OnAbsenceApproved cancels every active appointment of the absent employee
// that overlaps a day of the absence. The affected set is re-derived from
// current state on every attempt, so a duplicate call cancels nothing new.
// A failure leaves the absence approved and the journal entry retryable.
func (p *Processor) OnAbsenceApproved(ctx context.Context, absenceID string) (_ []CancelledAppointment, err error) {
	ctx, span := tracer.Start(ctx, "cascade.OnAbsenceApproved")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	absenceID = strings.TrimSpace(absenceID)
	if absenceID == "" {
		return nil, domain.Errorf(domain.KindValidation, "absence_id is required")
	}
	abs, err := p.calendar.Absence(ctx, absenceID)
	if err != nil {
		return nil, err
	}
	if abs.Status != domain.AbsenceApproved {
		return nil, domain.Errorf(domain.KindAbsenceNotApproved, "absence %s is %s", abs.ID, abs.Status)
	}
	span.SetAttributes(attribute.String("employee_id", abs.EmployeeID))

	run, err := p.journal.GetCascade(ctx, abs.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		run = domain.CascadeRun{AbsenceID: abs.ID, EmployeeID: abs.EmployeeID}
	}
	run.Status = domain.CascadePending
	run.UpdatedAt = p.opts.Now().UTC()
	if err := p.journal.SaveCascade(ctx, run); err != nil {
		return nil, err
	}

	log := p.log.With(slog.String("absence_id", abs.ID), slog.String("employee_id", abs.EmployeeID))

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.InitialBackoff
	eb.MaxInterval = p.opts.MaxBackoff

	attempts := 0
	changes, err := backoff.Retry(ctx, func() ([]transition, error) {
		attempts++
		out, err := p.cancelAffected(ctx, abs)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(p.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("absence cascade attempt failed", slog.Any("err", err), slog.Duration("retry_in", next))
		}),
	)

	if err != nil {
		if saveErr := p.finishRun(context.WithoutCancel(ctx), abs, domain.CascadeFailed, attempts, 0, err.Error()); saveErr != nil {
			log.Error("absence cascade journal write failed", slog.Any("err", saveErr))
		}
		log.Error("absence cascade failed", slog.Int("attempts", attempts), slog.Any("err", err))
		return nil, err
	}

	if err := p.finishRun(ctx, abs, domain.CascadeCompleted, attempts, len(changes), ""); err != nil {
		log.Error("absence cascade journal write failed", slog.Any("err", err))
	}

	now := p.opts.Now()
	out := make([]CancelledAppointment, 0, len(changes))
	for _, c := range changes {
		events.PublishAll(ctx, p.events, events.ForTransition(c.before, c.after, now))
		out = append(out, CancelledAppointment{
			AppointmentID:  c.after.ID,
			ClientID:       c.after.ClientID,
			EmployeeID:     c.after.EmployeeID,
			LocationID:     c.after.LocationID,
			StartTime:      c.after.StartTime,
			EndTime:        c.after.EndTime,
			PreviousStatus: c.before.Status,
		})
	}
	log.Info("absence cascade completed", slog.Int("cancelled", len(out)), slog.Int("attempts", attempts))
	return out, nil
}

// finishRun re-reads the journal row so a run that finished in the meantime
// keeps its counts; this run's attempts and cancellations are added on top.
func (p *Processor) finishRun(ctx context.Context, abs domain.Absence, status domain.CascadeStatus, attempts, cancelled int, lastErr string) error {
	run, err := p.journal.GetCascade(ctx, abs.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		run = domain.CascadeRun{AbsenceID: abs.ID, EmployeeID: abs.EmployeeID}
	}
	run.Status = status
	run.Attempts += attempts
	run.CancelledCount += cancelled
	run.LastError = lastErr
	run.UpdatedAt = p.opts.Now().UTC()
	return p.journal.SaveCascade(ctx, run)
}

// cancelAffected runs one attempt as a single transaction under the employee
// lock. Absence days are taken in the time zone of each appointment's location.
func (p *Processor) cancelAffected(ctx context.Context, abs domain.Absence) ([]transition, error) {
	var changes []transition
	err := p.appointments.InEmployeeTransaction(ctx, []string{abs.EmployeeID}, func(ctx context.Context, tx store.AppointmentTx) error {
		changes = changes[:0]

		// Widened by a day on each side so every zone's view of the days is covered.
		wide := domain.DaysWindow(domain.DateOf(abs.StartDate).AddDays(-1), domain.DateOf(abs.EndDate).AddDays(1), time.UTC)
		active, err := tx.ListActiveAppointments(ctx, abs.EmployeeID, wide.Start, wide.End)
		if err != nil {
			return err
		}

		zones := make(map[string]*time.Location)
		for _, a := range active {
			zone, ok := zones[a.LocationID]
			if !ok {
				zone, err = p.zone(ctx, a.LocationID)
				if err != nil {
					return err
				}
				zones[a.LocationID] = zone
			}
			if !a.Interval().Overlaps(abs.Window(zone)) {
				continue
			}

			after, changed, err := domain.Apply(a, domain.TransitionRequest{
				Target: domain.StatusCancelled,
				Reason: domain.ReasonAbsenceCascade,
				Actor:  SystemActor,
				At:     p.opts.Now(),
			})
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			if err := tx.UpdateAppointmentStatus(ctx, after); err != nil {
				return err
			}
			changes = append(changes, transition{before: a, after: after})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (p *Processor) zone(ctx context.Context, locationID string) (*time.Location, error) {
	loc, err := p.rules.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.UTC, nil
		}
		return nil, err
	}
	z, err := loc.Zone()
	if err != nil {
		return time.UTC, nil
	}
	return z, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domain.KindOf(err) == ""
}

type RetrySummary struct {
	Attempted int
	Completed int
	Failed    int
	Cancelled int
}

// RetryPending re-runs each pending or failed cascade once. An absence that is
// gone or no longer approved closes its journal entry.
func (p *Processor) RetryPending(ctx context.Context, limit int) (RetrySummary, error) {
	runs, err := p.journal.ListRetryableCascades(ctx, limit)
	if err != nil {
		return RetrySummary{}, err
	}

	var sum RetrySummary
	for _, run := range runs {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Attempted++
		cancelled, err := p.OnAbsenceApproved(ctx, run.AbsenceID)
		switch {
		case err == nil:
			sum.Completed++
			sum.Cancelled += len(cancelled)
		case errors.Is(err, domain.ErrAbsenceNotApproved) || errors.Is(err, domain.ErrNotFound):
			run.Status = domain.CascadeCompleted
			run.LastError = err.Error()
			run.UpdatedAt = p.opts.Now().UTC()
			if saveErr := p.journal.SaveCascade(ctx, run); saveErr != nil {
				return sum, saveErr
			}
			sum.Completed++
		default:
			sum.Failed++
		}
	}
	return sum, nil
}
