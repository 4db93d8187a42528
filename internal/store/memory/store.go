// Package memory is an in-process implementation of the store interfaces. It
// honors the same per-employee serialization and overlap rules as the
// Postgres adapter and backs the service tests and the memory driver.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/store"
)

type Store struct {
	lockTimeout time.Duration

	mu           sync.RWMutex
	locks        map[string]chan struct{}
	appointments map[uuid.UUID]domain.Appointment
	locations    map[string]domain.Location
	services     map[string]domain.Service
	schedules    map[string][]domain.WorkSchedule
	holidays     map[string][]domain.Holiday
	absences     map[string]domain.Absence
	cascades     map[string]domain.CascadeRun
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout:  lockTimeout,
		locks:        make(map[string]chan struct{}),
		appointments: make(map[uuid.UUID]domain.Appointment),
		locations:    make(map[string]domain.Location),
		services:     make(map[string]domain.Service),
		schedules:    make(map[string][]domain.WorkSchedule),
		holidays:     make(map[string][]domain.Holiday),
		absences:     make(map[string]domain.Absence),
		cascades:     make(map[string]domain.CascadeRun),
	}
}

func (s *Store) lockFor(employeeID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[employeeID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[employeeID] = l
	}
	return l
}

func (s *Store) acquire(ctx context.Context, employeeID string) error {
	l := s.lockFor(employeeID)
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		t := time.NewTimer(s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-timeout:
		return fmt.Errorf("%w: employee %s", store.ErrLockTimeout, employeeID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release(employeeID string) {
	<-s.lockFor(employeeID)
}

// InEmployeeTransaction stages writes made by fn and applies them only when fn
// returns nil.
func (s *Store) InEmployeeTransaction(ctx context.Context, employeeIDs []string, fn func(ctx context.Context, tx store.AppointmentTx) error) error {
	ids := slices.Clone(employeeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]string, 0, len(ids))
	defer func() {
		for _, id := range held {
			s.release(id)
		}
	}()
	for _, id := range ids {
		if err := s.acquire(ctx, id); err != nil {
			return err
		}
		held = append(held, id)
	}

	tx := &memTx{s: s, staged: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.staged {
		s.appointments[id] = a
	}
	return nil
}

func (s *Store) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) List(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := domain.Interval{Start: windowStart, End: windowEnd}
	var out []domain.Appointment
	for _, a := range s.appointments {
		if a.EmployeeID == employeeID && a.Interval().Overlaps(w) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

// All returns every stored appointment ordered by start time.
func (s *Store) All() []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	sortByStart(out)
	return out
}

func sortByStart(rows []domain.Appointment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
}

type memTx struct {
	s      *Store
	staged map[uuid.UUID]domain.Appointment
}

func (t *memTx) lookup(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.appointments[id]
	return a, ok
}

// view merges committed rows with the ones staged by this transaction.
func (t *memTx) view() []domain.Appointment {
	t.s.mu.RLock()
	out := make([]domain.Appointment, 0, len(t.s.appointments)+len(t.staged))
	for id, a := range t.s.appointments {
		if _, ok := t.staged[id]; ok {
			continue
		}
		out = append(out, a)
	}
	t.s.mu.RUnlock()
	for _, a := range t.staged {
		out = append(out, a)
	}
	return out
}

func (t *memTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	a, ok := t.lookup(appointmentID)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) ListActiveAppointments(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	w := domain.Interval{Start: windowStart, End: windowEnd}
	var out []domain.Appointment
	for _, a := range t.view() {
		if a.EmployeeID == employeeID && a.Status.Active() && a.Interval().Overlaps(w) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID != uuid.Nil {
		if existing, ok := t.lookup(appt.ID); ok {
			if !existing.SameBooking(appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	if appt.Status.Active() {
		for _, a := range t.view() {
			if a.EmployeeID == appt.EmployeeID && a.Status.Active() && a.Interval().Overlaps(appt.Interval()) {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}

	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	t.staged[appt.ID] = appt
	return appt, nil
}

func (t *memTx) UpdateAppointmentStatus(ctx context.Context, appt domain.Appointment) error {
	cur, ok := t.lookup(appt.ID)
	if !ok {
		return store.ErrNotFound
	}
	cur.Status = appt.Status
	cur.CancelledReason = appt.CancelledReason
	cur.StatusChangedBy = appt.StatusChangedBy
	cur.UpdatedAt = time.Now().UTC()
	t.staged[cur.ID] = cur
	return nil
}
