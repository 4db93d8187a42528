package memory

import (
	"context"
	"sort"

	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/store"
)

func scheduleKey(employeeID, locationID string) string {
	return employeeID + "|" + locationID
}

func (s *Store) PutLocation(l domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[l.ID] = l
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutWorkSchedule replaces the row for the schedule's weekday.
func (s *Store) PutWorkSchedule(ws domain.WorkSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheduleKey(ws.EmployeeID, ws.LocationID)
	rows := s.schedules[key]
	for i := range rows {
		if rows[i].DayOfWeek == ws.DayOfWeek {
			rows[i] = ws
			return
		}
	}
	s.schedules[key] = append(rows, ws)
}

func (s *Store) PutHoliday(h domain.Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[h.CountryID] = append(s.holidays[h.CountryID], h)
}

func (s *Store) PutAbsence(a domain.Absence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences[a.ID] = a
}

func (s *Store) GetLocation(ctx context.Context, locationID string) (domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[locationID]
	if !ok {
		return domain.Location{}, store.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *Store) GetAbsence(ctx context.Context, absenceID string) (domain.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.absences[absenceID]
	if !ok {
		return domain.Absence{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListWorkSchedules(ctx context.Context, employeeID, locationID string) ([]domain.WorkSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := append([]domain.WorkSchedule(nil), s.schedules[scheduleKey(employeeID, locationID)]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].DayOfWeek < rows[j].DayOfWeek })
	return rows, nil
}

func (s *Store) ListHolidays(ctx context.Context, countryID string, from, to domain.Date) ([]domain.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Holiday
	for _, h := range s.holidays[countryID] {
		d := domain.DateOf(h.Date)
		if h.Recurring || (!d.Before(from) && !d.After(to)) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) ListApprovedAbsences(ctx context.Context, employeeID string, from, to domain.Date) ([]domain.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Absence
	for _, a := range s.absences {
		if a.EmployeeID != employeeID || a.Status != domain.AbsenceApproved {
			continue
		}
		if domain.DateOf(a.StartDate).After(to) || domain.DateOf(a.EndDate).Before(from) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) GetCascade(ctx context.Context, absenceID string) (domain.CascadeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.cascades[absenceID]
	if !ok {
		return domain.CascadeRun{}, store.ErrNotFound
	}
	return run, nil
}

func (s *Store) SaveCascade(ctx context.Context, run domain.CascadeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades[run.AbsenceID] = run
	return nil
}

func (s *Store) ListRetryableCascades(ctx context.Context, limit int) ([]domain.CascadeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CascadeRun
	for _, run := range s.cascades {
		if run.Status == domain.CascadePending || run.Status == domain.CascadeFailed {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
