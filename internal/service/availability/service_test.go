package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"bookingcore/backend/internal/availability"
	"bookingcore/backend/internal/domain"
	"bookingcore/backend/internal/service/calendar"
	"bookingcore/backend/internal/store"
	"bookingcore/backend/internal/store/memory"
)

func strPtr(s string) *string { return &s }

func at(day, h, m int) time.Time { return time.Date(2026, 3, day, h, m, 0, 0, time.UTC) }

func day(d int) domain.Date { return domain.Date{Year: 2026, Month: time.March, Day: d} }

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(time.Second)
	s.PutLocation(domain.Location{ID: "l1", BusinessID: "b1", CountryID: "de", TimeZone: "UTC"})
	s.PutService(domain.Service{ID: "s30", BusinessID: "b1", DurationMinutes: 30})
	for wd := int16(1); wd <= 5; wd++ {
		s.PutWorkSchedule(domain.WorkSchedule{
			EmployeeID: "e1",
			LocationID: "l1",
			DayOfWeek:  wd,
			StartTime:  "09:00",
			EndTime:    "17:00",
			BreakStart: strPtr("12:00"),
			BreakEnd:   strPtr("13:00"),
			IsWorking:  true,
		})
	}
	s.PutHoliday(domain.Holiday{CountryID: "de", Date: at(4, 0, 0)})
	s.PutAbsence(domain.Absence{ID: "abs1", EmployeeID: "e1", Type: domain.AbsenceSick, StartDate: at(5, 0, 0), EndDate: at(5, 0, 0), Status: domain.AbsenceApproved})
	s.PutAbsence(domain.Absence{ID: "abs2", EmployeeID: "e1", Type: domain.AbsenceVacation, StartDate: at(6, 0, 0), EndDate: at(6, 0, 0), Status: domain.AbsencePending})
	return s
}

func insert(t *testing.T, s *memory.Store, start time.Time, status domain.Status) {
	t.Helper()
	err := s.InEmployeeTransaction(context.Background(), []string{"e1"}, func(ctx context.Context, tx store.AppointmentTx) error {
		_, err := tx.InsertAppointment(ctx, domain.Appointment{
			ID:              uuid.New(),
			BusinessID:      "b1",
			LocationID:      "l1",
			EmployeeID:      "e1",
			ClientID:        "c1",
			ServiceID:       "s30",
			StartTime:       start,
			EndTime:         start.Add(30 * time.Minute),
			Status:          status,
			StatusChangedBy: "c1",
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
}

func newService(s *memory.Store, now time.Time) *Service {
	return NewService(calendar.NewLoader(s), s, Options{Now: func() time.Time { return now }})
}

func startsOn(slots []availability.Slot, d int) []string {
	var out []string
	for _, s := range slots {
		if s.StartTime.Day() == d {
			out = append(out, s.StartTime.Format("15:04"))
		}
	}
	return out
}

func TestListSlots_ExcludesBookedHolidayAndAbsence(t *testing.T) {
	s := newStore(t)
	insert(t, s, at(2, 10, 0), domain.StatusConfirmed)
	insert(t, s, at(2, 11, 0), domain.StatusCancelled)
	svc := newService(s, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	slots, err := svc.ListSlots(context.Background(), Query{
		EmployeeID: "e1",
		LocationID: "l1",
		ServiceID:  "s30",
		Days:       availability.DateRange{From: day(2), To: day(6)},
	})
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}

	monday := startsOn(slots, 2)
	if len(monday) != 13 {
		t.Fatalf("monday slots = %v, want 13", monday)
	}
	for _, st := range monday {
		if st == "10:00" {
			t.Fatalf("booked 10:00 slot offered")
		}
	}
	if got := startsOn(slots, 4); len(got) != 0 {
		t.Fatalf("holiday slots = %v", got)
	}
	if got := startsOn(slots, 5); len(got) != 0 {
		t.Fatalf("approved absence slots = %v", got)
	}
	if got := startsOn(slots, 6); len(got) != 14 {
		t.Fatalf("pending absence must not block: %v", got)
	}
}

func TestListSlots_SkipsPastStarts(t *testing.T) {
	s := newStore(t)
	svc := newService(s, at(2, 14, 0))

	slots, err := svc.ListSlots(context.Background(), Query{
		EmployeeID: "e1",
		LocationID: "l1",
		ServiceID:  "s30",
		Days:       availability.DateRange{From: day(2), To: day(2)},
	})
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}
	if len(slots) == 0 || slots[0].StartTime.Format("15:04") != "14:30" {
		t.Fatalf("first slot = %v, want 14:30", slots)
	}
}

func TestListSlots_Interval(t *testing.T) {
	s := newStore(t)
	svc := newService(s, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	slots, err := svc.ListSlots(context.Background(), Query{
		EmployeeID: "e1",
		LocationID: "l1",
		ServiceID:  "s30",
		Days:       availability.DateRange{From: day(2), To: day(2)},
		Interval:   15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}
	// 09:00..11:30 and 13:00..16:30 every 15 minutes.
	if len(slots) != 26 {
		t.Fatalf("slots = %d, want 26", len(slots))
	}
}

func TestListSlots_Rejects(t *testing.T) {
	svc := newService(newStore(t), time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	base := Query{EmployeeID: "e1", LocationID: "l1", ServiceID: "s30", Days: availability.DateRange{From: day(2), To: day(2)}}

	cases := []struct {
		name string
		mod  func(q *Query)
		want error
	}{
		{"missing employee", func(q *Query) { q.EmployeeID = " " }, domain.ErrValidation},
		{"inverted range", func(q *Query) { q.Days = availability.DateRange{From: day(3), To: day(2)} }, domain.ErrInvalidInterval},
		{"range too long", func(q *Query) { q.Days = availability.DateRange{From: day(1), To: day(1).AddDays(40)} }, domain.ErrValidation},
		{"negative interval", func(q *Query) { q.Interval = -time.Minute }, domain.ErrValidation},
		{"unknown service", func(q *Query) { q.ServiceID = "s99" }, domain.ErrNotFound},
		{"unknown location", func(q *Query) { q.LocationID = "l99" }, domain.ErrNotFound},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			tt.mod(&q)
			if _, err := svc.ListSlots(context.Background(), q); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
