package domain

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestWorkScheduleSegments(t *testing.T) {
	ws := WorkSchedule{
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "17:00",
		BreakStart: strPtr("12:00"),
		BreakEnd:   strPtr("13:00"),
		IsWorking:  true,
	}
	h, err := ws.Hours()
	if err != nil {
		t.Fatalf("Hours error: %v", err)
	}

	day := Date{Year: 2026, Month: time.March, Day: 2}
	segs := h.Segments(day, time.UTC)
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2", len(segs))
	}
	want := []Interval{
		{Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)},
	}
	for i := range want {
		if !segs[i].Start.Equal(want[i].Start) || !segs[i].End.Equal(want[i].End) {
			t.Fatalf("segs[%d] = %v, want %v", i, segs[i], want[i])
		}
	}
}

func TestWorkScheduleHoursRejectsInvertedDay(t *testing.T) {
	ws := WorkSchedule{StartTime: "17:00", EndTime: "09:00", IsWorking: true}
	if _, err := ws.Hours(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHolidayMatches(t *testing.T) {
	fixed := Holiday{Date: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	recurring := Holiday{Date: time.Date(2020, 12, 25, 0, 0, 0, 0, time.UTC), Recurring: true}

	cases := []struct {
		name string
		h    Holiday
		d    Date
		want bool
	}{
		{"fixed same day", fixed, Date{2026, time.May, 1}, true},
		{"fixed other year", fixed, Date{2027, time.May, 1}, false},
		{"recurring later year", recurring, Date{2026, time.December, 25}, true},
		{"recurring earlier year", recurring, Date{2019, time.December, 25}, false},
		{"recurring other day", recurring, Date{2026, time.December, 24}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.h.Matches(tt.d); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	existing := Interval{Start: at(10, 0), End: at(10, 30)}

	if !existing.Overlaps(Interval{Start: at(10, 15), End: at(10, 45)}) {
		t.Fatalf("10:15-10:45 should overlap 10:00-10:30")
	}
	if existing.Overlaps(Interval{Start: at(10, 30), End: at(11, 0)}) {
		t.Fatalf("10:30-11:00 should not overlap 10:00-10:30")
	}
	if existing.Overlaps(Interval{Start: at(9, 30), End: at(10, 0)}) {
		t.Fatalf("09:30-10:00 should not overlap 10:00-10:30")
	}
}

func TestAbsenceWindowUsesLocationZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	a := Absence{
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	w := a.Window(loc)
	if !w.Start.Equal(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", w.Start.UTC())
	}
	if !w.End.Equal(time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", w.End.UTC())
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30:00")
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if c != 570 || c.String() != "09:30" {
		t.Fatalf("clock = %d (%s)", c, c)
	}
	for _, bad := range []string{"", "9", "25:00", "10:61", "24:30", "ab:cd"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := Errorf(KindSlotUnavailable, "taken at %s", "10:00")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("errors.Is should match on kind")
	}
	if errors.Is(err, ErrHolidayBlocked) {
		t.Fatalf("errors.Is matched a different kind")
	}
	if KindOf(err) != KindSlotUnavailable {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("x")) != "" {
		t.Fatalf("KindOf on foreign error should be empty")
	}
}
