// Package availability holds the pure scheduling rules: slot generation over
// working hours and the overlap test used on both the read and write paths.
package availability

import (
	"iter"
	"time"

	"bookingcore/backend/internal/domain"
)

const DefaultInterval = 30 * time.Minute

// Slot is a candidate window. It is never persisted.
type Slot struct {
	StartTime  time.Time
	EndTime    time.Time
	EmployeeID string
	LocationID string
}

func (s Slot) Interval() domain.Interval {
	return domain.Interval{Start: s.StartTime, End: s.EndTime}
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From domain.Date
	To   domain.Date
}

func (r DateRange) Days() int {
	if r.To.Before(r.From) {
		return 0
	}
	const secondsPerDay = 24 * 60 * 60
	return int((r.To.In(time.UTC).Unix()-r.From.In(time.UTC).Unix())/secondsPerDay) + 1
}

// Rules is the calendar snapshot for one employee at one location.
type Rules struct {
	EmployeeID string
	LocationID string
	BusinessID string
	Zone       *time.Location
	Schedules  map[time.Weekday]domain.WorkSchedule
	Holidays   []domain.Holiday
}

func (r Rules) Location() *time.Location {
	if r.Zone == nil {
		return time.UTC
	}
	return r.Zone
}

func (r Rules) IsHoliday(d domain.Date) bool {
	for _, h := range r.Holidays {
		if h.Matches(d) {
			return true
		}
	}
	return false
}

// Segments returns the bookable windows on d, or nil when the employee does not
// work that day.
func (r Rules) Segments(d domain.Date) []domain.Interval {
	ws, ok := r.Schedules[d.Weekday()]
	if !ok || !ws.IsWorking {
		return nil
	}
	hours, err := ws.Hours()
	if err != nil {
		return nil
	}
	return hours.Segments(d, r.Location())
}

// GenerateSlots lazily yields every window of length duration that starts on an
// interval step of a working segment and ends before the segment closes. It
// does not look at bookings or absences.
func GenerateSlots(rules Rules, days DateRange, duration, interval time.Duration) iter.Seq[Slot] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return func(yield func(Slot) bool) {
		if duration <= 0 {
			return
		}
		for d := days.From; !d.After(days.To); d = d.AddDays(1) {
			if rules.IsHoliday(d) {
				continue
			}
			for _, seg := range rules.Segments(d) {
				for cur := seg.Start; !cur.Add(duration).After(seg.End); cur = cur.Add(interval) {
					slot := Slot{
						StartTime:  cur.UTC(),
						EndTime:    cur.Add(duration).UTC(),
						EmployeeID: rules.EmployeeID,
						LocationID: rules.LocationID,
					}
					if !yield(slot) {
						return
					}
				}
			}
		}
	}
}

// CheckWindow validates a requested window against working hours and holidays.
// The window must fit inside a single working segment of the day it starts on.
func CheckWindow(rules Rules, window domain.Interval) error {
	if !window.Valid() {
		return domain.Errorf(domain.KindInvalidInterval, "end_time must be after start_time")
	}
	day := domain.DateOf(window.Start.In(rules.Location()))
	if rules.IsHoliday(day) {
		return domain.Errorf(domain.KindHolidayBlocked, "%s is a holiday", day)
	}
	for _, seg := range rules.Segments(day) {
		if seg.Contains(window) {
			return nil
		}
	}
	return domain.Errorf(domain.KindOutsideBusinessHours, "requested time is outside working hours on %s", day)
}
