package domain

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// WorkSchedule is one weekday of an employee's hours at a location. Times are
// wall-clock "HH:MM" in the location's time zone.
type WorkSchedule struct {
	bun.BaseModel `bun:"table:work_schedules"`

	EmployeeID string  `bun:"employee_id,pk" json:"employee_id"`
	LocationID string  `bun:"location_id,pk" json:"location_id"`
	DayOfWeek  int16   `bun:"day_of_week,pk" json:"day_of_week"`
	StartTime  string  `bun:"start_time,notnull" json:"start_time"`
	EndTime    string  `bun:"end_time,notnull" json:"end_time"`
	BreakStart *string `bun:"break_start" json:"break_start"`
	BreakEnd   *string `bun:"break_end" json:"break_end"`
	IsWorking  bool    `bun:"is_working,notnull" json:"is_working"`
}

// DayHours is a parsed WorkSchedule.
type DayHours struct {
	Open       ClockTime
	Close      ClockTime
	BreakStart ClockTime
	BreakEnd   ClockTime
	HasBreak   bool
}

func (w WorkSchedule) Hours() (DayHours, error) {
	open, err := ParseClock(w.StartTime)
	if err != nil {
		return DayHours{}, err
	}
	closing, err := ParseClock(w.EndTime)
	if err != nil {
		return DayHours{}, err
	}
	if closing <= open {
		return DayHours{}, fmt.Errorf("schedule for weekday %d closes at or before it opens", w.DayOfWeek)
	}
	h := DayHours{Open: open, Close: closing}
	if w.BreakStart != nil && w.BreakEnd != nil {
		bs, err := ParseClock(*w.BreakStart)
		if err != nil {
			return DayHours{}, err
		}
		be, err := ParseClock(*w.BreakEnd)
		if err != nil {
			return DayHours{}, err
		}
		if be > bs {
			h.BreakStart, h.BreakEnd, h.HasBreak = bs, be, true
		}
	}
	return h, nil
}

// Segments returns the bookable windows of the day on d, with the break cut out.
func (h DayHours) Segments(d Date, loc *time.Location) []Interval {
	open := h.Open.On(d, loc)
	closing := h.Close.On(d, loc)
	if !h.HasBreak || h.BreakEnd <= h.Open || h.BreakStart >= h.Close {
		return []Interval{{Start: open, End: closing}}
	}
	out := make([]Interval, 0, 2)
	if bs := h.BreakStart.On(d, loc); bs.After(open) {
		out = append(out, Interval{Start: open, End: bs})
	}
	if be := h.BreakEnd.On(d, loc); be.Before(closing) {
		out = append(out, Interval{Start: be, End: closing})
	}
	return out
}

type Holiday struct {
	bun.BaseModel `bun:"table:holidays"`

	CountryID string    `bun:"country_id,pk" json:"country_id"`
	Date      time.Time `bun:"date,pk,type:date" json:"date"`
	Name      string    `bun:"name" json:"name"`
	Recurring bool      `bun:"recurring,notnull" json:"recurring"`
}

// Matches reports whether the holiday falls on d. Recurring holidays match the
// same month and day in any year on or after the original.
func (h Holiday) Matches(d Date) bool {
	hd := DateOf(h.Date)
	if hd == d {
		return true
	}
	return h.Recurring && hd.Month == d.Month && hd.Day == d.Day && hd.Year <= d.Year
}

type AbsenceType string

const (
	AbsenceVacation  AbsenceType = "vacation"
	AbsenceEmergency AbsenceType = "emergency"
	AbsenceSick      AbsenceType = "sick"
	AbsencePersonal  AbsenceType = "personal"
	AbsenceOther     AbsenceType = "other"
)

type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

type Absence struct {
	bun.BaseModel `bun:"table:absences"`

	ID         string        `bun:"id,pk" json:"id"`
	EmployeeID string        `bun:"employee_id,notnull" json:"employee_id"`
	Type       AbsenceType   `bun:"type,notnull" json:"type"`
	StartDate  time.Time     `bun:"start_date,notnull,type:date" json:"start_date"`
	EndDate    time.Time     `bun:"end_date,notnull,type:date" json:"end_date"`
	Status     AbsenceStatus `bun:"status,notnull" json:"status"`
}

// Window spans start_date through end_date inclusive as calendar days in loc.
func (a Absence) Window(loc *time.Location) Interval {
	return DaysWindow(DateOf(a.StartDate), DateOf(a.EndDate), loc)
}

type Location struct {
	bun.BaseModel `bun:"table:locations"`

	ID         string `bun:"id,pk" json:"id"`
	BusinessID string `bun:"business_id,notnull" json:"business_id"`
	CountryID  string `bun:"country_id,notnull" json:"country_id"`
	TimeZone   string `bun:"time_zone,notnull" json:"time_zone"`
}

// Zone resolves the IANA time zone, falling back to UTC when it is empty.
func (l Location) Zone() (*time.Location, error) {
	if l.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.TimeZone)
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              string `bun:"id,pk" json:"id"`
	BusinessID      string `bun:"business_id,notnull" json:"business_id"`
	DurationMinutes int    `bun:"duration_minutes,notnull" json:"duration_minutes"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
