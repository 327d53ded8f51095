package appointment

import (
	"fmt"
	"time"
)

const (
	SlotDuration = 30 // minutes, consultations only
	SlotStep     = 15 // minutes between candidate starts
)

// Slot is a candidate half-open interval that could host a new appointment.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Checker answers whether a consultation slot is free. It holds no state
// besides its configuration and works on whatever snapshot it is given.
type Checker struct {
	DayStart int // minutes since midnight
	DayEnd   int
	Location *time.Location
	Now      func() time.Time
}

// NewChecker builds a checker for the daily window [dayStart, dayEnd).
func NewChecker(dayStart, dayEnd string, loc *time.Location) (Checker, error) {
	start, err := ParseClock(dayStart)
	if err != nil {
		return Checker{}, fmt.Errorf("day start: %w", err)
	}
	end, err := ParseClock(dayEnd)
	if err != nil {
		return Checker{}, fmt.Errorf("day end: %w", err)
	}
	if start >= end {
		return Checker{}, fmt.Errorf("day window %s-%s is empty", dayStart, dayEnd)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Checker{DayStart: start, DayEnd: end, Location: loc, Now: time.Now}, nil
}

// DefaultChecker uses the 09:00-17:00 window in UTC.
func DefaultChecker() Checker {
	return Checker{DayStart: 9 * 60, DayEnd: 17 * 60, Location: time.UTC, Now: time.Now}
}

// Overlaps reports whether [a1,a2) and [b1,b2) intersect. Touching
// endpoints do not overlap.
func Overlaps(a1, a2, b1, b2 int) bool {
	return a1 < b2 && b1 < a2
}

// EndFor derives the end time of a consultation starting at start.
func EndFor(start string) (string, error) {
	m, err := ParseClock(start)
	if err != nil {
		return "", err
	}
	if m+SlotDuration > 24*60 {
		return "", fmt.Errorf("slot starting %s runs past midnight", start)
	}
	return FormatClock(m + SlotDuration), nil
}

// blocks reports whether an existing record takes part in conflict checks.
func blocks(a Appointment) bool {
	return a.Type == TypeConsultation && a.StatusCode != StatusCancelled
}

// Conflicts returns the records on date that overlap a consultation starting
// at start. The caller removes the record being moved before calling.
func (c Checker) Conflicts(date, start string, existing []Appointment) ([]Appointment, error) {
	s, err := ParseClock(start)
	if err != nil {
		return nil, err
	}
	e := s + SlotDuration

	var out []Appointment
	for _, a := range existing {
		if a.Date != date || !blocks(a) {
			continue
		}
		as, err := ParseClock(a.StartTime)
		if err != nil {
			continue
		}
		ae, err := ParseClock(a.EndTime)
		if err != nil {
			continue
		}
		if Overlaps(s, e, as, ae) {
			out = append(out, a)
		}
	}
	return out, nil
}

// IsFree reports whether a consultation at date/start overlaps nothing.
func (c Checker) IsFree(date, start string, existing []Appointment) (bool, error) {
	conflicts, err := c.Conflicts(date, start, existing)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Bookable reports whether date is a weekday that is not in the past.
func (c Checker) Bookable(date string) (bool, error) {
	d, err := ParseDate(date, c.location())
	if err != nil {
		return false, err
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	today := FormatDate(c.now().In(c.location()))
	return date >= today, nil
}

// InWindow reports whether a consultation at start fits the daily window.
func (c Checker) InWindow(start string) bool {
	s, err := ParseClock(start)
	if err != nil {
		return false
	}
	return s >= c.DayStart && s+SlotDuration <= c.DayEnd
}

// AvailableSlots lists the free consultation slots on date in start order.
// Weekends and past dates have none.
func (c Checker) AvailableSlots(date string, existing []Appointment) ([]Slot, error) {
	ok, err := c.Bookable(date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Slot{}, nil
	}

	slots := []Slot{}
	for m := c.DayStart; m+SlotDuration <= c.DayEnd; m += SlotStep {
		start := FormatClock(m)
		free, err := c.IsFree(date, start, existing)
		if err != nil {
			return nil, err
		}
		if free {
			slots = append(slots, Slot{Date: date, StartTime: start, EndTime: FormatClock(m + SlotDuration)})
		}
	}
	return slots, nil
}

func (c Checker) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Exclude drops the record with id from records.
func Exclude(records []Appointment, id string) []Appointment {
	out := make([]Appointment, 0, len(records))
	for _, a := range records {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
