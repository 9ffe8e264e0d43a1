package engine

import (
	"time"
)

// Clock is the explicit evaluation instant for one aggregation call. All
// calendar arithmetic runs against the store's location so weekday and
// day-boundary logic is stable across DST transitions.
type Clock struct {
	now time.Time
	loc *time.Location
}

// NewClock creates a clock for the given instant in the given location.
func NewClock(now time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: now.In(loc), loc: loc}
}

// Now returns the evaluation instant in the store's location.
func (c Clock) Now() time.Time { return c.now }

// Location returns the store's location.
func (c Clock) Location() *time.Location { return c.loc }

// Today returns the evaluation date at start of day in the store's location.
func (c Clock) Today() time.Time { return DateOnly(c.now, c.loc) }

// DateOnly truncates an instant to start of day in the given location.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ISODate renders a date as "2006-01-02".
func ISODate(t time.Time) string { return t.Format("2006-01-02") }

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
