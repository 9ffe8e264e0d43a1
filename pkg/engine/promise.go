package engine

import (
	"strconv"
	"strings"
	"time"
)

// maxCalendarScan bounds both calendar walks so a misconfigured method
// (every day disabled, a year-long block) resolves to "not fulfillable"
// instead of looping.
const maxCalendarScan = 366

// Promise is the earliest fulfillable delivery for a method from a start
// date.
type Promise struct {
	From     time.Time
	Delivery time.Time
}

// DeliveryPromise computes the earliest delivery date a method can honor
// starting at from. Dispatch requires an enabled weekday whose cutoff has
// not yet passed relative to the clock; delivery then requires an enabled
// weekday at or beyond the promise floor that is not covered by one of the
// method's own blocked dates. Express methods (PromiseStart == PromiseEnd)
// abort as soon as the day count passes the exact promised lead time.
func DeliveryPromise(m *ShippingMethod, from time.Time, clock Clock, blocked []BlockedDate) (Promise, bool) {
	loc := clock.Location()
	start := DateOnly(from, loc)

	dispatch, ok := findDispatchDay(m, start, clock)
	if !ok {
		return Promise{}, false
	}

	count := 0
	day := dispatch
	for i := 0; i < maxCalendarScan; i++ {
		if m.Express() && count > m.PromiseStart {
			return Promise{}, false
		}
		enabled := m.DeliveryDays.On(day.Weekday())
		if enabled && count >= m.PromiseStart && !dateBlocked(day, blocked) {
			return Promise{From: start, Delivery: day}, true
		}
		if enabled || !m.OnlyPromiseDeliveryDays {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return Promise{}, false
}

func findDispatchDay(m *ShippingMethod, start time.Time, clock Clock) (time.Time, bool) {
	day := start
	for i := 0; i < maxCalendarScan; i++ {
		sched := m.DispatchDays.At(day.Weekday())
		if sched.Enabled {
			cutoff, ok := cutoffOn(day, sched.Cutoff, clock.Location())
			if ok && clock.Now().Before(cutoff) {
				return day, true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// cutoffOn resolves a "HH:MM" cutoff against a candidate dispatch day. An
// empty cutoff means the whole day qualifies; a malformed one disables the
// day.
func cutoffOn(day time.Time, cutoff string, loc *time.Location) (time.Time, bool) {
	if cutoff == "" {
		return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc), true
	}
	parts := strings.SplitN(cutoff, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
}

func dateBlocked(day time.Time, blocked []BlockedDate) bool {
	for _, b := range blocked {
		if b.Covers(day) {
			return true
		}
	}
	return false
}
