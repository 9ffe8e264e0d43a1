package engine_test

import (
	"time"

	"github.com/dispatchly/nominated/pkg/engine"
)

// testNow is a Monday morning; most tests anchor on it so weekday arithmetic
// stays readable.
var testNow = time.Date(2026, 4, 13, 9, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return testNow.AddDate(0, 0, offset).Truncate(24 * time.Hour)
}

func allWeek() engine.WeekFlags {
	var w engine.WeekFlags
	for i := range w {
		w[i] = true
	}
	return w
}

func weekdaysOnly() engine.WeekFlags {
	w := allWeek()
	w[time.Saturday] = false
	w[time.Sunday] = false
	return w
}

func dispatchAllWeek(cutoff string) engine.WeekSchedule {
	var w engine.WeekSchedule
	for i := range w {
		w[i] = engine.DaySchedule{Enabled: true, Cutoff: cutoff}
	}
	return w
}

func method(id string, start, end int) *engine.ShippingMethod {
	return &engine.ShippingMethod{
		ID:           id,
		ServiceCode:  id,
		Name:         id,
		Enabled:      true,
		PromiseStart: start,
		PromiseEnd:   end,
		DeliveryDays: allWeek(),
		DispatchDays: dispatchAllWeek(""),
	}
}
