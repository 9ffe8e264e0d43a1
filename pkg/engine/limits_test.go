package engine_test

import (
	"testing"

	"github.com/dispatchly/nominated/pkg/engine"
	"github.com/stretchr/testify/assert"
)

func TestStoreLimitBlocked(t *testing.T) {
	store := &engine.Store{MaxOrders: 10}
	counts := map[string]int{
		"2026-04-14": 9,
		"2026-04-15": 10,
		"2026-04-16": 11,
	}

	blocked := engine.StoreLimitBlocked(store, counts)
	assert.NotContains(t, blocked, "2026-04-14", "one below the cap stays open")
	assert.Contains(t, blocked, "2026-04-15", "exactly at the cap blocks")
	assert.Contains(t, blocked, "2026-04-16")
}

func TestStoreLimitBlocked_Unlimited(t *testing.T) {
	store := &engine.Store{MaxOrders: 0}
	blocked := engine.StoreLimitBlocked(store, map[string]int{"2026-04-14": 5000})
	assert.Empty(t, blocked)
}

func promiseFor(m *engine.ShippingMethod) engine.MethodPromise {
	return engine.MethodPromise{MethodID: m.ID, Method: m, Promised: day(2)}
}

func TestMethodLimitBlocked_SingleMethod(t *testing.T) {
	m := method("courier", 2, 5)
	m.DailyOrderLimit = 3

	counts := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "courier"}: 3,
		{Date: "2026-04-16", ServiceCode: "courier"}: 2,
	}

	blocked := engine.MethodLimitBlocked([]engine.MethodPromise{promiseFor(m)}, counts)
	assert.Contains(t, blocked, "2026-04-15")
	assert.NotContains(t, blocked, "2026-04-16")
}

func TestMethodLimitBlocked_SamePromiseStartFallback(t *testing.T) {
	a := method("courier-a", 2, 5)
	a.DailyOrderLimit = 3
	b := method("courier-b", 2, 7)
	b.DailyOrderLimit = 5

	methods := []engine.MethodPromise{promiseFor(a), promiseFor(b)}

	// a is full but b still has room; the date stays open.
	open := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "courier-a"}: 3,
		{Date: "2026-04-15", ServiceCode: "courier-b"}: 4,
	}
	assert.Empty(t, engine.MethodLimitBlocked(methods, open))

	// Both full: the whole lead-time group is saturated.
	full := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "courier-a"}: 3,
		{Date: "2026-04-15", ServiceCode: "courier-b"}: 5,
	}
	assert.Contains(t, engine.MethodLimitBlocked(methods, full), "2026-04-15")
}

func TestMethodLimitBlocked_DifferentPromiseStartNoFallback(t *testing.T) {
	express := method("express", 1, 1)
	express.DailyOrderLimit = 2
	standard := method("standard", 2, 5)

	// standard has no limit but a different lead time; it cannot cover for
	// the saturated express group.
	counts := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "express"}: 2,
	}
	blocked := engine.MethodLimitBlocked([]engine.MethodPromise{promiseFor(express), promiseFor(standard)}, counts)
	assert.Contains(t, blocked, "2026-04-15")
}

func TestMethodLimitBlocked_UnlimitedKeepsGroupOpen(t *testing.T) {
	a := method("courier-a", 2, 5)
	a.DailyOrderLimit = 3
	b := method("courier-b", 2, 5)

	counts := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "courier-a"}: 3,
		{Date: "2026-04-15", ServiceCode: "courier-b"}: 999,
	}
	blocked := engine.MethodLimitBlocked([]engine.MethodPromise{promiseFor(a), promiseFor(b)}, counts)
	assert.Empty(t, blocked, "an unlimited sibling keeps the group open")
}

func TestMethodOverLimit(t *testing.T) {
	m := method("courier", 2, 5)
	m.DailyOrderLimit = 2
	counts := map[engine.MethodDateKey]int{
		{Date: "2026-04-15", ServiceCode: "courier"}: 2,
	}

	assert.True(t, engine.MethodOverLimit(m, "2026-04-15", counts))
	assert.False(t, engine.MethodOverLimit(m, "2026-04-16", counts))

	m.DailyOrderLimit = 0
	assert.False(t, engine.MethodOverLimit(m, "2026-04-15", counts), "zero limit is unlimited")
}

func TestProductLimitBlocked(t *testing.T) {
	rules := []engine.Rule{{
		Production: []engine.ProductionLimit{{
			ProductIDs:     []string{"cake", "tart"},
			MaxUnitsPerDay: 5,
		}},
	}}

	counts := map[engine.ProductDateKey]int{
		{Date: "2026-04-15", ProductID: "cake"}:  5,
		{Date: "2026-04-16", ProductID: "cake"}:  4,
		{Date: "2026-04-17", ProductID: "bread"}: 50,
	}

	blocked := engine.ProductLimitBlocked(rules, counts)
	assert.Contains(t, blocked, "2026-04-15", "at the cap blocks")
	assert.NotContains(t, blocked, "2026-04-16", "one unit below stays open")
	assert.NotContains(t, blocked, "2026-04-17", "unrelated products never block")
}

func TestProductLimitBlocked_ZeroCapIgnored(t *testing.T) {
	rules := []engine.Rule{{
		Production: []engine.ProductionLimit{{ProductIDs: []string{"cake"}, MaxUnitsPerDay: 0}},
	}}
	counts := map[engine.ProductDateKey]int{{Date: "2026-04-15", ProductID: "cake"}: 100}
	assert.Empty(t, engine.ProductLimitBlocked(rules, counts))
}
