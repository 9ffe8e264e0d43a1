package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/dispatchly/nominated/internal/storage"
	"github.com/dispatchly/nominated/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratesFor(t *testing.T, snap storage.Snapshot, cart engine.Cart) ([]engine.RateQuote, error) {
	t.Helper()
	agg := engine.New(storage.NewMemory(snap), nil, nil, nil)
	return agg.Rates(context.Background(), testStoreID, cart, testNow)
}

func cartFor(t *testing.T, dateOffset int) engine.Cart {
	t.Helper()
	return engine.Cart{
		Postcode:      mustPostcode(t, "SW1A 1AA"),
		NominatedDate: day(dateOffset),
		Currency:      "GBP",
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	aggErr, ok := engine.AsAggregation(err)
	require.True(t, ok, "expected an aggregation error, got %v", err)
	assert.Equal(t, code, aggErr.Code)
}

func quoteByService(quotes []engine.RateQuote, service string) *engine.RateQuote {
	for i := range quotes {
		if quotes[i].ServiceCode == service {
			return &quotes[i]
		}
	}
	return nil
}

func TestRates_BothMethodsQuote(t *testing.T) {
	quotes, err := ratesFor(t, baseSnapshot(), cartFor(t, 3))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	std := quoteByService(quotes, "standard")
	require.NotNil(t, std)
	assert.Equal(t, 4.95, std.Price.Amount)
	assert.Equal(t, "GBP", std.Price.Currency)

	exp := quoteByService(quotes, "express")
	require.NotNil(t, exp)
	assert.Equal(t, 9.95, exp.Price.Amount)
}

func TestRates_MissingPostcode(t *testing.T) {
	cart := cartFor(t, 3)
	cart.Postcode = engine.Postcode{}
	_, err := ratesFor(t, baseSnapshot(), cart)
	requireCode(t, err, engine.CodePostcodeMissing)
}

func TestRates_MissingDate(t *testing.T) {
	cart := cartFor(t, 3)
	cart.NominatedDate = time.Time{}
	_, err := ratesFor(t, baseSnapshot(), cart)
	requireCode(t, err, engine.CodeDateMissing)
}

func TestRates_PastDate(t *testing.T) {
	_, err := ratesFor(t, baseSnapshot(), cartFor(t, -1))
	requireCode(t, err, engine.CodeDatePast)
}

func TestRates_DateOutsideWindow(t *testing.T) {
	_, err := ratesFor(t, baseSnapshot(), cartFor(t, 30))
	requireCode(t, err, engine.CodeDateUnavailable)
}

func TestRates_UnavailableDate(t *testing.T) {
	snap := baseSnapshot()
	snap.Blocked = []engine.BlockedDate{{
		ID:         "blk-store",
		StoreID:    testStoreID,
		ResourceID: testStoreID,
		Start:      day(3),
		End:        day(3),
	}}

	_, err := ratesFor(t, snap, cartFor(t, 3))
	requireCode(t, err, engine.CodeDateUnavailable)
}

func TestRates_BlockedMethodDropsFromQuotes(t *testing.T) {
	snap := baseSnapshot()
	snap.Blocked = []engine.BlockedDate{{
		ID:         "blk-std",
		StoreID:    testStoreID,
		ResourceID: "standard",
		Start:      day(3),
		End:        day(3),
	}}

	quotes, err := ratesFor(t, snap, cartFor(t, 3))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "express", quotes[0].ServiceCode)
}

func TestRates_ExpressQuotesExactDatesOnly(t *testing.T) {
	snap := baseSnapshot()
	exp := expressMethod()
	// Dispatch Monday to Friday only: from a Friday dispatch the next-day
	// promise lands Saturday, and Sunday is exactly reachable from nowhere.
	exp.DispatchDays[time.Saturday].Enabled = false
	exp.DispatchDays[time.Sunday].Enabled = false
	snap.Methods = []engine.ShippingMethod{standardMethod(), exp}

	// Day 6 is the first Sunday of the window.
	quotes, err := ratesFor(t, snap, cartFor(t, 6))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "standard", quotes[0].ServiceCode)

	// Saturday is reachable from the Friday dispatch.
	quotes, err = ratesFor(t, snap, cartFor(t, 5))
	require.NoError(t, err)
	assert.NotNil(t, quoteByService(quotes, "express"))
}

func TestRates_MethodAtDailyLimitDrops(t *testing.T) {
	snap := baseSnapshot()
	a := standardMethod()
	a.ID = "courier-a"
	a.ServiceCode = "courier-a"
	a.DailyOrderLimit = 1
	b := standardMethod()
	b.ID = "courier-b"
	b.ServiceCode = "courier-b"
	snap.Methods = []engine.ShippingMethod{a, b}
	snap.Orders = []engine.Order{processedOrder("o1", 3, "courier-a")}

	// The unlimited sibling keeps the date open; the full method drops
	// from the quote list for it.
	quotes, err := ratesFor(t, snap, cartFor(t, 3))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "courier-b", quotes[0].ServiceCode)
}

func TestRates_NonExpressBeforePromiseDrops(t *testing.T) {
	// Day 1 is inside the window thanks to express, but standard cannot
	// deliver before its two lead days.
	quotes, err := ratesFor(t, baseSnapshot(), cartFor(t, 1))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "express", quotes[0].ServiceCode)
}

func TestRates_BandPricingApplies(t *testing.T) {
	snap := baseSnapshot()
	std := standardMethod()
	std.Bands = []engine.Band{{
		ID:       "free-over-50",
		Priority: 1,
		Requirement: engine.BandRequirement{
			Type:      engine.ReqCartCost,
			Condition: engine.CondGreaterThan,
			Min:       50,
		},
		Cost: engine.BandCost{Type: engine.CostFixed, Amount: 0},
	}}
	snap.Methods = []engine.ShippingMethod{std}

	cart := cartFor(t, 3)
	cart.Items = []engine.LineItem{{ProductID: "p1", Quantity: 2, Price: 30}}

	quotes, err := ratesFor(t, snap, cart)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 0.0, quotes[0].Price.Amount, "60 in the cart crosses the free threshold")

	cart.Items = []engine.LineItem{{ProductID: "p1", Quantity: 1, Price: 30}}
	quotes, err = ratesFor(t, snap, cart)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 4.95, quotes[0].Price.Amount)
}

func TestRates_DateRangeBandSeesNominatedDate(t *testing.T) {
	snap := baseSnapshot()
	std := standardMethod()
	std.Bands = []engine.Band{{
		ID:       "peak",
		Priority: 1,
		Requirement: engine.BandRequirement{
			Type:      engine.ReqCartDateRange,
			Condition: engine.CondBetween,
			Start:     engine.ISODate(day(3)),
			End:       engine.ISODate(day(4)),
		},
		Cost: engine.BandCost{Type: engine.CostFixed, Amount: 12.50},
	}}
	snap.Methods = []engine.ShippingMethod{std}

	quotes, err := ratesFor(t, snap, cartFor(t, 3))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 12.50, quotes[0].Price.Amount)

	quotes, err = ratesFor(t, snap, cartFor(t, 5))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 4.95, quotes[0].Price.Amount)
}

func TestRates_SaturatedLeadTimeGroupMakesDateUnavailable(t *testing.T) {
	snap := baseSnapshot()
	std := standardMethod()
	std.DailyOrderLimit = 1
	snap.Methods = []engine.ShippingMethod{std}
	snap.Orders = []engine.Order{processedOrder("o1", 5, "standard")}

	// The only method is fully booked on day 5, so the date itself drops
	// out of the window.
	_, err := ratesFor(t, snap, cartFor(t, 5))
	requireCode(t, err, engine.CodeDateUnavailable)
}
