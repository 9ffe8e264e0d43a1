package engine

import (
	"context"
	"time"
)

// Rates validates a cart's nominated date against the availability window
// and prices every shipping method that can still serve it. An empty quote
// list is a valid answer; only structural failures (bad postcode, missing
// store, unusable date) are errors.
func (a *Aggregator) Rates(ctx context.Context, storeID string, cart Cart, now time.Time) ([]RateQuote, error) {
	if a.tracer != nil {
		ctx2, span := a.tracer.Start(ctx, "engine.rates")
		defer span.End()
		ctx = ctx2
	}

	started := time.Now()
	quotes, err := a.rates(ctx, storeID, cart, now)
	a.metrics.RecordComputation("rates", statusOf(err), time.Since(started).Seconds())
	return quotes, err
}

func (a *Aggregator) rates(ctx context.Context, storeID string, cart Cart, now time.Time) ([]RateQuote, error) {
	if cart.Postcode.Zero() {
		return nil, NewAggregationError(CodePostcodeMissing, "postcode is required")
	}
	if cart.NominatedDate.IsZero() {
		return nil, NewAggregationError(CodeDateMissing, "nominated date is required")
	}

	st, err := a.compute(ctx, storeID, cart.Postcode, cart.Items, now)
	if err != nil {
		return nil, err
	}

	// Re-anchor the nominated calendar date in the store's zone so a date
	// parsed elsewhere lands on the same table row.
	nominated := time.Date(
		cart.NominatedDate.Year(), cart.NominatedDate.Month(), cart.NominatedDate.Day(),
		0, 0, 0, 0, st.clock.Location(),
	)
	if nominated.Before(st.clock.Today()) {
		return nil, NewAggregationError(CodeDatePast, "nominated date "+ISODate(nominated)+" is in the past")
	}

	row := st.window.Lookup(nominated)
	if row == nil || !row.Available {
		return nil, NewAggregationError(CodeDateUnavailable, "nominated date "+ISODate(nominated)+" is no longer available")
	}

	summary := cart.Summary()
	summary.NominatedDate = nominated

	quotes := make([]RateQuote, 0, len(st.promises))
	for _, mp := range st.promises {
		m := mp.Method
		if MethodOverLimit(m, ISODate(nominated), st.methodCounts) {
			continue
		}
		if containsString(row.BlockedIDs, m.ID) {
			continue
		}
		if m.Express() {
			if _, ok := st.expressDates[m.ID][ISODate(nominated)]; !ok {
				continue
			}
		} else if nominated.Before(mp.Promised) {
			continue
		}
		if !m.DeliveryDays.On(nominated.Weekday()) {
			continue
		}

		quotes = append(quotes, RateQuote{
			ServiceCode:   m.ServiceCode,
			Name:          m.Name,
			Description:   m.Description,
			Price:         EvaluateBands(m, summary),
			PhoneRequired: m.PhoneRequired,
		})
	}
	return quotes, nil
}
