// Package engine computes nominated delivery-date windows and per-method
// rate quotes for a merchant store. Each aggregation is a stateless,
// request-scoped computation over snapshots read from a Datasource; the
// engine performs no writes and no retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator orchestrates the window and rate computations.
type Aggregator struct {
	ds      Datasource
	logger  *otelzap.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// New creates an aggregator. A nil logger or metrics recorder is replaced
// with a no-op; a nil tracer disables span creation.
func New(ds Datasource, logger *otelzap.Logger, metrics Metrics, tracer trace.Tracer) *Aggregator {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Aggregator{ds: ds, logger: logger, metrics: metrics, tracer: tracer}
}

// Window computes the per-date availability table for a store and postcode.
// Line items are optional; when present they feed rule product conditions
// and method eligibility.
func (a *Aggregator) Window(ctx context.Context, storeID string, pc Postcode, items []LineItem, now time.Time) (*Window, error) {
	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.Start(ctx, "engine.window")
		defer span.End()
	}

	started := time.Now()
	st, err := a.compute(ctx, storeID, pc, items, now)
	a.metrics.RecordComputation("window", statusOf(err), time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	return st.window, nil
}

// windowState carries the intermediate products of one computation so the
// rate aggregator can reuse them without recomputing.
type windowState struct {
	store         *Store
	clock         Clock
	region        *Region
	rules         []Rule
	promises      []MethodPromise
	methodBlocked map[string][]BlockedDate
	methodCounts  map[MethodDateKey]int
	expressDates  map[string]map[string]struct{}
	window        *Window
}

func (a *Aggregator) compute(ctx context.Context, storeID string, pc Postcode, items []LineItem, now time.Time) (*windowState, error) {
	store, err := a.ds.StoreByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAggregationError(CodeStoreNotFound, "store "+storeID+" not found").WithCause(err)
		}
		return nil, fmt.Errorf("fetch store: %w", err)
	}

	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		a.logger.Warn("Unknown store timezone, using UTC",
			zap.String("store_id", store.ID),
			zap.String("timezone", store.Timezone),
		)
		loc = time.UTC
	}
	clock := NewClock(now, loc)
	today := clock.Today()

	region, err := a.resolveRegion(ctx, store, pc)
	if err != nil {
		return nil, err
	}

	methods, err := a.eligibleMethods(ctx, region, items)
	if err != nil {
		return nil, err
	}

	rules, err := a.ds.ActiveRules(ctx, store.ID, today)
	if err != nil {
		return nil, fmt.Errorf("fetch rules: %w", err)
	}
	cart := Cart{Items: items}
	applying := ApplyingRules(rules, today, *region, cart.ProductIDs())

	methodBlocked, err := a.methodBlockedDates(ctx, store.ID, methods)
	if err != nil {
		return nil, err
	}

	promises, err := fulfillablePromises(ctx, methods, today, clock, methodBlocked)
	if err != nil {
		return nil, err
	}

	st := &windowState{
		store:         store,
		clock:         clock,
		region:        region,
		rules:         applying,
		promises:      promises,
		methodBlocked: methodBlocked,
		expressDates:  expressDeliveryDates(promises, today, store.Window, clock),
	}
	if err := a.buildTable(ctx, st, today); err != nil {
		return nil, err
	}
	return st, nil
}

func (a *Aggregator) resolveRegion(ctx context.Context, store *Store, pc Postcode) (*Region, error) {
	candidates, err := a.ds.RegionsForPostcode(ctx, store.ID, pc)
	if err != nil {
		return nil, fmt.Errorf("fetch regions: %w", err)
	}

	region, fellThrough := ResolveRegion(candidates, pc)
	if !fellThrough {
		return region, nil
	}

	// No candidate matched at all. The default region should have been a
	// candidate, so this points at broken region configuration; proceed on
	// the default rather than failing the request.
	a.logger.Ctx(ctx).Error("Region resolution fell through to store default",
		zap.String("store_id", store.ID),
		zap.String("postcode", pc.Full),
	)
	a.metrics.RecordRegionFallback(store.ID)

	fallback, err := a.ds.DefaultRegion(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch default region: %w", err)
	}
	return fallback, nil
}

func (a *Aggregator) eligibleMethods(ctx context.Context, region *Region, items []LineItem) ([]ShippingMethod, error) {
	all, err := a.ds.MethodsForRegion(ctx, region.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch shipping methods: %w", err)
	}
	eligible := make([]ShippingMethod, 0, len(all))
	for i := range all {
		if !all[i].Enabled {
			continue
		}
		if !MethodEligible(&all[i], items) {
			continue
		}
		eligible = append(eligible, all[i])
	}
	if len(eligible) == 0 {
		return nil, NewAggregationError(CodeNoShippingMethods, "no eligible shipping methods for region "+region.ID)
	}
	return eligible, nil
}

func (a *Aggregator) methodBlockedDates(ctx context.Context, storeID string, methods []ShippingMethod) (map[string][]BlockedDate, error) {
	ids := make([]string, len(methods))
	for i, m := range methods {
		ids[i] = m.ID
	}
	blocks, err := a.ds.BlockedDates(ctx, storeID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch method blocked dates: %w", err)
	}
	byMethod := make(map[string][]BlockedDate)
	for _, b := range blocks {
		byMethod[b.ResourceID] = append(byMethod[b.ResourceID], b)
	}
	return byMethod, nil
}

// fulfillablePromises computes delivery promises for every method in
// parallel and keeps the fulfillable ones in method order, so downstream
// merging is deterministic regardless of completion order. Express methods
// promise without their own blocked dates: a block covering the exact
// promised day would otherwise discard the method outright, when it should
// stay fulfillable for the window dates the block does not cover (the day
// pass excludes and attributes the covered ones).
func fulfillablePromises(ctx context.Context, methods []ShippingMethod, today time.Time, clock Clock, methodBlocked map[string][]BlockedDate) ([]MethodPromise, error) {
	results := make([]*Promise, len(methods))

	g, _ := errgroup.WithContext(ctx)
	for i := range methods {
		i := i
		g.Go(func() error {
			m := &methods[i]
			blocked := methodBlocked[m.ID]
			if m.Express() {
				blocked = nil
			}
			if p, ok := DeliveryPromise(m, today, clock, blocked); ok {
				results[i] = &p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	promises := make([]MethodPromise, 0, len(methods))
	for i := range methods {
		if results[i] == nil {
			continue
		}
		promises = append(promises, MethodPromise{
			MethodID: methods[i].ID,
			Method:   &methods[i],
			Promised: results[i].Delivery,
		})
	}
	if len(promises) == 0 {
		return nil, NewAggregationError(CodeNoFulfillableMethod, "no shipping method can fulfill from today")
	}
	return promises, nil
}

// expressDeliveryDates maps each express method to the delivery dates it
// can land on exactly, by promising from every window start date. An
// express method never serves a date later than its exact lead time from
// some dispatch, so membership here is the serviceability test the
// day-of-week pass and the rate filter apply. The method's own blocked
// dates are deliberately left out: the day pass checks them separately so
// it can record the method in the row's BlockedIDs.
func expressDeliveryDates(promises []MethodPromise, today time.Time, window int, clock Clock) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, mp := range promises {
		if !mp.Method.Express() {
			continue
		}
		dates := make(map[string]struct{})
		for i := 0; i < window; i++ {
			from := today.AddDate(0, 0, i)
			if p, ok := DeliveryPromise(mp.Method, from, clock, nil); ok {
				dates[ISODate(p.Delivery)] = struct{}{}
			}
		}
		out[mp.MethodID] = dates
	}
	return out
}

// buildTable runs the ordered availability passes over the candidate dates.
// Each pass only narrows: once a date is unavailable its source is fixed by
// the first pass that disabled it.
func (a *Aggregator) buildTable(ctx context.Context, st *windowState, today time.Time) error {
	dates := make([]DateStatus, st.store.Window)
	for i := range dates {
		dates[i] = DateStatus{
			Date:       today.AddDate(0, 0, i),
			Available:  true,
			BlockedIDs: []string{},
		}
	}

	// Availability floor: nothing before the earliest promise.
	earliest := st.promises[0].Promised
	for _, mp := range st.promises[1:] {
		if mp.Promised.Before(earliest) {
			earliest = mp.Promised
		}
	}
	for i := range dates {
		if dates[i].Date.Before(earliest) {
			disableDate(&dates[i], SourceEarliestPromise)
		}
	}

	// Offset floor from the applying rules.
	if offset := MaxOffset(st.rules); offset > 0 {
		floor := today.AddDate(0, 0, offset)
		for i := range dates {
			if dates[i].Date.Before(floor) {
				disableDate(&dates[i], SourceOffset)
			}
		}
	}

	// Day-of-week pass: a date stays available while at least one method
	// can service it and is not blocked on it by its own blocked dates.
	for i := range dates {
		if !a.dayServiceable(st, &dates[i]) {
			disableDate(&dates[i], SourceDayAvailability)
		}
	}

	// Independent inputs for the narrowing passes, fetched concurrently and
	// merged in fixed order below.
	var (
		scopedBlocks  []BlockedDate
		dailyCounts   map[string]int
		methodCounts  map[MethodDateKey]int
		productCounts map[ProductDateKey]int
	)
	productIDs := limitedProductIDs(st.rules)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resourceIDs := []string{st.store.ID}
		for _, r := range st.rules {
			resourceIDs = append(resourceIDs, r.ID)
		}
		var err error
		scopedBlocks, err = a.ds.BlockedDates(gctx, st.store.ID, resourceIDs)
		if err != nil {
			return fmt.Errorf("fetch blocked dates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dailyCounts, err = a.ds.DailyOrderCounts(gctx, st.store.ID, today)
		if err != nil {
			return fmt.Errorf("fetch daily order counts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		methodCounts, err = a.ds.MethodOrderCounts(gctx, st.store.ID, today)
		if err != nil {
			return fmt.Errorf("fetch method order counts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if len(productIDs) == 0 {
			return nil
		}
		var err error
		productCounts, err = a.ds.ProductUnitCounts(gctx, st.store.ID, today, productIDs)
		if err != nil {
			return fmt.Errorf("fetch product unit counts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	st.methodCounts = methodCounts

	for i := range dates {
		if dateBlocked(dates[i].Date, scopedBlocks) {
			disableDate(&dates[i], SourceBlockedDate)
		}
	}

	storeBlocked := StoreLimitBlocked(st.store, dailyCounts)
	methodBlocked := MethodLimitBlocked(st.promises, methodCounts)
	productBlocked := ProductLimitBlocked(st.rules, productCounts)
	for i := range dates {
		key := ISODate(dates[i].Date)
		if _, ok := storeBlocked[key]; ok {
			disableDate(&dates[i], SourceStoreLimits)
		}
		if _, ok := methodBlocked[key]; ok {
			disableDate(&dates[i], SourceMethodLimits)
		}
		if _, ok := productBlocked[key]; ok {
			disableDate(&dates[i], SourceProductLimits)
		}
	}

	st.window = &Window{Dates: dates, Methods: st.promises}
	return nil
}

// dayServiceable reports whether any fulfillable method can service the
// date, recording methods excluded by their own blocked dates in the row's
// BlockedIDs.
func (a *Aggregator) dayServiceable(st *windowState, row *DateStatus) bool {
	serviceable := false
	for _, mp := range st.promises {
		m := mp.Method
		if !m.DeliveryDays.On(row.Date.Weekday()) {
			continue
		}
		if m.Express() {
			if _, ok := st.expressDates[m.ID][ISODate(row.Date)]; !ok {
				continue
			}
		} else if row.Date.Before(mp.Promised) {
			continue
		}
		if dateBlocked(row.Date, st.methodBlocked[m.ID]) {
			if !containsString(row.BlockedIDs, m.ID) {
				row.BlockedIDs = append(row.BlockedIDs, m.ID)
			}
			continue
		}
		serviceable = true
	}
	return serviceable
}

func disableDate(row *DateStatus, source BlockSource) {
	if !row.Available {
		return
	}
	row.Available = false
	row.Source = source
}

func limitedProductIDs(rules []Rule) []string {
	var ids []string
	for _, r := range rules {
		for _, pl := range r.Production {
			ids = append(ids, pl.ProductIDs...)
		}
	}
	return distinct(ids)
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if aggErr, ok := AsAggregation(err); ok {
		return aggErr.Code
	}
	return "error"
}
