package engine

import (
	"context"
	"time"
)

// Datasource is the read-only persistence collaborator the engine consumes.
// Implementations return consistent snapshots for the duration of one
// aggregation call; the engine never writes and never retries, so failures
// propagate unchanged to the boundary.
type Datasource interface {
	// StoreByID fetches a store or returns a not-found error.
	StoreByID(ctx context.Context, id string) (*Store, error)

	// RegionsForPostcode fetches candidate regions: the store default plus
	// every region whose filter set contains a component of the postcode.
	RegionsForPostcode(ctx context.Context, storeID string, pc Postcode) ([]Region, error)

	// DefaultRegion fetches the store's default region. Only consulted when
	// RegionsForPostcode produced no usable candidate.
	DefaultRegion(ctx context.Context, storeID string) (*Region, error)

	// ActiveRules fetches enabled, non-archived rules whose active window
	// covers the given date.
	ActiveRules(ctx context.Context, storeID string, on time.Time) ([]Rule, error)

	// MethodsForRegion fetches the enabled shipping methods associated with
	// a region.
	MethodsForRegion(ctx context.Context, regionID string) ([]ShippingMethod, error)

	// BlockedDates fetches blocked-date intervals for the given resource ids
	// (store, rule, or shipping method ids).
	BlockedDates(ctx context.Context, storeID string, resourceIDs []string) ([]BlockedDate, error)

	// DailyOrderCounts returns processed, non-externally-shipped order
	// counts per ISO nominated date, from the given date forward.
	DailyOrderCounts(ctx context.Context, storeID string, from time.Time) (map[string]int, error)

	// MethodOrderCounts returns the same counts grouped by (date, service
	// code).
	MethodOrderCounts(ctx context.Context, storeID string, from time.Time) (map[MethodDateKey]int, error)

	// ProductUnitCounts returns ordered unit sums per (date, product) for
	// the given products, from the given date forward.
	ProductUnitCounts(ctx context.Context, storeID string, from time.Time, productIDs []string) (map[ProductDateKey]int, error)
}

// Metrics is the recording surface the aggregator reports to. The zero
// implementation is used when no recorder is wired.
type Metrics interface {
	// RecordComputation records one window or rate computation.
	RecordComputation(operation, status string, seconds float64)

	// RecordRegionFallback records a region resolution that fell through to
	// the store default without any filter match.
	RecordRegionFallback(storeID string)
}

type nopMetrics struct{}

func (nopMetrics) RecordComputation(string, string, float64) {}
func (nopMetrics) RecordRegionFallback(string)               {}
