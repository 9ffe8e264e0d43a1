package engine

import (
	"time"
)

// ConditionType discriminates rule region/product condition semantics.
type ConditionType string

const (
	RegionIn    ConditionType = "in"
	RegionNotIn ConditionType = "not_in"

	ProductAll        ConditionType = "all"
	ProductAtLeastOne ConditionType = "at_least_one"
	ProductNone       ConditionType = "none"
)

// RequirementType discriminates band requirement variants.
type RequirementType string

const (
	ReqCartCost      RequirementType = "cartCost"
	ReqCartItems     RequirementType = "cartItems"
	ReqCartWeight    RequirementType = "cartWeight"
	ReqCartDateRange RequirementType = "cartDateRange"
)

// RequirementCondition is the comparison applied by a band requirement.
type RequirementCondition string

const (
	CondBetween     RequirementCondition = "between"
	CondGreaterThan RequirementCondition = "greaterThan"
	CondLessThan    RequirementCondition = "lessThan"
	CondHasAny      RequirementCondition = "hasAny"
	CondHasNone     RequirementCondition = "hasNone"
)

// CostType discriminates band cost variants.
type CostType string

const (
	CostFixed CostType = "fixed"
)

// MethodConditionType discriminates shipping method eligibility conditions.
type MethodConditionType string

const (
	MethodCondProduct MethodConditionType = "product"
	MethodCondWeight  MethodConditionType = "weight"
	MethodCondSKU     MethodConditionType = "sku"
)

// BlockSource identifies which aggregation pass made a date unavailable.
type BlockSource string

const (
	SourceEarliestPromise BlockSource = "earliest_promise"
	SourceOffset          BlockSource = "offset"
	SourceDayAvailability BlockSource = "day_availability"
	SourceBlockedDate     BlockSource = "blocked_date"
	SourceStoreLimits     BlockSource = "store_limits"
	SourceMethodLimits    BlockSource = "shipping_method_limits"
	SourceProductLimits   BlockSource = "product_level_limits"
)

// Money represents a monetary amount.
type Money struct {
	Amount   float64
	Currency string
}

// Store is the merchant store a window is projected for.
type Store struct {
	ID        string
	Name      string
	Window    int    // days projected forward from today
	MaxOrders int    // daily order cap across all methods, 0 = unlimited
	Timezone  string // IANA zone name, e.g. "Europe/London"
}

// Region is a geographic partition of a store's service area. The four
// filter sets hold normalized postcode components; exactly one region per
// store carries Default=true (enforced upstream, not here).
type Region struct {
	ID      string
	StoreID string
	Name    string
	Default bool

	PostcodeFilters []string
	SectorFilters   []string
	OutcodeFilters  []string
	AreaFilters     []string
}

// RegionCondition scopes a rule to a set of regions.
type RegionCondition struct {
	Enabled   bool
	Type      ConditionType // RegionIn / RegionNotIn
	RegionIDs []string
}

// ProductCondition scopes a rule to the cart's product ids.
type ProductCondition struct {
	Enabled    bool
	Type       ConditionType // ProductAll / ProductAtLeastOne / ProductNone
	ProductIDs []string
}

// ProductionLimit caps daily fulfillable units for a set of products.
type ProductionLimit struct {
	ProductIDs     []string
	MaxUnitsPerDay int
}

/// Rule is a store-wide conditional policy. ActiveTo is exclusive: a rule
// whose end equals the evaluation date no longer applies.
type Rule struct {
	ID       string
	StoreID  string
	Name     string
	Enabled  bool
	Archived bool

	ActiveFrom time.Time
	ActiveTo   *time.Time // nil = open-ended

	Region  RegionCondition
	Product ProductCondition

	OffsetDays int // minimum lead days applied store-wide
	Production []ProductionLimit
}

// DaySchedule is a single weekday's dispatch configuration. Cutoff is a
/// time of day in "HH:MM" form; empty means the whole day qualifies.
type DaySchedule struct {
	Enabled bool
	Cutoff  string
}

// WeekFlags holds a per-weekday enabled flag, indexed by time.Weekday.
type WeekFlags [7]bool

// On reports whether the given weekday is enabled.
func (w WeekFlags) On(d time.Weekday) bool { return w[int(d)] }

// WeekSchedule holds a per-weekday dispatch schedule, indexed by time.Weekday.
type WeekSchedule [7]DaySchedule

// At returns the schedule entry for the given weekday.
func (w WeekSchedule) At(d time.Weekday) DaySchedule { return w[int(d)] }

// MethodCondition is an eligibility filter on a shipping method. All
// conditions must pass for a cart; unrecognized types never restrict.
type MethodCondition struct {
	Type     MethodConditionType
	Operator RequirementCondition // hasAny/hasNone for product & sku, numeric for weight
	Values   []string
	Min      float64
	Max      float64
}

// BandRequirement is the tagged requirement variant of a pricing band.
// Unknown type/condition combinations never match.
type BandRequirement struct {
	Type      RequirementType
	Condition RequirementCondition

	// cartCost / cartWeight thresholds
	Min float64
	Max float64

	// cartItems variant id set
	VariantIDs []string

	// cartDateRange bounds, "2006-01-02"
	Start string
	End   string
}

// BandCost is the tagged cost variant of a pricing band.
type BandCost struct {
	Type   CostType
	Amount float64
}

// Band is a priority-ordered conditional pricing override. Lower priority
// is evaluated first.
type Band struct {
	ID          string
	Priority    int
	Requirement BandRequirement
	Cost        BandCost
}

// ShippingMethod is a deliverable service offered in one or more regions.
type ShippingMethod struct {
	ID          string
	StoreID     string
	RegionIDs   []string
	Name        string
	Description string
	ServiceCode string
	Enabled     bool

	Price Money // base price when no band matches

	PromiseStart int // days from dispatch, minimum
	PromiseEnd   int // days from dispatch, maximum

	DeliveryDays            WeekFlags
	DispatchDays            WeekSchedule
	OnlyPromiseDeliveryDays bool

	DailyOrderLimit int // 0 = unlimited
	Bands           []Band
	Conditions      []MethodCondition
	PhoneRequired   bool
}

// Express reports whether the method promises an exact day only.
func (m *ShippingMethod) Express() bool { return m.PromiseStart == m.PromiseEnd }

// BlockedDate is an inclusive [Start, End] interval during which a resource
// (a store or a shipping method, per ResourceID) cannot fulfill.
type BlockedDate struct {
	ID         string
	StoreID    string
	ResourceID string
	Start      time.Time
	End        time.Time
}

// Covers reports whether the date falls inside the blocked interval.
// Comparison is by calendar date.
func (b BlockedDate) Covers(d time.Time) bool {
	day := DateOnly(d, d.Location())
	return !day.Before(DateOnly(b.Start, d.Location())) && !day.After(DateOnly(b.End, d.Location()))
}

// LineItem is one cart or order line.
type LineItem struct {
	ProductID string
	VariantID string
	SKU       string
	Quantity  int
	Price     float64
	Grams     int
}

// Order is a read-only input to the limit aggregators.
type Order struct {
	ID                string
	StoreID           string
	NominatedDate     time.Time
	ServiceCode       string
	InternalStatus    string
	ExternallyShipped bool
	LocalPickup       bool
	LineItems         []LineItem
}

// Processed reports whether the order counts toward capacity limits.
func (o Order) Processed() bool {
	return o.InternalStatus == "processed" && !o.ExternallyShipped
}

// Cart is the checkout payload a rate request prices against.
type Cart struct {
	Postcode      Postcode
	NominatedDate time.Time // zero = not nominated
	Currency      string
	Items         []LineItem
}

// TotalPrice sums line price x quantity.
func (c Cart) TotalPrice() float64 {
	var total float64
	for _, li := range c.Items {
		total += li.Price * float64(li.Quantity)
	}
	return total
}

// TotalGrams sums line weight x quantity.
func (c Cart) TotalGrams() int {
	var total int
	for _, li := range c.Items {
		total += li.Grams * li.Quantity
	}
	return total
}

// ProductIDs returns the distinct product ids in the cart.
func (c Cart) ProductIDs() []string {
	return distinctField(c.Items, func(li LineItem) string { return li.ProductID })
}

// VariantIDs returns the distinct variant ids in the cart.
func (c Cart) VariantIDs() []string {
	return distinctField(c.Items, func(li LineItem) string { return li.VariantID })
}

// SKUs returns the distinct SKUs in the cart.
func (c Cart) SKUs() []string {
	return distinctField(c.Items, func(li LineItem) string { return li.SKU })
}

// Summary reduces the cart to what the band evaluator needs.
func (c Cart) Summary() CartSummary {
	return CartSummary{
		TotalPrice:    c.TotalPrice(),
		TotalGrams:    c.TotalGrams(),
		NominatedDate: c.NominatedDate,
		VariantIDs:    c.VariantIDs(),
		Currency:      c.Currency,
	}
}

// CartSummary is the band evaluator's view of a cart.
type CartSummary struct {
	TotalPrice    float64
	TotalGrams    int
	NominatedDate time.Time
	VariantIDs    []string
	Currency      string
}

// DateStatus is one row of the availability table. Source is empty while
// the date is available; BlockedIDs lists methods blocked on the date by
// their own blocked-date intervals.
type DateStatus struct {
	Date       time.Time
	Available  bool
	Source     BlockSource
	BlockedIDs []string
}

// MethodPromise pairs a fulfillable method with its earliest promised date.
type MethodPromise struct {
	MethodID string
	Method   *ShippingMethod
	Promised time.Time
}

// Window is the per-date availability table plus the fulfillable methods.
type Window struct {
	Dates   []DateStatus
	Methods []MethodPromise
}

// Lookup returns the table row for the given date, or nil.
func (w *Window) Lookup(d time.Time) *DateStatus {
	for i := range w.Dates {
		if sameDate(w.Dates[i].Date, d) {
			return &w.Dates[i]
		}
	}
	return nil
}

// RateQuote is one priced shipping option for a nominated date.
type RateQuote struct {
	ServiceCode   string
	Name          string
	Description   string
	Price         Money
	PhoneRequired bool
}

func distinctField(items []LineItem, field func(LineItem) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, li := range items {
		v := field(li)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	done := make(map[string]struct{})
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			continue
		}
		if _, dup := done[v]; dup {
			continue
		}
		done[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
