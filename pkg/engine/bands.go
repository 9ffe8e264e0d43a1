package engine

import (
	"sort"
	"time"
)

// EvaluateBands prices a method for a cart. Matching bands are ordered
// ascending by priority and the first match's cost wins; with no match the
// method's base price applies. A malformed band is a non-match for that
// band only, never a failure of the whole evaluation.
func EvaluateBands(m *ShippingMethod, cart CartSummary) Money {
	currency := cart.Currency
	if currency == "" {
		currency = m.Price.Currency
	}

	matched := make([]Band, 0, len(m.Bands))
	for _, b := range m.Bands {
		if bandMatches(b, cart) {
			matched = append(matched, b)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })

	for _, b := range matched {
		switch b.Cost.Type {
		case CostFixed:
			return Money{Amount: b.Cost.Amount, Currency: currency}
		}
		// Unknown cost variant: skip, try the next match.
	}
	return Money{Amount: m.Price.Amount, Currency: currency}
}

func bandMatches(b Band, cart CartSummary) bool {
	req := b.Requirement
	switch req.Type {
	case ReqCartCost:
		return numericMatches(req, cart.TotalPrice)
	case ReqCartWeight:
		return numericMatches(req, float64(cart.TotalGrams))
	case ReqCartItems:
		common := intersect(req.VariantIDs, cart.VariantIDs)
		switch req.Condition {
		case CondHasAny:
			return len(common) > 0
		case CondHasNone:
			return len(common) == 0
		}
		return false
	case ReqCartDateRange:
		return dateRangeMatches(req, cart.NominatedDate)
	}
	return false
}

// numericMatches applies cartCost/cartWeight comparisons; between is
// strictly exclusive on both bounds.
func numericMatches(req BandRequirement, value float64) bool {
	switch req.Condition {
	case CondBetween:
		return value > req.Min && value < req.Max
	case CondGreaterThan:
		return value > req.Min
	case CondLessThan:
		return value < req.Max
	}
	return false
}

// dateRangeMatches applies the cartDateRange between check, inclusive of
// both bounds. A missing nominated date or malformed bound never matches.
func dateRangeMatches(req BandRequirement, nominated time.Time) bool {
	if req.Condition != CondBetween || nominated.IsZero() {
		return false
	}
	start, err := time.ParseInLocation("2006-01-02", req.Start, nominated.Location())
	if err != nil {
		return false
	}
	end, err := time.ParseInLocation("2006-01-02", req.End, nominated.Location())
	if err != nil {
		return false
	}
	day := DateOnly(nominated, nominated.Location())
	return !day.Before(start) && !day.After(end)
}

// MethodEligible evaluates a method's own eligibility conditions against
// the cart lines. An empty cart never restricts (the window call may omit
// line items); unrecognized condition types never restrict either.
func MethodEligible(m *ShippingMethod, items []LineItem) bool {
	if len(items) == 0 {
		return true
	}
	cart := Cart{Items: items}
	for _, c := range m.Conditions {
		if !methodConditionPasses(c, cart) {
			return false
		}
	}
	return true
}

func methodConditionPasses(c MethodCondition, cart Cart) bool {
	switch c.Type {
	case MethodCondProduct:
		return setConditionPasses(c, cart.ProductIDs())
	case MethodCondSKU:
		return setConditionPasses(c, cart.SKUs())
	case MethodCondWeight:
		grams := float64(cart.TotalGrams())
		switch c.Operator {
		case CondBetween:
			return grams > c.Min && grams < c.Max
		case CondGreaterThan:
			return grams > c.Min
		case CondLessThan:
			return grams < c.Max
		}
		return false
	}
	return true
}

func setConditionPasses(c MethodCondition, values []string) bool {
	common := intersect(c.Values, values)
	switch c.Operator {
	case CondHasAny:
		return len(common) > 0
	case CondHasNone:
		return len(common) == 0
	}
	return false
}
