package engine

// MethodDateKey keys order counts per (date, shipping method service code).
// Date is ISO "2006-01-02".
type MethodDateKey struct {
	Date        string
	ServiceCode string
}

// ProductDateKey keys ordered unit sums per (date, product).
type ProductDateKey struct {
	Date      string
	ProductID string
}

// StoreLimitBlocked returns the ISO dates whose processed order count has
// reached the store's daily cap. A zero cap never blocks.
func StoreLimitBlocked(store *Store, counts map[string]int) map[string]struct{} {
	blocked := make(map[string]struct{})
	if store.MaxOrders <= 0 {
		return blocked
	}
	for date, n := range counts {
		if n >= store.MaxOrders {
			blocked[date] = struct{}{}
		}
	}
	return blocked
}

// MethodLimitBlocked returns the ISO dates on which every shipping method
// of some lead-time group has hit its daily order limit. A method over its
// limit does not block a date while an alternative method with the same
// PromiseStart can still take the order; methods without a limit keep their
// group open indefinitely.
func MethodLimitBlocked(methods []MethodPromise, counts map[MethodDateKey]int) map[string]struct{} {
	blocked := make(map[string]struct{})

	groups := make(map[int][]MethodPromise)
	for _, mp := range methods {
		ps := mp.Method.PromiseStart
		groups[ps] = append(groups[ps], mp)
	}

	dates := make(map[string]struct{})
	for key := range counts {
		dates[key.Date] = struct{}{}
	}

	for date := range dates {
		for _, group := range groups {
			saturated := len(group) > 0
			hit := false
			for _, mp := range group {
				limit := mp.Method.DailyOrderLimit
				if limit <= 0 || counts[MethodDateKey{Date: date, ServiceCode: mp.Method.ServiceCode}] < limit {
					saturated = false
					continue
				}
				hit = true
			}
			if hit && saturated {
				blocked[date] = struct{}{}
				break
			}
		}
	}
	return blocked
}

// MethodOverLimit reports whether one method has hit its daily limit on one
// ISO date. Used by the rate aggregator's per-date recheck.
func MethodOverLimit(m *ShippingMethod, date string, counts map[MethodDateKey]int) bool {
	if m.DailyOrderLimit <= 0 {
		return false
	}
	return counts[MethodDateKey{Date: date, ServiceCode: m.ServiceCode}] >= m.DailyOrderLimit
}

// ProductLimitBlocked returns the ISO dates on which some rule's production
// limit is met or exceeded by the ordered unit sums for its products.
func ProductLimitBlocked(rules []Rule, counts map[ProductDateKey]int) map[string]struct{} {
	blocked := make(map[string]struct{})
	for _, r := range rules {
		for _, pl := range r.Production {
			if pl.MaxUnitsPerDay <= 0 {
				continue
			}
			for key, units := range counts {
				if units < pl.MaxUnitsPerDay {
					continue
				}
				if containsString(pl.ProductIDs, key.ProductID) {
					blocked[key.Date] = struct{}{}
				}
			}
		}
	}
	return blocked
}
