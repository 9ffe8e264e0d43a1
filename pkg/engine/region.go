package engine

// ResolveRegion picks the single most specific region for a postcode from
// the candidate set (regions whose filters match a postcode component, plus
// the store default). Specificity is fixed: postcode > sector > outcode >
// area > default. The second return is true when no candidate matched at
// all and the caller must fall back to the store default; that state points
// at broken region configuration and is surfaced as a diagnostic upstream.
func ResolveRegion(candidates []Region, pc Postcode) (*Region, bool) {
	if len(candidates) == 1 {
		return &candidates[0], false
	}

	tiers := []func(Region) bool{
		func(r Region) bool { return containsString(r.PostcodeFilters, pc.Full) },
		func(r Region) bool { return containsString(r.SectorFilters, pc.Sector) },
		func(r Region) bool { return containsString(r.OutcodeFilters, pc.Outcode) },
		func(r Region) bool { return containsString(r.AreaFilters, pc.Area) },
	}
	for _, match := range tiers {
		for i := range candidates {
			if match(candidates[i]) {
				return &candidates[i], false
			}
		}
	}

	for i := range candidates {
		if candidates[i].Default {
			return &candidates[i], false
		}
	}
	return nil, true
}
