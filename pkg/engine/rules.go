package engine

import (
	"time"
)

// RuleApplies reports whether a rule is in force on the given date for the
// resolved region and the cart's product ids. The active window is
// start-inclusive and end-exclusive: a rule whose end equals the evaluation
// date is already finished.
func RuleApplies(r Rule, date time.Time, region Region, productIDs []string) bool {
	if !r.Enabled || r.Archived {
		return false
	}
	if date.Before(r.ActiveFrom) {
		return false
	}
	if r.ActiveTo != nil && !date.Before(*r.ActiveTo) {
		return false
	}
	return regionConditionPasses(r.Region, region) && productConditionPasses(r.Product, productIDs)
}

// ApplyingRules filters rules to the subset applying on the given date.
func ApplyingRules(rules []Rule, date time.Time, region Region, productIDs []string) []Rule {
	applying := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if RuleApplies(r, date, region, productIDs) {
			applying = append(applying, r)
		}
	}
	return applying
}

// MaxOffset returns the largest lead-day offset across the applying rules.
func MaxOffset(rules []Rule) int {
	max := 0
	for _, r := range rules {
		if r.OffsetDays > max {
			max = r.OffsetDays
		}
	}
	return max
}

func regionConditionPasses(c RegionCondition, region Region) bool {
	if !c.Enabled {
		return true
	}
	switch c.Type {
	case RegionIn:
		return containsString(c.RegionIDs, region.ID)
	case RegionNotIn:
		return !containsString(c.RegionIDs, region.ID)
	default:
		return false
	}
}

func productConditionPasses(c ProductCondition, productIDs []string) bool {
	if !c.Enabled {
		return true
	}
	ruleSet := distinct(c.ProductIDs)
	common := intersect(ruleSet, productIDs)
	switch c.Type {
	case ProductAll:
		return len(common) == len(ruleSet)
	case ProductAtLeastOne:
		return len(common) > 0
	case ProductNone:
		return len(common) == 0
	default:
		return false
	}
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
