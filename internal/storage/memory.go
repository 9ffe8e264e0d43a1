// Package storage provides read-only Datasource implementations for the
// engine: a Postgres-backed one for production and an in-memory snapshot
// used by tests and mock serving.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dispatchly/nominated/pkg/engine"
)

// Snapshot is a fixed dataset the memory datasource serves from.
type Snapshot struct {
	Stores  []engine.Store
	Regions []engine.Region
	Rules   []engine.Rule
	Methods []engine.ShippingMethod
	Blocked []engine.BlockedDate
	Orders  []engine.Order
}

// Memory is an in-memory engine.Datasource. It never mutates its snapshot,
// so a single instance is safe for concurrent requests.
type Memory struct {
	snap Snapshot
}

// NewMemory creates a memory datasource over a snapshot.
func NewMemory(snap Snapshot) *Memory {
	return &Memory{snap: snap}
}

// StoreByID implements engine.Datasource.
func (m *Memory) StoreByID(_ context.Context, id string) (*engine.Store, error) {
	for i := range m.snap.Stores {
		if m.snap.Stores[i].ID == id {
			store := m.snap.Stores[i]
			return &store, nil
		}
	}
	return nil, fmt.Errorf("store %s: %w", id, engine.ErrNotFound)
}

// RegionsForPostcode implements engine.Datasource.
func (m *Memory) RegionsForPostcode(_ context.Context, storeID string, pc engine.Postcode) ([]engine.Region, error) {
	var out []engine.Region
	for _, r := range m.snap.Regions {
		if r.StoreID != storeID {
			continue
		}
		if r.Default ||
			contains(r.PostcodeFilters, pc.Full) ||
			contains(r.SectorFilters, pc.Sector) ||
			contains(r.OutcodeFilters, pc.Outcode) ||
			contains(r.AreaFilters, pc.Area) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DefaultRegion implements engine.Datasource.
func (m *Memory) DefaultRegion(_ context.Context, storeID string) (*engine.Region, error) {
	for i := range m.snap.Regions {
		if m.snap.Regions[i].StoreID == storeID && m.snap.Regions[i].Default {
			region := m.snap.Regions[i]
			return &region, nil
		}
	}
	return nil, fmt.Errorf("default region for store %s: %w", storeID, engine.ErrNotFound)
}

// ActiveRules implements engine.Datasource.
func (m *Memory) ActiveRules(_ context.Context, storeID string, on time.Time) ([]engine.Rule, error) {
	var out []engine.Rule
	for _, r := range m.snap.Rules {
		if r.StoreID != storeID || !r.Enabled || r.Archived {
			continue
		}
		if on.Before(r.ActiveFrom) {
			continue
		}
		if r.ActiveTo != nil && !on.Before(*r.ActiveTo) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// MethodsForRegion implements engine.Datasource.
func (m *Memory) MethodsForRegion(_ context.Context, regionID string) ([]engine.ShippingMethod, error) {
	var out []engine.ShippingMethod
	for _, sm := range m.snap.Methods {
		if sm.Enabled && contains(sm.RegionIDs, regionID) {
			out = append(out, sm)
		}
	}
	return out, nil
}

// BlockedDates implements engine.Datasource.
func (m *Memory) BlockedDates(_ context.Context, storeID string, resourceIDs []string) ([]engine.BlockedDate, error) {
	var out []engine.BlockedDate
	for _, b := range m.snap.Blocked {
		if b.StoreID == storeID && contains(resourceIDs, b.ResourceID) {
			out = append(out, b)
		}
	}
	return out, nil
}

// DailyOrderCounts implements engine.Datasource.
func (m *Memory) DailyOrderCounts(_ context.Context, storeID string, from time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, o := range m.countable(storeID, from) {
		counts[engine.ISODate(o.NominatedDate)]++
	}
	return counts, nil
}

// MethodOrderCounts implements engine.Datasource.
func (m *Memory) MethodOrderCounts(_ context.Context, storeID string, from time.Time) (map[engine.MethodDateKey]int, error) {
	counts := make(map[engine.MethodDateKey]int)
	for _, o := range m.countable(storeID, from) {
		counts[engine.MethodDateKey{
			Date:        engine.ISODate(o.NominatedDate),
			ServiceCode: o.ServiceCode,
		}]++
	}
	return counts, nil
}

// ProductUnitCounts implements engine.Datasource.
func (m *Memory) ProductUnitCounts(_ context.Context, storeID string, from time.Time, productIDs []string) (map[engine.ProductDateKey]int, error) {
	counts := make(map[engine.ProductDateKey]int)
	for _, o := range m.countable(storeID, from) {
		for _, li := range o.LineItems {
			if !contains(productIDs, li.ProductID) {
				continue
			}
			counts[engine.ProductDateKey{
				Date:      engine.ISODate(o.NominatedDate),
				ProductID: li.ProductID,
			}] += li.Quantity
		}
	}
	return counts, nil
}

func (m *Memory) countable(storeID string, from time.Time) []engine.Order {
	fromKey := engine.ISODate(from)
	var out []engine.Order
	for _, o := range m.snap.Orders {
		if o.StoreID != storeID || !o.Processed() {
			continue
		}
		if engine.ISODate(o.NominatedDate) < fromKey {
			continue
		}
		out = append(out, o)
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
