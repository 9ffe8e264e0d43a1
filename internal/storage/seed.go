package storage

import (
	"time"

	"github.com/dispatchly/nominated/pkg/engine"
)

// DemoSnapshot builds a small single-store dataset for local serving with
// the memory datasource. One default region covers every postcode; a London
// region carries a next-day express method alongside the standard one.
func DemoSnapshot() Snapshot {
	allWeek := engine.WeekFlags{true, true, true, true, true, true, true}
	dispatchWeekdays := engine.WeekSchedule{}
	for d := time.Monday; d <= time.Friday; d++ {
		dispatchWeekdays[int(d)] = engine.DaySchedule{Enabled: true, Cutoff: "14:00"}
	}

	return Snapshot{
		Stores: []engine.Store{{
			ID:        "6f1f0f37-16a5-4a3b-9b34-0c1c49f4a6de",
			Name:      "Demo Store",
			Window:    28,
			MaxOrders: 0,
			Timezone:  "Europe/London",
		}},
		Regions: []engine.Region{
			{
				ID:      "region-default",
				StoreID: "6f1f0f37-16a5-4a3b-9b34-0c1c49f4a6de",
				Name:    "Nationwide",
				Default: true,
			},
			{
				ID:          "region-london",
				StoreID:     "6f1f0f37-16a5-4a3b-9b34-0c1c49f4a6de",
				Name:        "London",
				AreaFilters: []string{"E", "EC", "N", "NW", "SE", "SW", "W", "WC"},
			},
		},
		Methods: []engine.ShippingMethod{
			{
				ID:           "method-standard",
				StoreID:      "6f1f0f37-16a5-4a3b-9b34-0c1c49f4a6de",
				RegionIDs:    []string{"region-default", "region-london"},
				Name:         "Standard Delivery",
				ServiceCode:  "STANDARD",
				Enabled:      true,
				Price:        engine.Money{Amount: 4.95, Currency: "GBP"},
				PromiseStart: 2,
				PromiseEnd:   5,
				DeliveryDays: allWeek,
				DispatchDays: dispatchWeekdays,
				Bands: []engine.Band{{
					ID:       "band-free-over-50",
					Priority: 1,
					Requirement: engine.BandRequirement{
						Type:      engine.ReqCartCost,
						Condition: engine.CondGreaterThan,
						Min:       50,
					},
					Cost: engine.BandCost{Type: engine.CostFixed, Amount: 0},
				}},
			},
			{
				ID:           "method-express",
				StoreID:      "6f1f0f37-16a5-4a3b-9b34-0c1c49f4a6de",
				RegionIDs:    []string{"region-london"},
				Name:         "Next Day Delivery",
				ServiceCode:  "EXPRESS",
				Enabled:      true,
				Price:        engine.Money{Amount: 9.95, Currency: "GBP"},
				PromiseStart: 1,
				PromiseEnd:   1,
				DeliveryDays: allWeek,
				DispatchDays: dispatchWeekdays,
			},
		},
	}
}
