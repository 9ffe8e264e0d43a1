package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dispatchly/nominated/pkg/engine"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres is the production engine.Datasource. Read-only: the engine never
// writes, and this type exposes no write path.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres datasource over an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// StoreByID implements engine.Datasource.
func (r *Postgres) StoreByID(ctx context.Context, id string) (*engine.Store, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("store %s: %w", id, engine.ErrNotFound)
	}
	var s engine.Store
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, window_days, max_orders, timezone
		FROM stores WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.Window, &s.MaxOrders, &s.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select store: %w", err)
	}
	return &s, nil
}

// RegionsForPostcode implements engine.Datasource.
func (r *Postgres) RegionsForPostcode(ctx context.Context, storeID string, pc engine.Postcode) ([]engine.Region, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, name, is_default,
		       postcode_filters, sector_filters, outcode_filters, area_filters
		FROM regions
		WHERE store_id=$1
		  AND (is_default
		       OR $2 = ANY(postcode_filters)
		       OR $3 = ANY(sector_filters)
		       OR $4 = ANY(outcode_filters)
		       OR $5 = ANY(area_filters))
		ORDER BY created_at`,
		storeID, pc.Full, pc.Sector, pc.Outcode, pc.Area)
	if err != nil {
		return nil, fmt.Errorf("select regions: %w", err)
	}
	defer rows.Close()

	var out []engine.Region
	for rows.Next() {
		region, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, region)
	}
	return out, rows.Err()
}

// DefaultRegion implements engine.Datasource.
func (r *Postgres) DefaultRegion(ctx context.Context, storeID string) (*engine.Region, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, name, is_default,
		       postcode_filters, sector_filters, outcode_filters, area_filters
		FROM regions WHERE store_id=$1 AND is_default LIMIT 1`, storeID)
	if err != nil {
		return nil, fmt.Errorf("select default region: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("select default region: %w", err)
		}
		return nil, fmt.Errorf("default region for store %s: %w", storeID, engine.ErrNotFound)
	}
	region, err := scanRegion(rows)
	if err != nil {
		return nil, err
	}
	return &region, rows.Err()
}

// ActiveRules implements engine.Datasource. The active window filter
// matches the evaluator's convention: start inclusive, end exclusive.
func (r *Postgres) ActiveRules(ctx context.Context, storeID string, on time.Time) ([]engine.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, name, enabled, archived, active_from, active_to,
		       region_condition, product_condition, offset_days, production_limits
		FROM rules
		WHERE store_id=$1 AND enabled AND NOT archived
		  AND active_from <= $2
		  AND (active_to IS NULL OR active_to > $2)
		ORDER BY created_at`,
		storeID, on)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	defer rows.Close()

	var out []engine.Rule
	for rows.Next() {
		var (
			rule       engine.Rule
			activeTo   sql.NullTime
			regionJSON []byte
			prodJSON   []byte
			limitsJSON []byte
		)
		if err := rows.Scan(&rule.ID, &rule.StoreID, &rule.Name, &rule.Enabled, &rule.Archived,
			&rule.ActiveFrom, &activeTo, &regionJSON, &prodJSON, &rule.OffsetDays, &limitsJSON); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if activeTo.Valid {
			to := activeTo.Time
			rule.ActiveTo = &to
		}
		if rule.Region, err = decodeRegionCondition(regionJSON); err != nil {
			return nil, fmt.Errorf("rule %s region condition: %w", rule.ID, err)
		}
		if rule.Product, err = decodeProductCondition(prodJSON); err != nil {
			return nil, fmt.Errorf("rule %s product condition: %w", rule.ID, err)
		}
		if rule.Production, err = decodeProductionLimits(limitsJSON); err != nil {
			return nil, fmt.Errorf("rule %s production limits: %w", rule.ID, err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// MethodsForRegion implements engine.Datasource.
func (r *Postgres) MethodsForRegion(ctx context.Context, regionID string) ([]engine.ShippingMethod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.store_id, m.name, m.description, m.service_code, m.enabled,
		       m.price, m.currency, m.promise_start, m.promise_end,
		       m.delivery_days, m.dispatch_days, m.only_promise_delivery_days,
		       m.daily_order_limit, m.conditions, m.phone_required
		FROM shipping_methods m
		JOIN shipping_method_regions mr ON mr.shipping_method_id = m.id
		WHERE mr.region_id = $1 AND m.enabled
		ORDER BY m.name`,
		regionID)
	if err != nil {
		return nil, fmt.Errorf("select shipping methods: %w", err)
	}
	defer rows.Close()

	var (
		out []engine.ShippingMethod
		ids []string
	)
	for rows.Next() {
		var (
			m            engine.ShippingMethod
			deliveryJSON []byte
			dispatchJSON []byte
			condJSON     []byte
		)
		if err := rows.Scan(&m.ID, &m.StoreID, &m.Name, &m.Description, &m.ServiceCode, &m.Enabled,
			&m.Price.Amount, &m.Price.Currency, &m.PromiseStart, &m.PromiseEnd,
			&deliveryJSON, &dispatchJSON, &m.OnlyPromiseDeliveryDays,
			&m.DailyOrderLimit, &condJSON, &m.PhoneRequired); err != nil {
			return nil, fmt.Errorf("scan shipping method: %w", err)
		}
		if m.DeliveryDays, err = decodeWeekFlags(deliveryJSON); err != nil {
			return nil, fmt.Errorf("method %s delivery days: %w", m.ID, err)
		}
		if m.DispatchDays, err = decodeWeekSchedule(dispatchJSON); err != nil {
			return nil, fmt.Errorf("method %s dispatch days: %w", m.ID, err)
		}
		if m.Conditions, err = decodeMethodConditions(condJSON); err != nil {
			return nil, fmt.Errorf("method %s conditions: %w", m.ID, err)
		}
		m.RegionIDs = []string{regionID}
		out = append(out, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachBands(ctx, out, ids); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Postgres) attachBands(ctx context.Context, methods []engine.ShippingMethod, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shipping_method_id, priority, requirement, cost
		FROM shipping_method_bands
		WHERE shipping_method_id = ANY($1)
		ORDER BY priority`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select bands: %w", err)
	}
	defer rows.Close()

	byMethod := make(map[string][]engine.Band)
	for rows.Next() {
		var (
			band     engine.Band
			methodID string
			reqJSON  []byte
			costJSON []byte
		)
		if err := rows.Scan(&band.ID, &methodID, &band.Priority, &reqJSON, &costJSON); err != nil {
			return fmt.Errorf("scan band: %w", err)
		}
		if band.Requirement, err = decodeBandRequirement(reqJSON); err != nil {
			return fmt.Errorf("band %s requirement: %w", band.ID, err)
		}
		if band.Cost, err = decodeBandCost(costJSON); err != nil {
			return fmt.Errorf("band %s cost: %w", band.ID, err)
		}
		byMethod[methodID] = append(byMethod[methodID], band)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range methods {
		methods[i].Bands = byMethod[methods[i].ID]
	}
	return nil
}

// BlockedDates implements engine.Datasource.
func (r *Postgres) BlockedDates(ctx context.Context, storeID string, resourceIDs []string) ([]engine.BlockedDate, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, resource_id, start_date, end_date
		FROM blocked_dates
		WHERE store_id=$1 AND resource_id = ANY($2)`,
		storeID, pq.Array(resourceIDs))
	if err != nil {
		return nil, fmt.Errorf("select blocked dates: %w", err)
	}
	defer rows.Close()

	var out []engine.BlockedDate
	for rows.Next() {
		var b engine.BlockedDate
		if err := rows.Scan(&b.ID, &b.StoreID, &b.ResourceID, &b.Start, &b.End); err != nil {
			return nil, fmt.Errorf("scan blocked date: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DailyOrderCounts implements engine.Datasource.
func (r *Postgres) DailyOrderCounts(ctx context.Context, storeID string, from time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(nominated_date, 'YYYY-MM-DD'), COUNT(*)
		FROM orders
		WHERE store_id=$1 AND internal_status='processed'
		  AND NOT externally_shipped AND nominated_date >= $2
		GROUP BY 1`,
		storeID, from)
	if err != nil {
		return nil, fmt.Errorf("count orders by date: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			date string
			n    int
		)
		if err := rows.Scan(&date, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts[date] = n
	}
	return counts, rows.Err()
}

// MethodOrderCounts implements engine.Datasource.
func (r *Postgres) MethodOrderCounts(ctx context.Context, storeID string, from time.Time) (map[engine.MethodDateKey]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(nominated_date, 'YYYY-MM-DD'), shipping_method, COUNT(*)
		FROM orders
		WHERE store_id=$1 AND internal_status='processed'
		  AND NOT externally_shipped AND nominated_date >= $2
		GROUP BY 1, 2`,
		storeID, from)
	if err != nil {
		return nil, fmt.Errorf("count orders by date and method: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.MethodDateKey]int)
	for rows.Next() {
		var (
			key engine.MethodDateKey
			n   int
		)
		if err := rows.Scan(&key.Date, &key.ServiceCode, &n); err != nil {
			return nil, fmt.Errorf("scan method order count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// ProductUnitCounts implements engine.Datasource.
func (r *Postgres) ProductUnitCounts(ctx context.Context, storeID string, from time.Time, productIDs []string) (map[engine.ProductDateKey]int, error) {
	if len(productIDs) == 0 {
		return map[engine.ProductDateKey]int{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(o.nominated_date, 'YYYY-MM-DD'), li.product_id, COALESCE(SUM(li.quantity), 0)
		FROM orders o
		JOIN order_line_items li ON li.order_id = o.id
		WHERE o.store_id=$1 AND o.internal_status='processed'
		  AND NOT o.externally_shipped AND o.nominated_date >= $2
		  AND li.product_id = ANY($3)
		GROUP BY 1, 2`,
		storeID, from, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("sum units by date and product: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.ProductDateKey]int)
	for rows.Next() {
		var (
			key engine.ProductDateKey
			n   int
		)
		if err := rows.Scan(&key.Date, &key.ProductID, &n); err != nil {
			return nil, fmt.Errorf("scan product unit count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

type regionScanner interface {
	Scan(dest ...interface{}) error
}

func scanRegion(row regionScanner) (engine.Region, error) {
	var region engine.Region
	err := row.Scan(&region.ID, &region.StoreID, &region.Name, &region.Default,
		pq.Array(&region.PostcodeFilters), pq.Array(&region.SectorFilters),
		pq.Array(&region.OutcodeFilters), pq.Array(&region.AreaFilters))
	if err != nil {
		return engine.Region{}, fmt.Errorf("scan region: %w", err)
	}
	return region, nil
}

type jsonCondition struct {
	Enabled bool     `json:"enabled"`
	Type    string   `json:"type"`
	IDs     []string `json:"ids"`
}

func decodeRegionCondition(data []byte) (engine.RegionCondition, error) {
	var c jsonCondition
	if err := unmarshalOptional(data, &c); err != nil {
		return engine.RegionCondition{}, err
	}
	return engine.RegionCondition{
		Enabled:   c.Enabled,
		Type:      engine.ConditionType(c.Type),
		RegionIDs: c.IDs,
	}, nil
}

func decodeProductCondition(data []byte) (engine.ProductCondition, error) {
	var c jsonCondition
	if err := unmarshalOptional(data, &c); err != nil {
		return engine.ProductCondition{}, err
	}
	return engine.ProductCondition{
		Enabled:    c.Enabled,
		Type:       engine.ConditionType(c.Type),
		ProductIDs: c.IDs,
	}, nil
}

func decodeProductionLimits(data []byte) ([]engine.ProductionLimit, error) {
	var limits []struct {
		ProductIDs     []string `json:"product_ids"`
		MaxUnitsPerDay int      `json:"max_units_per_day"`
	}
	if err := unmarshalOptional(data, &limits); err != nil {
		return nil, err
	}
	out := make([]engine.ProductionLimit, len(limits))
	for i, l := range limits {
		out[i] = engine.ProductionLimit{ProductIDs: l.ProductIDs, MaxUnitsPerDay: l.MaxUnitsPerDay}
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func decodeWeekFlags(data []byte) (engine.WeekFlags, error) {
	var days map[string]bool
	if err := unmarshalOptional(data, &days); err != nil {
		return engine.WeekFlags{}, err
	}
	var flags engine.WeekFlags
	for name, enabled := range days {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return engine.WeekFlags{}, fmt.Errorf("unknown weekday %q", name)
		}
		flags[int(day)] = enabled
	}
	return flags, nil
}

func decodeWeekSchedule(data []byte) (engine.WeekSchedule, error) {
	var days map[string]struct {
		Enabled bool   `json:"enabled"`
		Cutoff  string `json:"cutoff"`
	}
	if err := unmarshalOptional(data, &days); err != nil {
		return engine.WeekSchedule{}, err
	}
	var sched engine.WeekSchedule
	for name, entry := range days {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return engine.WeekSchedule{}, fmt.Errorf("unknown weekday %q", name)
		}
		sched[int(day)] = engine.DaySchedule{Enabled: entry.Enabled, Cutoff: entry.Cutoff}
	}
	return sched, nil
}

func decodeMethodConditions(data []byte) ([]engine.MethodCondition, error) {
	var conds []struct {
		Type     string   `json:"type"`
		Operator string   `json:"operator"`
		Values   []string `json:"values"`
		Min      float64  `json:"min"`
		Max      float64  `json:"max"`
	}
	if err := unmarshalOptional(data, &conds); err != nil {
		return nil, err
	}
	out := make([]engine.MethodCondition, len(conds))
	for i, c := range conds {
		out[i] = engine.MethodCondition{
			Type:     engine.MethodConditionType(c.Type),
			Operator: engine.RequirementCondition(c.Operator),
			Values:   c.Values,
			Min:      c.Min,
			Max:      c.Max,
		}
	}
	return out, nil
}

func decodeBandRequirement(data []byte) (engine.BandRequirement, error) {
	var req struct {
		Type       string   `json:"type"`
		Condition  string   `json:"condition"`
		Min        float64  `json:"min"`
		Max        float64  `json:"max"`
		VariantIDs []string `json:"variant_ids"`
		Start      string   `json:"start"`
		End        string   `json:"end"`
	}
	if err := unmarshalOptional(data, &req); err != nil {
		return engine.BandRequirement{}, err
	}
	return engine.BandRequirement{
		Type:       engine.RequirementType(req.Type),
		Condition:  engine.RequirementCondition(req.Condition),
		Min:        req.Min,
		Max:        req.Max,
		VariantIDs: req.VariantIDs,
		Start:      req.Start,
		End:        req.End,
	}, nil
}

func decodeBandCost(data []byte) (engine.BandCost, error) {
	var cost struct {
		Type   string  `json:"type"`
		Amount float64 `json:"amount"`
	}
	if err := unmarshalOptional(data, &cost); err != nil {
		return engine.BandCost{}, err
	}
	return engine.BandCost{Type: engine.CostType(cost.Type), Amount: cost.Amount}, nil
}

func unmarshalOptional(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
