package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dispatchly/nominated/internal/server"
	"github.com/dispatchly/nominated/internal/storage"
	"github.com/dispatchly/nominated/internal/telemetry"
	"github.com/dispatchly/nominated/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const storeID = "store-1"

// testSnapshot uses dispatch schedules with no cutoff so results do not
// depend on the wall-clock time the test happens to run at.
func testSnapshot() storage.Snapshot {
	allWeek := engine.WeekFlags{true, true, true, true, true, true, true}
	dispatchAll := engine.WeekSchedule{}
	for i := range dispatchAll {
		dispatchAll[i] = engine.DaySchedule{Enabled: true}
	}

	return storage.Snapshot{
		Stores: []engine.Store{{
			ID:       storeID,
			Name:     "Beeswax Bakery",
			Window:   14,
			Timezone: "UTC",
		}},
		Regions: []engine.Region{
			{ID: "reg-default", StoreID: storeID, Name: "Nationwide", Default: true},
		},
		Methods: []engine.ShippingMethod{{
			ID:           "method-standard",
			StoreID:      storeID,
			RegionIDs:    []string{"reg-default"},
			Name:         "Standard Delivery",
			ServiceCode:  "STANDARD",
			Enabled:      true,
			Price:        engine.Money{Amount: 4.95, Currency: "GBP"},
			PromiseStart: 2,
			PromiseEnd:   5,
			DeliveryDays: allWeek,
			DispatchDays: dispatchAll,
			Bands: []engine.Band{{
				ID:       "free-over-50",
				Priority: 1,
				Requirement: engine.BandRequirement{
					Type:      engine.ReqCartCost,
					Condition: engine.CondGreaterThan,
					Min:       50,
				},
				Cost: engine.BandCost{Type: engine.CostFixed, Amount: 0},
			}},
		}},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	ds := storage.NewMemory(testSnapshot())

	return server.New(server.Config{Port: 8080}, ds, logger, nil, metrics).Router()
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error.Code
}

func TestServer_Health(t *testing.T) {
	handler := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	handler := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Window(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/"+storeID+"/window", `{"postcode": "SW1A 1AA"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Dates []struct {
			Date      string `json:"date"`
			Available bool   `json:"available"`
			Source    string `json:"source"`
		} `json:"dates"`
		Methods []struct {
			ServiceCode  string `json:"service_code"`
			PromisedDate string `json:"promised_date"`
		} `json:"available_shipping_methods"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp.Dates, 14)
	require.Len(t, resp.Methods, 1)
	assert.Equal(t, "STANDARD", resp.Methods[0].ServiceCode)

	// Two lead days: today and tomorrow sit below the promise floor.
	assert.False(t, resp.Dates[0].Available)
	assert.Equal(t, "earliest_promise", resp.Dates[0].Source)
	assert.False(t, resp.Dates[1].Available)
	assert.True(t, resp.Dates[2].Available)
	assert.Equal(t, resp.Methods[0].PromisedDate, resp.Dates[2].Date)
}

func TestServer_Window_InvalidJSON(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/"+storeID+"/window", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Window_BadPostcode(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/"+storeID+"/window", `{"postcode": "BANANA"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, engine.CodePostcodeInvalid, decodeError(t, rec))
}

func TestServer_Window_UnknownStore(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/no-such-store/window", `{"postcode": "SW1A 1AA"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, engine.CodeStoreNotFound, decodeError(t, rec))
}

func TestServer_Rates(t *testing.T) {
	handler := newTestRouter(t)
	nominated := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")

	body := fmt.Sprintf(`{
		"postcode": "SW1A 1AA",
		"nominated_date": %q,
		"currency": "GBP",
		"line_items": [{"product_id": "p1", "quantity": 1, "price": 20}]
	}`, nominated)
	rec := postJSON(t, handler, "/stores/"+storeID+"/rates", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rates []struct {
			ServiceCode string  `json:"service_code"`
			ServiceName string  `json:"service_name"`
			TotalPrice  float64 `json:"total_price"`
			Currency    string  `json:"currency"`
		} `json:"rates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp.Rates, 1)
	assert.Equal(t, "STANDARD", resp.Rates[0].ServiceCode)
	assert.Equal(t, "Standard Delivery", resp.Rates[0].ServiceName)
	assert.Equal(t, 4.95, resp.Rates[0].TotalPrice)
	assert.Equal(t, "GBP", resp.Rates[0].Currency)
}

func TestServer_Rates_BandPricing(t *testing.T) {
	handler := newTestRouter(t)
	nominated := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")

	body := fmt.Sprintf(`{
		"postcode": "SW1A 1AA",
		"nominated_date": %q,
		"currency": "GBP",
		"line_items": [{"product_id": "p1", "quantity": 3, "price": 20}]
	}`, nominated)
	rec := postJSON(t, handler, "/stores/"+storeID+"/rates", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rates []struct {
			TotalPrice float64 `json:"total_price"`
		} `json:"rates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rates, 1)
	assert.Equal(t, 0.0, resp.Rates[0].TotalPrice, "60 in the cart crosses the free-shipping band")
}

func TestServer_Rates_MissingDate(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/"+storeID+"/rates", `{"postcode": "SW1A 1AA"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, engine.CodeDateMissing, decodeError(t, rec))
}

func TestServer_Rates_MalformedDate(t *testing.T) {
	handler := newTestRouter(t)

	rec := postJSON(t, handler, "/stores/"+storeID+"/rates",
		`{"postcode": "SW1A 1AA", "nominated_date": "15/04/2026"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, engine.CodeDateInvalid, decodeError(t, rec))
}

func TestServer_Rates_UnavailableDate(t *testing.T) {
	handler := newTestRouter(t)

	// Tomorrow is inside the window but below the two-day promise floor.
	nominated := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	rec := postJSON(t, handler, "/stores/"+storeID+"/rates",
		fmt.Sprintf(`{"postcode": "SW1A 1AA", "nominated_date": %q}`, nominated))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, engine.CodeDateUnavailable, decodeError(t, rec))
}

func TestServer_Rates_PastDate(t *testing.T) {
	handler := newTestRouter(t)

	nominated := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	rec := postJSON(t, handler, "/stores/"+storeID+"/rates",
		fmt.Sprintf(`{"postcode": "SW1A 1AA", "nominated_date": %q}`, nominated))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
