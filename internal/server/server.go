// Package server is the HTTP boundary for the window and rate computations.
// It owns request parsing, error-to-status mapping, and request timeouts;
// the engine below it stays free of transport concerns.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dispatchly/nominated/internal/telemetry"
	"github.com/dispatchly/nominated/pkg/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Server is the HTTP server for the nominated-dates service.
type Server struct {
	port    int
	agg     *engine.Aggregator
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance over a datasource.
func New(cfg Config, ds engine.Datasource, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) *Server {
	return &Server{
		port:    cfg.Port,
		agg:     engine.New(ds, logger, metrics, tracer),
		logger:  logger,
		metrics: metrics,
	}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/stores/{storeID}/window", s.handleWindow)
	r.Post("/stores/{storeID}/rates", s.handleRates)

	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type lineItemJSON struct {
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Grams     int     `json:"grams"`
}

type windowRequest struct {
	Postcode  string         `json:"postcode"`
	LineItems []lineItemJSON `json:"line_items"`
}

type dateJSON struct {
	Date       string   `json:"date"`
	Available  bool     `json:"available"`
	Source     string   `json:"source,omitempty"`
	BlockedIDs []string `json:"blocked_ids"`
}

type methodJSON struct {
	ID            string `json:"id"`
	ServiceCode   string `json:"service_code"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PromisedDate  string `json:"promised_date"`
	PhoneRequired bool   `json:"phone_required"`
}

type windowResponse struct {
	Dates   []dateJSON   `json:"dates"`
	Methods []methodJSON `json:"available_shipping_methods"`
}

type ratesRequest struct {
	Postcode      string         `json:"postcode"`
	NominatedDate string         `json:"nominated_date"`
	Currency      string         `json:"currency"`
	LineItems     []lineItemJSON `json:"line_items"`
}

type rateJSON struct {
	ServiceCode   string  `json:"service_code"`
	ServiceName   string  `json:"service_name"`
	Description   string  `json:"description,omitempty"`
	TotalPrice    float64 `json:"total_price"`
	Currency      string  `json:"currency"`
	PhoneRequired bool    `json:"phone_required"`
}

type ratesResponse struct {
	Rates []rateJSON `json:"rates"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Code: "invalid_body", Message: "invalid JSON: " + err.Error()},
		})
		return
	}

	pc, err := engine.ParsePostcode(req.Postcode)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	window, err := s.agg.Window(r.Context(), storeID, pc, toItems(req.LineItems), time.Now())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toWindowResponse(window))
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req ratesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Code: "invalid_body", Message: "invalid JSON: " + err.Error()},
		})
		return
	}

	pc, err := engine.ParsePostcode(req.Postcode)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	cart := engine.Cart{
		Postcode: pc,
		Currency: req.Currency,
		Items:    toItems(req.LineItems),
	}
	if req.NominatedDate != "" {
		nominated, err := time.Parse("2006-01-02", req.NominatedDate)
		if err != nil {
			s.writeError(r.Context(), w, engine.NewAggregationError(
				engine.CodeDateInvalid, "nominated date "+req.NominatedDate+" is not a valid date"))
			return
		}
		cart.NominatedDate = nominated
	}

	quotes, err := s.agg.Rates(r.Context(), storeID, cart, time.Now())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.metrics.RecordQuotes(storeID, len(quotes))
	s.writeJSON(w, http.StatusOK, toRatesResponse(quotes))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps engine errors to HTTP statuses: aggregation errors are
// expected 4xx outcomes, everything else is a 5xx collaborator failure.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var aggErr *engine.AggregationError
	if errors.As(err, &aggErr) {
		s.writeJSON(w, statusForCode(aggErr.Code), errorResponse{
			Error: errorBody{Code: aggErr.Code, Message: aggErr.Message},
		})
		return
	}
	s.logger.Ctx(ctx).Error("Aggregation failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: errorBody{Code: "internal", Message: "internal server error"},
	})
}

func statusForCode(code string) int {
	switch code {
	case engine.CodeStoreNotFound:
		return http.StatusNotFound
	case engine.CodePostcodeMissing, engine.CodePostcodeInvalid,
		engine.CodeDateMissing, engine.CodeDateInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func toItems(items []lineItemJSON) []engine.LineItem {
	out := make([]engine.LineItem, len(items))
	for i, li := range items {
		out[i] = engine.LineItem{
			ProductID: li.ProductID,
			VariantID: li.VariantID,
			SKU:       li.SKU,
			Quantity:  li.Quantity,
			Price:     li.Price,
			Grams:     li.Grams,
		}
	}
	return out
}

func toWindowResponse(window *engine.Window) windowResponse {
	resp := windowResponse{
		Dates:   make([]dateJSON, len(window.Dates)),
		Methods: make([]methodJSON, len(window.Methods)),
	}
	for i, d := range window.Dates {
		resp.Dates[i] = dateJSON{
			Date:       engine.ISODate(d.Date),
			Available:  d.Available,
			Source:     string(d.Source),
			BlockedIDs: d.BlockedIDs,
		}
	}
	for i, mp := range window.Methods {
		resp.Methods[i] = methodJSON{
			ID:            mp.MethodID,
			ServiceCode:   mp.Method.ServiceCode,
			Name:          mp.Method.Name,
			Description:   mp.Method.Description,
			PromisedDate:  engine.ISODate(mp.Promised),
			PhoneRequired: mp.Method.PhoneRequired,
		}
	}
	return resp
}

func toRatesResponse(quotes []engine.RateQuote) ratesResponse {
	resp := ratesResponse{Rates: make([]rateJSON, len(quotes))}
	for i, q := range quotes {
		resp.Rates[i] = rateJSON{
			ServiceCode:   q.ServiceCode,
			ServiceName:   q.Name,
			Description:   q.Description,
			TotalPrice:    q.Price.Amount,
			Currency:      q.Price.Currency,
			PhoneRequired: q.PhoneRequired,
		}
	}
	return resp
}
