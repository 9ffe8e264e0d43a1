package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dispatchly/nominated/internal/config"
	"github.com/dispatchly/nominated/internal/storage"
	"github.com/dispatchly/nominated/internal/telemetry"
	"github.com/dispatchly/nominated/pkg/engine"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(service, level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(service, level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

// initDatasource wires the engine's persistence collaborator: Postgres in
// deployment, the seeded memory snapshot for local runs.
func initDatasource(cfg *config.Config, logger *otelzap.Logger) (engine.Datasource, func(), error) {
	if cfg.UseMemoryData {
		logger.Info("Using in-memory demo datasource")
		return storage.NewMemory(storage.DemoSnapshot()), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}
	return storage.NewPostgres(db), func() { db.Close() }, nil
}
