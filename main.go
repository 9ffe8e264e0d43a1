package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dispatchly/nominated/internal/server"
	"github.com/dispatchly/nominated/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Optional .env for local development; environment wins in deployment.
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nominated",
	Short:   "Dispatchly Nominated Dates - delivery window and rate engine",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	ds, closeData, err := initDatasource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeData()

	logger.Info("Starting Dispatchly Nominated Dates",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Bool("memory_data", cfg.UseMemoryData),
	)

	metrics := telemetry.NewMetrics(nil)
	srv := server.New(server.Config{Port: cfg.Port}, ds, logger, tracer, metrics)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
