package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/backend"
	httpadapter "github.com/couchcryptid/fishtank-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/fishtank-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fishtank-etl/internal/config"
	"github.com/couchcryptid/fishtank-etl/internal/dimension"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
	"github.com/couchcryptid/fishtank-etl/internal/pipeline"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open warehouse", "backend", cfg.WarehouseBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	dims := dimension.NewManager(dimension.NewKnownKeys(cfg.KnownKeyCacheSize), logger, metrics)
	loader := warehouse.NewLoader(store, dims, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	var opts []pipeline.Option
	var deadLetter *kafkaadapter.DeadLetterWriter
	if cfg.DeadLetterTopic != "" {
		deadLetter = kafkaadapter.NewDeadLetterWriter(cfg, logger)
		opts = append(opts, pipeline.WithDeadLetter(deadLetter))
		logger.Info("dead-letter topic enabled", "topic", cfg.DeadLetterTopic)
	}

	p := pipeline.New(reader, pipeline.NewTransformer(),
		pipeline.NewWarehouseLoader(loader, cfg.StreamTable),
		logger, metrics, cfg.BatchSize, opts...)

	ready := (&httpadapter.Readiness{}).Add("pipeline", p).Add("warehouse", store)
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if deadLetter != nil {
		if err := deadLetter.Close(); err != nil {
			logger.Error("kafka dead-letter writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
