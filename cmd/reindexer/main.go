package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IskanderBlue/CodeChronicle/internal/app"
	"github.com/IskanderBlue/CodeChronicle/internal/quota"
	"github.com/IskanderBlue/CodeChronicle/internal/reload"
	"github.com/IskanderBlue/CodeChronicle/pkg/config"
	"github.com/IskanderBlue/CodeChronicle/pkg/health"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
	"github.com/IskanderBlue/CodeChronicle/pkg/logger"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting reindexer", "catalog_source", cfg.Catalog.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The reindexer only needs a quota store to purge old counters.
	a, err := app.New(ctx, cfg, app.Options{Quota: cfg.Quota.Backend != "memory"})
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	checker := health.NewChecker()
	checker.Register("frequency_index", health.CountCheck("content sets", 1, a.Builder.Index().Len))
	if a.DB != nil {
		checker.Register("postgres", health.PingCheck(a.DB))
	}
	if a.Redis != nil {
		checker.Register("redis", health.PingCheck(a.Redis))
	}
	port := cfg.Server.HealthPort
	if cfg.Metrics.Enabled {
		port = cfg.Metrics.Port
	}
	shutdown := metrics.StartServer(port, a.Registry, map[string]http.Handler{
		"GET /health/live":  checker.LiveHandler(),
		"GET /health/ready": checker.ReadyHandler(),
	})

	if purger, ok := a.QuotaStore.(quota.Purger); ok {
		quota.StartPurgeLoop(ctx, purger, time.Hour, 2)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusReload,
		reload.HandleMessage(a.Source(), a.Corpus, a.Builder))
	worker := reload.NewWorker(consumer)

	slog.Info("reindexer ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.CorpusReload,
		"group", cfg.Kafka.ConsumerGroup,
		"content_sets", a.Builder.Index().Len(),
	)
	if err := worker.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", "error", err)
	}
	slog.Info("reindexer stopped")
}
