package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/seantiz/prophet/internal/api"
	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/broker"
	"github.com/seantiz/prophet/internal/config"
	"github.com/seantiz/prophet/internal/registry"
	"github.com/seantiz/prophet/internal/router"
	"github.com/seantiz/prophet/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("prophet: starting",
		"listen_addr", cfg.ListenAddr,
		"broker", cfg.BrokerKind,
		"db_path", cfg.RegistryDBPath,
	)

	reg, err := registry.Open(cfg.RegistryDBPath, backend.IDs())
	if err != nil {
		log.Fatalf("failed to open registry: %v", err)
	}
	defer reg.Close()

	artifacts, err := registry.NewArtifactStore(cfg.ArtifactDir)
	if err != nil {
		log.Fatalf("failed to open artifact store: %v", err)
	}

	var b broker.Broker
	switch cfg.BrokerKind {
	case config.BrokerRedis:
		b = broker.NewRedis(broker.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			QueueKey:  cfg.QueueKey,
			ResultTTL: cfg.ResultTTL,
		})
	case config.BrokerMemory:
		b = broker.NewMemory(cfg.ResultTTL)
	default:
		log.Fatalf("unknown broker kind %q", cfg.BrokerKind)
	}

	backends := backend.All()
	predictor := router.New(reg, artifacts, backends)

	// The memory broker is process-local, so jobs must be executed by
	// embedded workers. With Redis, separate prophet-worker processes
	// consume the queue instead.
	if cfg.BrokerKind == config.BrokerMemory {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		for i := 0; i < cfg.Workers; i++ {
			go runEmbeddedWorker(ctx, b, backends, reg, artifacts, logger, cfg)
		}
		logger.Info("embedded workers started", "count", cfg.Workers)
	}

	srv := api.NewServer(cfg.ListenAddr, b, reg, predictor, backends, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runEmbeddedWorker runs workers back to back, replacing each one when it
// recycles after its job budget.
func runEmbeddedWorker(ctx context.Context, b broker.Broker, backends map[string]backend.Backend, reg *registry.Registry, artifacts *registry.ArtifactStore, logger *slog.Logger, cfg config.Config) {
	for ctx.Err() == nil {
		w := worker.New(b, backends, reg, artifacts, logger, worker.Config{
			MaxJobsPerRun:  cfg.MaxJobsPerRun,
			ReportInterval: cfg.ReportInterval,
			DequeueTimeout: cfg.DequeueTimeout,
		})
		if err := w.Run(ctx); err != nil && !errors.Is(err, worker.ErrRecycled) {
			logger.Error("worker stopped", "error", err)
			return
		}
	}
}
