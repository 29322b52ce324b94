package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/broker"
	"github.com/seantiz/prophet/internal/config"
	"github.com/seantiz/prophet/internal/registry"
	"github.com/seantiz/prophet/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if cfg.BrokerKind != config.BrokerRedis {
		log.Fatalf("prophet-worker requires the redis broker, got %q", cfg.BrokerKind)
	}

	logger.Info("prophet-worker: starting",
		"redis_addr", cfg.RedisAddr,
		"queue", cfg.QueueKey,
		"max_jobs_per_run", cfg.MaxJobsPerRun,
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

	b := broker.NewRedis(broker.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		QueueKey:  cfg.QueueKey,
		ResultTTL: cfg.ResultTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	w := worker.New(b, backend.All(), reg, artifacts, logger, worker.Config{
		MaxJobsPerRun:  cfg.MaxJobsPerRun,
		ReportInterval: cfg.ReportInterval,
		DequeueTimeout: cfg.DequeueTimeout,
	})

	err = w.Run(ctx)
	switch {
	case errors.Is(err, worker.ErrRecycled):
		// Exit cleanly so the supervisor restarts a fresh process.
		logger.Info("worker recycled after job budget")
	case err != nil && !errors.Is(err, context.Canceled):
		log.Fatalf("worker error: %v", err)
	default:
		logger.Info("worker stopped")
	}
}
