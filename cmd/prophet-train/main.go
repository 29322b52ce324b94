// Command prophet-train trains one backend (or all of them) synchronously
// in-process and publishes the artifacts, without going through the broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/config"
	"github.com/seantiz/prophet/internal/model"
	"github.com/seantiz/prophet/internal/registry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var (
		backendID = flag.String("backend", "all", "backend to train (linear, forest, attention, or all)")
		epochs    = flag.Int("epochs", 0, "training epochs (0 uses the default)")
		lr        = flag.Float64("lr", 0, "learning rate (0 uses the default)")
		dbPath    = flag.String("db", cfg.RegistryDBPath, "registry database path")
		dir       = flag.String("artifacts", cfg.ArtifactDir, "artifact directory")
	)
	flag.Parse()

	backends := backend.All()

	var ids []string
	if *backendID == "all" {
		ids = backend.IDs()
	} else {
		if !backend.IsKnown(*backendID) {
			log.Fatalf("unknown backend %q (known: %v)", *backendID, backend.IDs())
		}
		ids = []string{*backendID}
	}
	sort.Strings(ids)

	reg, err := registry.Open(*dbPath, backend.IDs())
	if err != nil {
		log.Fatalf("failed to open registry: %v", err)
	}
	defer reg.Close()

	artifacts, err := registry.NewArtifactStore(*dir)
	if err != nil {
		log.Fatalf("failed to open artifact store: %v", err)
	}

	trainCfg := model.TrainingConfig{Epochs: *epochs, LearningRate: *lr}
	trainCfg.ApplyDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, id := range ids {
		if err := trainOne(ctx, backends[id], reg, artifacts, trainCfg); err != nil {
			log.Fatalf("train %s: %v", id, err)
		}
	}
}

func trainOne(ctx context.Context, b backend.Backend, reg *registry.Registry, artifacts *registry.ArtifactStore, cfg model.TrainingConfig) error {
	fmt.Printf("training %s (epochs=%d lr=%g)\n", b.Name(), cfg.Epochs, cfg.LearningRate)

	lastPercent := -10
	artifact, metrics, err := b.Train(ctx, cfg, func(current, total int, message string) {
		percent := current * 100 / total
		if percent/10 > lastPercent/10 {
			fmt.Fprintf(os.Stderr, "  %3d%% %s\n", percent, message)
		}
		lastPercent = percent
	})
	if err != nil {
		return err
	}

	path, err := artifacts.Save(b.Name(), artifact)
	if err != nil {
		return err
	}
	if err := reg.Publish(ctx, b.Name(), path, metrics); err != nil {
		return err
	}

	fmt.Printf("%s: test R²=%.4f test RMSE=%.4f artifact=%s\n",
		b.Name(), metrics.TestR2, metrics.TestRMSE, path)
	return nil
}
