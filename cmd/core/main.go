// Package main runs the waymark sync core as a standalone process: it
// opens the local store, starts the location and mutation sync loops and
// keeps the tile cache within budget until terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/waymarkapp/core/internal/config"
	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/events"
	"github.com/waymarkapp/core/internal/logging"
	"github.com/waymarkapp/core/internal/sync/mutation"
	"github.com/waymarkapp/core/internal/sync/ratelimit"
	"github.com/waymarkapp/core/internal/sync/scheduler"
	"github.com/waymarkapp/core/internal/telemetry"
	"github.com/waymarkapp/core/internal/tiles"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(os.Stdout, logging.LevelInfo)
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.ParseLevel(cfg.Logging.Level))
	logging.Info("Waymark core starting", map[string]interface{}{
		"version":  Version,
		"data_dir": cfg.DataDir,
	})

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		logging.Error("Failed to run migrations", err, nil)
		os.Exit(1)
	}

	repo := db.NewRepository(database.DB)
	if err := cfg.Seed(repo); err != nil {
		logging.Error("Failed to seed settings", err, nil)
		os.Exit(1)
	}

	// A crashed cycle can leave locations marked in flight.
	if n, err := repo.ResetSyncingLocations(); err != nil {
		logging.Error("Failed to recover in-flight locations", err, nil)
		os.Exit(1)
	} else if n > 0 {
		logging.Info("Recovered in-flight locations", map[string]interface{}{"count": n})
	}

	bus := events.NewBus()
	stats := telemetry.NewCollector(bus)
	defer stats.Close()

	transport := newAPITransport(repo)
	limiter := ratelimit.New(cfg.Sync.MinInterval, cfg.Sync.HourlyCap)

	locSync := scheduler.New(repo, transport, limiter, bus, &scheduler.Config{
		TickInterval:  cfg.Sync.TickInterval,
		PurgeInterval: cfg.Sync.PurgeInterval,
		BatchSize:     cfg.Sync.BatchSize,
	})
	mutSync := mutation.NewEngine(repo, transport, bus, &mutation.Config{
		TickInterval: cfg.Sync.TickInterval,
		BatchSize:    cfg.Sync.BatchSize,
		MaxAttempts:  cfg.Sync.MaxAttempts,
	})

	tileCache := tiles.NewCache(repo, cfg.TileCache.BudgetBytes)
	if _, err := tileCache.EnforceBudget(); err != nil {
		logging.Error("Failed to trim tile cache", err, nil)
	}

	ctx := context.Background()
	locSync.Start(ctx)
	mutSync.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})

	locSync.Stop()
	mutSync.Stop()

	final := stats.Stats()
	logging.Info("Session totals", map[string]interface{}{
		"locations_synced": final.LocationsSynced,
		"sync_batches":     final.SyncBatches,
		"sync_failures":    final.SyncFailures,
	})
}
