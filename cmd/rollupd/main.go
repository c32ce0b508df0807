package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/rollupd/internal/aggregation"
	corecfg "github.com/aevon-lab/rollupd/internal/core/config"
	"github.com/aevon-lab/rollupd/internal/core/storage"
	"github.com/aevon-lab/rollupd/internal/core/storage/badger"
	"github.com/aevon-lab/rollupd/internal/core/storage/memory"
	"github.com/aevon-lab/rollupd/internal/core/storage/postgres"
	"github.com/aevon-lab/rollupd/internal/engine"
	"github.com/aevon-lab/rollupd/internal/ingestion"
	"github.com/aevon-lab/rollupd/internal/ingestion/kafkasource"
	"github.com/aevon-lab/rollupd/internal/migrations"
	"github.com/aevon-lab/rollupd/internal/projection"
	"github.com/aevon-lab/rollupd/internal/server"
)

const shutdownFlushTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "rollupd.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 1. Load Configuration and definitions
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())
	slog.Info("Loaded config",
		"store", cfg.Store.Type,
		"definitions", cfg.Definitions.Len(),
		"buffer_size", cfg.Aggregation.BufferSize,
		"timezone", cfg.Aggregation.Timezone,
		"kafka", cfg.Kafka.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		slog.Error("rollupd stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func run(cfg *corecfg.Config, logger *slog.Logger) error {
	// 2. Initialize Storage
	store, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}

	// 3. Initialize Aggregation engines
	loc, err := cfg.Aggregation.Location()
	if err != nil {
		store.Close()
		return err
	}
	opts := engine.DefaultOptions()
	opts.BufferSize = cfg.Aggregation.BufferSize
	opts.DropEventsOlderThanBuffer = cfg.Aggregation.DropEventsOlderThanBuffer
	opts.Location = loc
	opts.Lanes = cfg.Aggregation.Lanes
	opts.BatchWorkers = cfg.Aggregation.BatchWorkers
	opts.PatternCacheSize = cfg.Aggregation.PatternCacheSize

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	manager, err := aggregation.NewManager(ctx, cfg.Definitions, store, opts)
	if err != nil {
		store.Close()
		return fmt.Errorf("initialize aggregations: %w", err)
	}

	// 4. Initialize HTTP APIs
	var health server.HealthChecker
	if p, ok := store.(storage.Pinger); ok {
		health = p
	}
	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), health, cfg.Store.Type, cfg.Server.Mode)
	ingestion.NewService(manager, cfg.Server.MaxBodySizeMB).RegisterRoutes(srv.Engine)
	projection.NewService(manager).RegisterRoutes(srv.Engine)

	// 5. Start Services
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Aggregation.PurgeEnabled {
		scheduler, err := newRetentionScheduler(cfg.Aggregation, store, manager)
		if err != nil {
			cancel()
			_ = g.Wait()
			return multierr.Combine(err, manager.Close(context.Background()))
		}
		g.Go(func() error { return scheduler.Start(gctx) })
	} else {
		slog.Info("Retention scheduler disabled by config")
	}

	if cfg.Kafka.Enabled {
		consumer, err := kafkasource.New(kafkasource.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			GroupID:  cfg.Kafka.GroupID,
			MinBytes: cfg.Kafka.MinBytes,
			MaxBytes: cfg.Kafka.MaxBytes,
		}, manager)
		if err != nil {
			cancel()
			_ = g.Wait()
			return multierr.Combine(err, manager.Close(context.Background()))
		}
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(gctx)
		})
	}

	// HTTP server, scheduler and consumer block until ctx is cancelled.
	runErr := g.Wait()

	// 6. Drain buffers into the store, then close it.
	slog.Info("Flushing aggregation buffers before shutdown...")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer closeCancel()
	return multierr.Combine(runErr, manager.Close(closeCtx))
}

func openStore(cfg corecfg.StoreConfig, logger *slog.Logger) (storage.BucketStore, error) {
	switch cfg.Type {
	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		adapter := postgres.NewBucketAdapter(db, cfg.MaxRetries)
		validateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := adapter.ValidateSchema(validateCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("bucket schema validation failed: %w", err)
		}
		return adapter, nil
	case "badger":
		s, err := badger.Open(badger.Config{
			Path:       cfg.Path,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger.With("component", "badger"),
			MaxRetries: cfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	default:
		slog.Warn("Using in-memory bucket store; aggregates are lost on restart")
		return memory.New(), nil
	}
}

func newRetentionScheduler(cfg corecfg.AggregationConfig, store storage.BucketStore, manager *aggregation.Manager) (*aggregation.RetentionScheduler, error) {
	purger, ok := store.(storage.Purger)
	if !ok {
		return nil, errors.New("purge_enabled: bucket store does not support retention")
	}
	interval, err := cfg.PurgeEvery()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.RetentionPolicy()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return aggregation.NewRetentionScheduler(interval, purger, manager, aggregation.RetentionPolicy(policy), loc), nil
}
