package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/analytics"
	"jobmate/listing-service/internal/clock"
	"jobmate/listing-service/internal/config"
	"jobmate/listing-service/internal/db"
	"jobmate/listing-service/internal/events"
	"jobmate/listing-service/internal/grpcserver"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/logging"
	"jobmate/listing-service/internal/telemetry"
)

// app is the wired service: connections, stores and the two core
// components.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock

	pool *pgxpool.Pool
	rdb  *redis.Client

	publisher  events.Publisher
	engine     *lifecycle.Engine
	aggregator *analytics.Aggregator
	checks     []grpcserver.Check

	closers []func()
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp connects to every backend the configuration selects, applies
// migrations and wires the engine and aggregator.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, clock: clock.System()}

	if cfg.OTELCollectorURL != "" {
		shutdown, err := telemetry.InitTracer(ctx, "listing-service", version, cfg.OTELCollectorURL, logger.Named("telemetry"))
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		logger.Info("tracing enabled", zap.String("collector", cfg.OTELCollectorURL))
	}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	if cfg.NeedsPostgres() {
		logger.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, pool.Ping)
		if err := db.Migrate(ctx, pool, logger.Named("migrate")); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	if cfg.NeedsRedis() {
		logger.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.checks = append(a.checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// ── Events ───────────────────────────────────────────────────────────────
	switch cfg.EventsBackend {
	case config.BackendRedis:
		a.publisher = events.NewRedisPublisher(a.rdb)
	case config.BackendNATS:
		pub, err := events.NewNATSPublisher(cfg.NATSURL, 5*time.Second, logger.Named("events"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, func() { _ = pub.Close() })
	default:
		a.publisher = events.Nop()
	}

	// ── Stores ───────────────────────────────────────────────────────────────
	var jobs lifecycle.Store
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		jobs = lifecycle.NewPostgresStore(a.pool)
	default:
		jobs = lifecycle.NewMemoryStore()
	}

	var buckets analytics.Store
	switch cfg.AnalyticsBackend {
	case config.BackendPostgres:
		buckets = analytics.NewPostgresStore(a.pool)
	case config.BackendRedis:
		buckets = analytics.NewRedisStore(a.rdb)
	default:
		buckets = analytics.NewMemoryStore()
	}

	a.engine = lifecycle.NewEngine(jobs, a.clock, a.publisher, logger.Named("lifecycle"))
	a.aggregator = analytics.NewAggregator(buckets, jobs, a.clock, logger.Named("analytics"))

	logger.Info("backends ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("analytics", cfg.AnalyticsBackend),
		zap.String("events", cfg.EventsBackend))
	return a, nil
}

// Ping runs every dependency check.
func (a *app) Ping(ctx context.Context) error {
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
