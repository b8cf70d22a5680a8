package dispatchservice

import (
	"context"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/memstore"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/software/dispatch/handler"
)

// openStores selects the storage backend named by dispatch.store.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.Dispatch.Store {
	case config.StoreMemory:
		store := memstore.New()
		log.Warn(ctx, "memory_store", "Using the in-memory store; rides are lost on restart", nil)
		return &stores{
			uow:    store,
			rides:  store.Rides(),
			offers: store.Offers(),
			users:  store.Users(),
			stats:  store.Rides(),
			checks: map[string]handler.HealthCheck{},
			close:  func() {},
		}, nil

	default:
		pool, err := postgres.NewPool(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			log.Error(ctx, "db_schema_failed", "Failed to apply database schema", err, nil)
			return nil, err
		}
		rideRepo := postgres.NewRideRepo(pool)
		return &stores{
			uow:    postgres.NewUnitOfWork(pool),
			rides:  rideRepo,
			offers: postgres.NewOfferRepo(pool),
			users:  postgres.NewUserRepo(pool),
			stats:  rideRepo,
			checks: map[string]handler.HealthCheck{
				"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			},
			close: pool.Close,
		}, nil
	}
}

// Migrate applies the schema and exits; used by the migrate mode.
func Migrate(ctx context.Context, configPath string) error {
	log := logger.New("dispatch-migrate")
	ctx = log.WithRequestID(ctx, "migrate-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	log.SetLevel(cfg.Log.Level)
	if cfg.Dispatch.Store == config.StoreMemory {
		log.Warn(ctx, "migrate_skipped", "dispatch.store is memory, nothing to migrate", nil)
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Error(ctx, "db_schema_failed", "Failed to apply database schema", err, nil)
		return err
	}
	log.Info(ctx, "schema_applied", "Database schema is up to date", nil)
	return nil
}
