package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/readingd/internal/api"
	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/fingerprint"
	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/database"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
	"github.com/nerrad567/readingd/internal/infrastructure/redis"
	"github.com/nerrad567/readingd/migrations"
)

// storage holds the stores selected by the storage section and everything
// that must be closed on shutdown.
type storage struct {
	devices      device.Repository
	fingerprints fingerprint.Store
	checks       map[string]api.HealthChecker
	closers      []func()
}

// Close releases resources in reverse order of acquisition.
func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage opens the device database, applies migrations, builds the
// fingerprint store and, when storage.reset_on_start is set, clears both.
func openStorage(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *storage, err error) {
	st := &storage{checks: make(map[string]api.HealthChecker)}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	})
	st.checks["database"] = db
	st.devices = device.NewSQLRepository(db.DB, db.Dialect())

	switch cfg.Storage.Fingerprints {
	case config.FingerprintsSQL:
		st.fingerprints = fingerprint.NewSQLStore(db.DB, db.Dialect())
	case config.FingerprintsMemory:
		log.Warn("fingerprints kept in memory; duplicates are only detected until restart")
		st.fingerprints = fingerprint.NewMemoryStore()
	case config.FingerprintsRedis:
		rc, redisErr := redis.New(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  time.Duration(cfg.Redis.DialTimeout) * time.Second,
			ReadTimeout:  time.Duration(cfg.Redis.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Redis.WriteTimeout) * time.Second,
		})
		if redisErr != nil {
			return nil, fmt.Errorf("connecting to redis: %w", redisErr)
		}
		st.closers = append(st.closers, func() {
			log.Info("closing redis")
			if closeErr := rc.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		})
		st.checks["redis"] = rc
		st.fingerprints = fingerprint.NewRedisStore(rc.Client, cfg.Redis.KeyPrefix)
		log.Info("redis connected")
	default:
		return nil, fmt.Errorf("unknown fingerprint backend %q", cfg.Storage.Fingerprints)
	}

	if cfg.Storage.ResetOnStart {
		if clearErr := st.devices.Clear(ctx); clearErr != nil {
			return nil, fmt.Errorf("clearing devices: %w", clearErr)
		}
		if clearErr := st.fingerprints.Clear(ctx); clearErr != nil {
			return nil, fmt.Errorf("clearing fingerprints: %w", clearErr)
		}
		log.Warn("storage reset on start")
	}

	return st, nil
}

// openDatabase opens the configured backend and applies its migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	var (
		db  *database.DB
		err error
	)

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err = database.OpenPostgres(ctx, database.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		})
	case config.BackendSQLite:
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Storage.Backend, err)
	}

	schema := migrations.SQLite()
	if db.Dialect() == database.DialectPostgres {
		schema = migrations.Postgres()
	}
	if err := db.Migrate(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info("database ready", "backend", db.Dialect().String())
	return db, nil
}
