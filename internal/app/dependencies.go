package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/file"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

const backlogMaxAge = 5 * time.Minute

// runtimeDependencies — хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	kv         domain.KeyValueStore
	outboxRepo domain.OutboxRepository
	checkers   map[string]health.Checker
	closers    []func() error
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies открывает хранилище сессий и outbox.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{checkers: make(map[string]health.Checker)}
	defer func() {
		if err != nil {
			deps.Close(logger)
		}
	}()

	var pg *postgres.Store
	openPostgres := func() (*postgres.Store, error) {
		if pg != nil {
			return pg, nil
		}
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.checkers["postgres"] = health.NewPingChecker("postgres", store.Ping)
		pg = store
		return store, nil
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.kv = memory.NewKeyValueStore()
	case StorageDriverFile:
		store, err := file.Open(cfg.FileStorePath)
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		deps.kv = store
		logger.WithField("path", store.Path()).Info("file storage initialized")
	case StorageDriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		store := redisstore.NewKVStore(client, cfg.RedisKeyPrefix, cfg.RedisTTL)
		deps.closers = append(deps.closers, store.Close)
		deps.checkers["redis"] = health.NewPingChecker("redis", store.Ping)
		deps.kv = store
		logger.WithField("addr", cfg.RedisAddr).Info("redis storage initialized")
	case StorageDriverPostgres:
		store, err := openPostgres()
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		deps.kv = postgres.NewKVRepository(store)
		logger.Info("postgres storage initialized")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.OutboxDriver {
	case "", StorageDriverMemory:
		deps.outboxRepo = memory.NewOutboxRepository()
	case StorageDriverPostgres:
		store, err := openPostgres()
		if err != nil {
			return nil, fmt.Errorf("open postgres outbox: %w", err)
		}
		deps.outboxRepo = postgres.NewOutboxRepository(store)
	default:
		return nil, fmt.Errorf("unsupported outbox driver %q", cfg.OutboxDriver)
	}
	deps.checkers["outbox"] = health.NewBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending, backlogMaxAge)

	return deps, nil
}
