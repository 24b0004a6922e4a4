package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderledger/internal/health"
	"github.com/vladislavdragonenkov/orderledger/internal/service/overdue"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/redis"
)

type runtimeDependencies struct {
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker
	closeFn        func() error

	// sweeper появляется при запуске воркеров.
	sweeper *overdue.Sweeper
}

// initRuntimeDependencies собирает репозитории по cfg.StorageDriver и, если задан RedisAddr,
// переносит ключи идемпотентности в Redis.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var deps *runtimeDependencies

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps = &runtimeDependencies{
			repo:            memory.NewOrderRepository(),
			outboxRepo:      memory.NewOutboxRepository(),
			timelineRepo:    memory.NewTimelineRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres storage requires PostgresDSN")
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		deps = &runtimeDependencies{
			repo:            postgres.NewOrderRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			timelineRepo:    postgres.NewTimelineRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  store,
			closeFn:         store.Close,
		}
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client, err := redis.Dial(ctx, addr)
		if err != nil {
			if deps.closeFn != nil {
				_ = deps.closeFn()
			}
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		idemRepo := redis.NewIdempotencyRepository(client)
		deps.idempotencyRepo = idemRepo
		deps.redisChecker = idemRepo

		storageClose := deps.closeFn
		deps.closeFn = func() error {
			var errs []error
			if err := client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
			if storageClose != nil {
				if err := storageClose(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}
		logger.WithField("addr", addr).Info("idempotency keys stored in redis")
	}

	return deps, nil
}
