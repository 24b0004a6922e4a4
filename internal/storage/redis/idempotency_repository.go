// Package redis хранит ключи идемпотентности в Redis, чтобы несколько инстансов
// ledger видели общее состояние запросов.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/health"
)

const (
	// KeyPrefix отделяет ключи ledger в общем Redis.
	KeyPrefix = "ledger:idempotency:"

	opTimeout   = 3 * time.Second
	minRedisTTL = time.Second
)

// IdempotencyRepository реализует domain.IdempotencyRepository поверх Redis.
// Срок жизни записи дублируется в TTL ключа, поэтому DeleteExpired ничего не удаляет.
type IdempotencyRepository struct {
	client goredis.UniversalClient
	now    func() time.Time
}

// NewIdempotencyRepository оборачивает готовый клиент.
func NewIdempotencyRepository(client goredis.UniversalClient) *IdempotencyRepository {
	return NewIdempotencyRepositoryWithClock(client, func() time.Time { return time.Now().UTC() })
}

// NewIdempotencyRepositoryWithClock позволяет подменить часы в тестах.
func NewIdempotencyRepositoryWithClock(client goredis.UniversalClient, now func() time.Time) *IdempotencyRepository {
	return &IdempotencyRepository{client: client, now: now}
}

// Dial создаёт клиент по адресу и проверяет соединение.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// CreateProcessing атомарно занимает ключ через WATCH/MULTI.
// Запись с истёкшим TTLAt считается свободной.
func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	now := record.CreatedAt

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		existing    domain.IdempotencyRecord
		conflictErr error
	)
	redisKey := KeyPrefix + record.Key
	err = r.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, found, err := readRecord(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if found && current.Active(now) {
			existing = current
			conflictErr = current.ClaimError(record.RequestHash)
			return nil
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode idempotency record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, redisTTL(record.TTLAt, now))
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, goredis.TxFailedErr) {
		// Ключ изменил конкурентный запрос между WATCH и EXEC.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if conflictErr != nil {
		return existing, conflictErr
	}
	return record, nil
}

// Get возвращает запись по ключу.
func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	record, found, err := readRecord(ctx, r.client, KeyPrefix+key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if !found {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// MarkDone сохраняет успешный ответ.
func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет ответ с ошибкой.
func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Release удаляет ключ, если запрос по нему ещё в processing.
func (r *IdempotencyRepository) Release(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	redisKey := KeyPrefix + key
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		record, found, err := readRecord(ctx, tx, redisKey)
		if err != nil || !found || record.Status != domain.IdempotencyStatusProcessing {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	}, redisKey)
	if err != nil {
		return fmt.Errorf("release idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired ничего не делает: Redis сам удаляет ключи по TTL.
func (r *IdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

// Check реализует health.Checker.
func (r *IdempotencyRepository) Check() health.Check {
	start := time.Now()
	check := health.Check{Name: "redis", Status: health.StatusHealthy}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		check.Status = health.StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	redisKey := KeyPrefix + key
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		record, found, err := readRecord(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrIdempotencyKeyNotFound
		}

		record.Status = status
		record.ResponseBody = append([]byte(nil), body...)
		record.HTTPStatus = httpStatus
		record.UpdatedAt = r.now()

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode idempotency record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, redisKey, payload, goredis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	return nil
}

type recordReader interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func readRecord(ctx context.Context, client recordReader, redisKey string) (domain.IdempotencyRecord, bool, error) {
	raw, err := client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("get idempotency record: %w", err)
	}

	var record domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("decode idempotency record %s: %w", redisKey, err)
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("invalid idempotency status %q for %s", record.Status, redisKey)
	}
	return record, true, nil
}

func redisTTL(ttlAt, now time.Time) time.Duration {
	ttl := ttlAt.Sub(now)
	if ttl < minRedisTTL {
		return minRedisTTL
	}
	return ttl
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
