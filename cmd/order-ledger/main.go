package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/app"
	"github.com/vladislavdragonenkov/orderledger/internal/version"
)

const (
	envGRPCAddr                    = "LEDGER_GRPC_ADDR"
	envHTTPAddr                    = "LEDGER_HTTP_ADDR"
	envMetricsAddr                 = "LEDGER_METRICS_ADDR"
	envStorageDriver               = "LEDGER_STORAGE_DRIVER"
	envPostgresDSN                 = "LEDGER_POSTGRES_DSN"
	envPostgresAutoMigrate         = "LEDGER_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "LEDGER_REDIS_ADDR"
	envKafkaBrokers                = "LEDGER_KAFKA_BROKERS"
	envKafkaEventsTopic            = "LEDGER_KAFKA_EVENTS_TOPIC"
	envKafkaCommandsTopic          = "LEDGER_KAFKA_COMMANDS_TOPIC"
	envKafkaDLQTopic               = "LEDGER_KAFKA_DLQ_TOPIC"
	envKafkaConsumerGroup          = "LEDGER_KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval          = "LEDGER_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "LEDGER_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "LEDGER_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "LEDGER_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "LEDGER_OUTBOX_MAX_PENDING"
	envIdempotencyTTL              = "LEDGER_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "LEDGER_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "LEDGER_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envOverdueSweepInterval        = "LEDGER_OVERDUE_SWEEP_INTERVAL"
	envOverdueSweepBatchSize       = "LEDGER_OVERDUE_SWEEP_BATCH_SIZE"
	envHTTPRateLimit               = "LEDGER_HTTP_RATE_LIMIT"
	envLogLevel                    = "LEDGER_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		log.WithField("value", raw).Warnf("invalid %s, using info", envLogLevel)
		return
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не ломают запуск: остаётся значение по умолчанию, в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaEventsTopic, &cfg.KafkaEventsTopic)
	str(envKafkaCommandsTopic, &cfg.KafkaCommandsTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	duration(envOverdueSweepInterval, &cfg.OverdueSweepInterval, positiveDuration, "must be > 0")
	integer(envOverdueSweepBatchSize, &cfg.OverdueSweepBatchSize, positive, "must be > 0")

	integer(envHTTPRateLimit, &cfg.HTTPRateLimit, nonNegative, "must be >= 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"commit":         version.GetCommit(),
		"build_date":     version.GetDate(),
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
		"redis_enabled":  cfg.RedisAddr != "",
	}).Info("запускаем order-ledger")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order-ledger остановлен")
}
