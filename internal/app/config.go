package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderledger/internal/messaging/kafka"
)

// StorageDriver выбирает реализацию репозиториев.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска order-ledger.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	// RedisAddr включает Redis-хранилище ключей идемпотентности.
	RedisAddr string

	// KafkaBrokers перечисляет брокеры через запятую, пустая строка отключает Kafka.
	KafkaBrokers       string
	KafkaEventsTopic   string
	KafkaCommandsTopic string
	KafkaDLQTopic      string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	OverdueSweepInterval  time.Duration
	OverdueSweepBatchSize int

	// HTTPRateLimit ограничивает число запросов в минуту с одного IP; 0 отключает ограничение.
	HTTPRateLimit int
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaEventsTopic:   kafka.TopicOrderEvents,
		KafkaCommandsTopic: kafka.TopicCommands,
		KafkaDLQTopic:      kafka.TopicDeadLetterQueue,
		KafkaConsumerGroup: "order-ledger",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   10000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		OverdueSweepInterval:  time.Minute,
		OverdueSweepBatchSize: 200,

		HTTPRateLimit: 600,
	}
}

// Validate проверяет сочетания настроек до старта серверов и воркеров.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory, "":
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires PostgresDSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if strings.TrimSpace(c.KafkaBrokers) != "" {
		if c.KafkaCommandsTopic == "" || c.KafkaEventsTopic == "" || c.KafkaDLQTopic == "" {
			errs = append(errs, errors.New("kafka topics must be set when brokers are configured"))
		}
		if c.KafkaCommandsTopic != "" && c.KafkaCommandsTopic == c.KafkaDLQTopic {
			errs = append(errs, fmt.Errorf("kafka commands and dlq topics must differ, both are %q", c.KafkaDLQTopic))
		}
	}

	if c.OverdueSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("overdue sweep interval must be > 0, got %s", c.OverdueSweepInterval))
	}
	if c.OverdueSweepBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("overdue sweep batch size must be > 0, got %d", c.OverdueSweepBatchSize))
	}
	if c.OutboxMaxPending < 0 {
		errs = append(errs, fmt.Errorf("outbox max pending must be >= 0, got %d", c.OutboxMaxPending))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, fmt.Errorf("idempotency ttl must be > 0, got %s", c.IdempotencyTTL))
	}
	if c.HTTPRateLimit < 0 {
		errs = append(errs, fmt.Errorf("http rate limit must be >= 0, got %d", c.HTTPRateLimit))
	}

	return errors.Join(errs...)
}
