package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ledger.order-events"
	TopicCommands        = "ledger.commands"
	TopicDeadLetterQueue = "ledger.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderCommandType   = "x-command-type"
)

// CommandType определяет тип внешнего сигнала в topic команд.
type CommandType string

const (
	// CommandTransitionCreditNote закрывает кредит-ноту (adjusted/refunded).
	CommandTransitionCreditNote CommandType = "credit_note.transition"
	// CommandRecordPayment добавляет платёж, пришедший из банковского шлюза.
	CommandRecordPayment CommandType = "payment.record"
)

// CommandEnvelope представляет сообщение в topic команд.
type CommandEnvelope struct {
	CommandID string          `json:"command_id,omitempty"`
	Type      CommandType     `json:"type"`
	OrderID   string          `json:"order_id"`
	IssuedAt  time.Time       `json:"issued_at"`
	Payload   json.RawMessage `json:"payload"`
}

// OutboxEnvelope описывает формат события, которое outbox публикует в TopicOrderEvents.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter оборачивает сообщение, которое consumer не смог обработать.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseCommand парсит CommandEnvelope из сообщения
func ParseCommand(message *sarama.ConsumerMessage) (*CommandEnvelope, error) {
	var cmd CommandEnvelope
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if cmd.Type == "" {
		for _, header := range message.Headers {
			if string(header.Key) == HeaderCommandType {
				cmd.Type = CommandType(header.Value)
			}
		}
	}
	return &cmd, nil
}

// ParseOutboxEnvelope парсит событие из TopicOrderEvents
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (*OutboxEnvelope, error) {
	var env OutboxEnvelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	return &env, nil
}

// NewCommand собирает конверт команды.
func NewCommand(cmdType CommandType, orderID string, payload any) (*CommandEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command payload: %w", err)
	}
	return &CommandEnvelope{
		Type:     cmdType,
		OrderID:  orderID,
		IssuedAt: time.Now().UTC(),
		Payload:  raw,
	}, nil
}
