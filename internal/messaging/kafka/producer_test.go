package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env OutboxEnvelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.AggregateID != "order-123" {
			return fmt.Errorf("unexpected aggregate id %q", env.AggregateID)
		}
		return nil
	})

	event := OutboxEnvelope{
		ID:          "evt-1",
		AggregateID: "order-123",
		EventType:   "PaymentRecorded",
		Payload:     json.RawMessage(`{"amount":"100"}`),
		PublishedAt: time.Now().UTC(),
	}

	if err := producer.PublishEvent(TopicOrderEvents, "order-123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{"id": "evt-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil))

	if err := producer.PublishEvent(TopicOrderEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestProducer_PublishCommand(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicCommands {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1" {
			return fmt.Errorf("unexpected key %s", key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderCommandType ||
			string(msg.Headers[0].Value) != string(CommandRecordPayment) {
			return fmt.Errorf("unexpected headers %+v", msg.Headers)
		}
		return nil
	})

	cmd, err := NewCommand(CommandRecordPayment, "order-1", map[string]string{"amount": "100"})
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	if cmd.IssuedAt.IsZero() {
		t.Fatal("issued_at should be set")
	}
	if err := producer.PublishCommand("", cmd); err != nil {
		t.Fatalf("PublishCommand failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewCommand_MarshalError(t *testing.T) {
	if _, err := NewCommand(CommandRecordPayment, "order-1", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}
