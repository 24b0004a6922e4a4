package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBrokers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "disabled", in: "", want: nil},
		{name: "blank entries", in: " , ,", want: nil},
		{name: "single", in: "kafka:9092", want: []string{"kafka:9092"}},
		{name: "trimmed list", in: "kafka-1:9092, kafka-2:9092 ,,kafka-3:9092", want: []string{"kafka-1:9092", "kafka-2:9092", "kafka-3:9092"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitBrokers(tc.in))
		})
	}
}

func TestInitKafkaProducer_DisabledWithoutBrokers(t *testing.T) {
	producer, err := initKafkaProducer(" , ", log.WithField("test", "kafka"))
	require.NoError(t, err)
	assert.Nil(t, producer)

	// закрытие отсутствующего producer не паникует
	closeKafkaProducer(producer, log.WithField("test", "kafka"))
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer("127.0.0.1:1, 127.0.0.1:2", log.WithField("test", "kafka"))
	require.Error(t, err)
	assert.Nil(t, producer)
}

func TestInitCommandConsumer_RequiresBrokersAndDLQProducer(t *testing.T) {
	svc, _ := newOpsLedger(t)
	logger := log.WithField("test", "kafka-consumer")

	cfg := DefaultConfig()
	consumer, err := initCommandConsumer(context.Background(), cfg, svc, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, consumer, "commands topic is not consumed when kafka is disabled")

	// без producer некуда складывать payment.record и credit_note.transition, упавшие окончательно
	cfg.KafkaBrokers = "127.0.0.1:1"
	consumer, err = initCommandConsumer(context.Background(), cfg, svc, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	stopKafkaConsumer(consumer, logger)
}
