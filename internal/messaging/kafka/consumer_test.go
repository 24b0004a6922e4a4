package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error {
	return m.errorsCh
}

func (m *mockConsumerGroup) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return nil
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return m.topic }
func (m *mockClaim) Partition() int32                         { return m.partition }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

// flakyLedger роняет первые failures вызовов RecordPayment временной ошибкой хранилища.
type flakyLedger struct {
	*ledger.Service
	failures int
	calls    int
}

func (f *flakyLedger) RecordPayment(ctx context.Context, cmd ledger.RecordPaymentCommand) (domain.Order, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.Order{}, errors.New("postgres: connection reset by peer")
	}
	return f.Service.RecordPayment(ctx, cmd)
}

func paymentMessage(t *testing.T, commandID, amount string) *sarama.ConsumerMessage {
	t.Helper()
	return commandMessage(t, CommandRecordPayment, commandID, map[string]any{
		"amount": amount,
		"date":   commandTestTime,
		"mode":   "neft",
	})
}

func withRetryCount(msg *sarama.ConsumerMessage, count string) *sarama.ConsumerMessage {
	msg.Headers = append(msg.Headers, &sarama.RecordHeader{Key: []byte(HeaderRetryCount), Value: []byte(count)})
	return msg
}

func headerValue(headers []sarama.RecordHeader, key string) string {
	for _, h := range headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func decodeLetter(t *testing.T, msg *sarama.ProducerMessage) DeadLetter {
	t.Helper()
	raw, err := msg.Value.Encode()
	require.NoError(t, err)
	var letter DeadLetter
	require.NoError(t, json.Unmarshal(raw, &letter))
	return letter
}

func orderPayments(t *testing.T, svc *ledger.Service) []domain.Payment {
	t.Helper()
	order, err := svc.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	return order.Payments
}

func TestNewConsumer_UnreachableBrokers(t *testing.T) {
	handler := NewCommandHandler(newCommandTestService(t))

	_, err := NewConsumer([]string{"invalid-broker:9092"}, "order-ledger", []string{TopicCommands}, handler)
	assert.Error(t, err)
	_, err = NewConsumer([]string{"invalid-broker:9092"}, "order-ledger", []string{TopicCommands}, handler, WithMaxRetries(3))
	assert.Error(t, err)
}

func TestNewConsumer_Options(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil))
	c := newConsumer(&mockConsumerGroup{}, []string{TopicCommands}, nil,
		WithDLQ(producer, "ledger.commands.dlq"),
		WithMaxRetries(5),
		WithRetryDelay(time.Second),
	)
	assert.Same(t, producer, c.dlqProducer)
	assert.Equal(t, "ledger.commands.dlq", c.dlqTopic)
	assert.Equal(t, 5, c.maxRetries)
	assert.Equal(t, time.Second, c.retryDelay)

	defaults := newConsumer(&mockConsumerGroup{}, nil, nil, WithDLQ(nil, ""), WithMaxRetries(-1), WithRetryDelay(-time.Second))
	assert.Equal(t, TopicDeadLetterQueue, defaults.dlqTopic)
	assert.Equal(t, 3, defaults.maxRetries)
	assert.Equal(t, defaultRetryDelay, defaults.retryDelay)
}

func TestConsumer_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var consumedTopics []string
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
			consumedTopics = topics
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}
	consumer := newConsumer(group, []string{TopicCommands}, NewCommandHandler(newCommandTestService(t)))

	errorsCh <- errors.New("rebalance in progress")
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, consumer.Stop())
	assert.Equal(t, []string{TopicCommands}, consumedTopics)
}

func TestConsumer_StopReturnsCloseError(t *testing.T) {
	errorsCh := make(chan error)
	group := &mockConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := &Consumer{consumer: group, logger: log.WithField("test", "stop")}
	assert.Error(t, consumer.Stop())
}

func TestConsumer_SetupCleanup(t *testing.T) {
	consumer := &Consumer{}
	assert.NoError(t, consumer.Setup(nil))
	assert.NoError(t, consumer.Cleanup(nil))
}

func TestConsumeClaim_AppliesPaymentsAndMarksOffsets(t *testing.T) {
	svc := newCommandTestService(t)
	consumer := newConsumer(&mockConsumerGroup{}, []string{TopicCommands}, NewCommandHandler(svc))

	session := &mockSession{ctx: context.Background()}
	claim := &mockClaim{topic: TopicCommands, messages: make(chan *sarama.ConsumerMessage, 3)}
	first := paymentMessage(t, "cmd-1", "300")
	claim.messages <- first
	claim.messages <- paymentMessage(t, "cmd-2", "200")
	// Повторная доставка первой команды.
	claim.messages <- first
	close(claim.messages)

	require.NoError(t, consumer.ConsumeClaim(session, claim))
	assert.Len(t, session.marked, 3)

	payments := orderPayments(t, svc)
	require.Len(t, payments, 2)
	assert.Equal(t, "cmd-1", payments[0].TransactionID)
	assert.Equal(t, "cmd-2", payments[1].TransactionID)
}

func TestConsumeClaim_TransientFailureKeepsOffset(t *testing.T) {
	flaky := &flakyLedger{Service: newCommandTestService(t), failures: 10}
	consumer := newConsumer(&mockConsumerGroup{}, []string{TopicCommands}, NewCommandHandler(flaky),
		WithMaxRetries(2),
		WithRetryDelay(0),
	)

	session := &mockSession{ctx: context.Background()}
	claim := &mockClaim{topic: TopicCommands, messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- paymentMessage(t, "cmd-1", "300")
	close(claim.messages)

	require.NoError(t, consumer.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked, "unprocessed command must be re-read after restart")
	assert.Equal(t, 2, flaky.calls)
	assert.Empty(t, orderPayments(t, flaky.Service))
}

func TestHandleMessageWithRetry(t *testing.T) {
	newRetrying := func(svc CommandService, dlq *Producer) *Consumer {
		return &Consumer{
			handler:     NewCommandHandler(svc),
			dlqProducer: dlq,
			dlqTopic:    TopicDeadLetterQueue,
			logger:      log.WithField("test", "retry"),
			maxRetries:  3,
		}
	}

	t.Run("recovers after transient failure", func(t *testing.T) {
		flaky := &flakyLedger{Service: newCommandTestService(t), failures: 1}
		consumer := newRetrying(flaky, nil)

		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), paymentMessage(t, "cmd-1", "250")))
		assert.Equal(t, 2, flaky.calls)
		assert.Len(t, orderPayments(t, flaky.Service), 1)
	})

	t.Run("redelivery continues the retry count", func(t *testing.T) {
		flaky := &flakyLedger{Service: newCommandTestService(t), failures: 10}
		consumer := newRetrying(flaky, nil)

		err := consumer.handleMessageWithRetry(context.Background(), withRetryCount(paymentMessage(t, "cmd-1", "250"), "1"))
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
		assert.Equal(t, 2, flaky.calls)
	})

	t.Run("rejected payment goes to dlq without retries", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			letter := decodeLetter(t, msg)
			assert.Equal(t, TopicDeadLetterQueue, msg.Topic)
			assert.Equal(t, TopicCommands, letter.OriginalTopic)
			assert.Equal(t, 0, letter.RetryCount)
			assert.Contains(t, letter.ErrorMessage, "permanent")

			replayed, err := ParseCommand(&sarama.ConsumerMessage{Value: []byte(letter.OriginalValue)})
			require.NoError(t, err)
			assert.Equal(t, CommandRecordPayment, replayed.Type)
			assert.Equal(t, "cmd-neg", replayed.CommandID)
			return nil
		})
		flaky := &flakyLedger{Service: newCommandTestService(t)}
		consumer := newRetrying(flaky, NewProducerFromSync(producer))

		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), paymentMessage(t, "cmd-neg", "-5")))
		assert.Equal(t, 1, flaky.calls)
		require.NoError(t, producer.Close())
	})

	t.Run("exhausted retries go to dlq", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			letter := decodeLetter(t, msg)
			assert.Equal(t, 3, letter.RetryCount)
			assert.Equal(t, "order-1", letter.OriginalKey)
			assert.Equal(t, "3", headerValue(msg.Headers, HeaderRetryCount))
			assert.Equal(t, TopicCommands, headerValue(msg.Headers, HeaderOriginalTopic))
			assert.Contains(t, headerValue(msg.Headers, HeaderErrorMessage), "connection reset")
			return nil
		})
		flaky := &flakyLedger{Service: newCommandTestService(t), failures: 10}
		consumer := newRetrying(flaky, NewProducerFromSync(producer))

		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), withRetryCount(paymentMessage(t, "cmd-1", "250"), "2")))
		assert.Equal(t, 1, flaky.calls)
		require.NoError(t, producer.Close())
	})

	t.Run("dlq publish failure is returned", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		flaky := &flakyLedger{Service: newCommandTestService(t), failures: 10}
		consumer := newRetrying(flaky, NewProducerFromSync(producer))

		err := consumer.handleMessageWithRetry(context.Background(), withRetryCount(paymentMessage(t, "cmd-1", "250"), "3"))
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, producer.Close())
	})

	t.Run("cancellation interrupts backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		consumer := &Consumer{
			handler: func(context.Context, *sarama.ConsumerMessage) error {
				cancel()
				return errors.New("ledger store timeout")
			},
			logger:     log.WithField("test", "retry-cancel"),
			maxRetries: 3,
			retryDelay: time.Hour,
		}
		err := consumer.handleMessageWithRetry(ctx, paymentMessage(t, "cmd-1", "250"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGetRetryCount(t *testing.T) {
	consumer := &Consumer{}
	tests := []struct {
		name    string
		headers []*sarama.RecordHeader
		want    int
	}{
		{name: "absent", want: 0},
		{name: "numeric", headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("5")}}, want: 5},
		{name: "garbage", headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("bad")}}, want: 0},
		{name: "nil header skipped", headers: []*sarama.RecordHeader{nil, {Key: []byte(HeaderRetryCount), Value: []byte("2")}}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, consumer.getRetryCount(&sarama.ConsumerMessage{Headers: tt.headers}))
		})
	}
}

func TestParseCommandAndEnvelope(t *testing.T) {
	cmd, err := ParseCommand(&sarama.ConsumerMessage{Value: []byte(`{"type":"payment.record","order_id":"o-1","payload":{}}`)})
	require.NoError(t, err)
	assert.Equal(t, CommandRecordPayment, cmd.Type)
	assert.Equal(t, "o-1", cmd.OrderID)

	_, err = ParseCommand(&sarama.ConsumerMessage{Value: []byte("{")})
	assert.Error(t, err)

	cmd, err = ParseCommand(&sarama.ConsumerMessage{
		Value:   []byte(`{"order_id":"o-1","payload":{}}`),
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderCommandType), Value: []byte(CommandTransitionCreditNote)}},
	})
	require.NoError(t, err)
	assert.Equal(t, CommandTransitionCreditNote, cmd.Type, "command type falls back to header")

	env, err := ParseOutboxEnvelope(&sarama.ConsumerMessage{
		Value: []byte(`{"id":"evt-1","aggregate_id":"o-1","event_type":"PaymentRecorded","payload":{"amount":"250"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", env.AggregateID)
	assert.Equal(t, "PaymentRecorded", env.EventType)

	_, err = ParseOutboxEnvelope(&sarama.ConsumerMessage{Value: []byte("{")})
	assert.Error(t, err)
}

func TestSendToDLQ_CustomTopic(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		letter := decodeLetter(t, msg)
		assert.Equal(t, "ledger.commands.dlq", msg.Topic)
		assert.Equal(t, int32(1), letter.OriginalPartition)
		assert.Equal(t, int64(42), letter.OriginalOffset)
		assert.Equal(t, "order-1", letter.OriginalKey)
		assert.Equal(t, "credit note store unavailable", letter.ErrorMessage)
		assert.NotEmpty(t, headerValue(msg.Headers, HeaderFailedAt))
		return nil
	})
	consumer := &Consumer{
		dlqProducer: NewProducerFromSync(producer),
		dlqTopic:    "ledger.commands.dlq",
		logger:      log.WithField("test", "send-dlq"),
	}

	msg := commandMessage(t, CommandTransitionCreditNote, "cmd-7", map[string]any{"credit_note_id": "cn-1", "to": "refunded"})
	msg.Partition, msg.Offset = 1, 42
	require.NoError(t, consumer.sendToDLQ(msg, errors.New("credit note store unavailable"), 3))
	require.NoError(t, producer.Close())
}

func TestConsumeClaim_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newConsumer(&mockConsumerGroup{}, []string{TopicCommands}, NewCommandHandler(newCommandTestService(t)))
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicCommands, messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}
