package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/messaging/kafka"
	grpcsvc "github.com/vladislavdragonenkov/orderledger/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/orderledger/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderledger/internal/service/overdue"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
)

// OrderLifecycleTestSuite прогоняет заказ через gRPC, Kafka-команды, outbox и overdue sweep
// на in-memory хранилище.
type OrderLifecycleTestSuite struct {
	suite.Suite

	now      time.Time
	ledger   *ledger.Service
	service  *grpcsvc.LedgerService
	repo     domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	suite.logger = baseLogger.WithField("component", "integration-test")

	suite.now = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return suite.now }

	suite.repo = memory.NewOrderRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.timeline = memory.NewTimelineRepository()

	suite.ledger = ledger.NewService(suite.repo, suite.outbox, suite.timeline,
		ledger.WithLogger(suite.logger),
		ledger.WithClock(clock),
	)
	suite.service = grpcsvc.NewLedgerService(suite.ledger, memory.NewIdempotencyRepository(), suite.logger,
		grpcsvc.WithClock(clock),
	)
}

func (suite *OrderLifecycleTestSuite) TestFullPaymentLifecycle() {
	orderID := suite.createOrder("order-life", 30)

	// 1. Предоплата
	resp, err := suite.service.SetAdvancePayment(suite.keyed("advance"), &ledgerv1.SetAdvancePaymentRequest{
		OrderID: orderID,
		Amount:  decimal.NewFromInt(1000),
		Date:    suite.now,
		Mode:    "rtgs",
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "advance_received", resp.Order.FinancialStatus)

	// 2. Частичная поставка
	resp, err = suite.service.UpdateDelivery(suite.keyed("delivery"), &ledgerv1.UpdateDeliveryRequest{
		OrderID:           orderID,
		QuantityDelivered: 60,
		DeliveryDate:      suite.now,
	})
	require.NoError(suite.T(), err)
	require.True(suite.T(), resp.Order.Totals.DeliveredValue.Equal(decimal.NewFromInt(3000)))

	// 3. Доплата остатка закрывает заказ
	resp, err = suite.service.RecordPayment(suite.keyed("pay-rest"), &ledgerv1.RecordPaymentRequest{
		OrderID:       orderID,
		Amount:        decimal.NewFromInt(4200),
		Date:          suite.now,
		TransactionID: "tx-rest",
		Mode:          "neft",
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "fully_paid", resp.Order.FinancialStatus)
	require.True(suite.T(), resp.Order.Totals.PendingAmount.IsZero())

	// 4. Повтор запроса с тем же ключом не добавляет платёж
	replay, err := suite.service.RecordPayment(suite.keyed("pay-rest"), &ledgerv1.RecordPaymentRequest{
		OrderID:       orderID,
		Amount:        decimal.NewFromInt(4200),
		Date:          suite.now,
		TransactionID: "tx-rest",
		Mode:          "neft",
	})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), replay.Order.Payments, 1)

	// 5. Timeline отражает все шаги
	got, err := suite.service.GetOrder(context.Background(), &ledgerv1.GetOrderRequest{OrderID: orderID})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "fully_paid", got.Order.FinancialStatus)
	suite.requireTimelineContains(got.Timeline, domain.EventOrderCreated, domain.EventAdvancePaymentRecorded,
		domain.EventDeliveryUpdated, domain.EventPaymentRecorded, domain.EventFinancialStatusChanged)
}

func (suite *OrderLifecycleTestSuite) TestCreditNoteAdjustmentViaKafkaCommand() {
	orderID := suite.createOrder("order-cn", 30)

	resp, err := suite.service.IssueCreditNote(suite.keyed("issue"), &ledgerv1.IssueCreditNoteRequest{
		OrderID:      orderID,
		CreditNoteID: "cn-1",
		Amount:       decimal.NewFromInt(200),
		Reason:       "quality_issue",
		Date:         suite.now,
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "credit_note_pending", resp.Order.FinancialStatus)
	require.True(suite.T(), resp.Order.Totals.PendingAmount.Equal(decimal.NewFromInt(5000)))

	// Бухгалтерия закрывает кредит-ноту через topic команд.
	handler := kafka.NewCommandHandler(suite.ledger)
	msg := suite.commandMessage(kafka.CommandTransitionCreditNote, orderID, ledger.TransitionCreditNoteCommand{
		CreditNoteID: "cn-1",
		To:           domain.CreditNoteStatusAdjusted,
	})
	require.NoError(suite.T(), handler(context.Background(), msg))

	// Повторная доставка уже применённой команды не ошибка.
	require.NoError(suite.T(), handler(context.Background(), msg))

	order, err := suite.ledger.GetOrder(context.Background(), orderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.FinancialStatusPending, order.FinancialStatus)
	require.True(suite.T(), order.Totals.PendingAmount.Equal(decimal.NewFromInt(5200)))

	// Переход закрытой ноты в другой статус — конфликт состояния.
	_, err = suite.service.TransitionCreditNote(suite.keyed("refund"), &ledgerv1.TransitionCreditNoteRequest{
		OrderID:      orderID,
		CreditNoteID: "cn-1",
		To:           "refunded",
	})
	require.Equal(suite.T(), codes.FailedPrecondition, status.Code(err))
}

func (suite *OrderLifecycleTestSuite) TestBankPaymentCommandIsDeduplicated() {
	orderID := suite.createOrder("order-bank", 30)
	handler := kafka.NewCommandHandler(suite.ledger)

	msg := suite.commandMessage(kafka.CommandRecordPayment, orderID, ledger.RecordPaymentCommand{
		Amount:        decimal.NewFromInt(2000),
		Date:          suite.now,
		TransactionID: "bank-tx-1",
		Mode:          domain.PaymentModeNEFT,
	})
	require.NoError(suite.T(), handler(context.Background(), msg))
	require.NoError(suite.T(), handler(context.Background(), msg))

	order, err := suite.ledger.GetOrder(context.Background(), orderID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), order.Payments, 1)
	require.Equal(suite.T(), domain.FinancialStatusPartiallyPaid, order.FinancialStatus)

	// Команда для несуществующего заказа сразу уходит в DLQ.
	missing := suite.commandMessage(kafka.CommandRecordPayment, "missing", ledger.RecordPaymentCommand{
		Amount:        decimal.NewFromInt(1),
		Date:          suite.now,
		TransactionID: "bank-tx-2",
		Mode:          domain.PaymentModeNEFT,
	})
	err = handler(context.Background(), missing)
	require.Error(suite.T(), err)
	require.True(suite.T(), kafka.IsPermanent(err))
}

func (suite *OrderLifecycleTestSuite) TestOverdueSweepAndOutboxPublishing() {
	orderID := suite.createOrder("order-late", 10)

	// Отсрочка 10 дней от даты поставки ещё не истекла.
	sweeper := overdue.NewSweeper(suite.repo, suite.ledger,
		overdue.WithLogger(suite.logger),
		overdue.WithClock(func() time.Time { return suite.now }),
	)
	result, err := sweeper.SweepOnce(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, result.Candidates)

	suite.now = suite.now.AddDate(0, 0, 30)
	result, err = sweeper.SweepOnce(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, result.Changed)

	order, err := suite.ledger.GetOrder(context.Background(), orderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.FinancialStatusOverdue, order.FinancialStatus)

	// Все накопленные события уходят в Kafka одним проходом outbox.
	stats, err := suite.outbox.Stats()
	require.NoError(suite.T(), err)
	require.Positive(suite.T(), stats.PendingCount)

	mockProducer := mocks.NewSyncProducer(suite.T(), nil)
	var published []kafka.OutboxEnvelope
	for i := 0; i < stats.PendingCount; i++ {
		mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var env kafka.OutboxEnvelope
			if err := json.Unmarshal(val, &env); err != nil {
				return err
			}
			published = append(published, env)
			return nil
		})
	}

	producer := kafka.NewProducerFromSync(mockProducer)
	worker := outbox.NewWorker(suite.outbox, kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		outbox.WithLogger(suite.logger),
	)
	batch := worker.ProcessOnce(context.Background())
	require.Equal(suite.T(), stats.PendingCount, batch.Sent)
	require.Zero(suite.T(), batch.Failed)
	require.NoError(suite.T(), producer.Close())

	require.Len(suite.T(), published, stats.PendingCount)
	var overdueEvent *ledger.EventEnvelope
	for _, msg := range published {
		require.Equal(suite.T(), orderID, msg.AggregateID)
		if msg.EventType != domain.EventFinancialStatusChanged {
			continue
		}
		env, err := ledger.DecodeEventEnvelope(msg.Payload)
		require.NoError(suite.T(), err)
		if env.FinancialStatus == domain.FinancialStatusOverdue {
			overdueEvent = &env
		}
	}
	require.NotNil(suite.T(), overdueEvent, "overdue transition must be published")
	require.True(suite.T(), overdueEvent.PendingAmount.Equal(decimal.NewFromInt(5200)))
}

func (suite *OrderLifecycleTestSuite) createOrder(orderID string, creditPeriodDays int) string {
	resp, err := suite.service.CreateOrder(suite.keyed("create-"+orderID), &ledgerv1.CreateOrderRequest{
		OrderID:         orderID,
		CustomerID:      "customer-42",
		ProductID:       "steel-coil",
		QuantityOrdered: 100,
		SellingPrice:    decimal.NewFromInt(50),
		DeliveryCost:    decimal.NewFromInt(200),
		DeliveryDate:    suite.now,
		PaymentTerms:    ledgerv1.PaymentTerms{CreditPeriodDays: creditPeriodDays},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "pending", resp.Order.FinancialStatus)
	require.True(suite.T(), resp.Order.Totals.TotalOrderValue.Equal(decimal.NewFromInt(5200)))
	return resp.Order.ID
}

func (suite *OrderLifecycleTestSuite) keyed(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(grpcsvc.IdempotencyKeyHeader, key))
}

func (suite *OrderLifecycleTestSuite) commandMessage(cmdType kafka.CommandType, orderID string, payload any) *sarama.ConsumerMessage {
	cmd, err := kafka.NewCommand(cmdType, orderID, payload)
	require.NoError(suite.T(), err)
	raw, err := json.Marshal(cmd)
	require.NoError(suite.T(), err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicCommands, Key: []byte(orderID), Value: raw}
}

func (suite *OrderLifecycleTestSuite) requireTimelineContains(events []ledgerv1.TimelineEvent, types ...string) {
	seen := make(map[string]bool, len(events))
	for _, event := range events {
		seen[event.Type] = true
	}
	for _, eventType := range types {
		require.Truef(suite.T(), seen[eventType], "timeline should contain %s", eventType)
	}
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
