package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

func ledgerEvent(id, orderID, eventType, financialStatus string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + orderID + `","financial_status":"` + financialStatus + `"}`),
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

// stubPublisher отклоняет события заказов из failOrders; остальные ошибки берутся из sequenceErrors по очереди.
type stubPublisher struct {
	mu             sync.Mutex
	failOrders     map[string]error
	sequenceErrors []error
	published      []domain.OutboxMessage
	attempts       int
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if err, ok := s.failOrders[msg.AggregateID]; ok {
		return err
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err != nil {
			return err
		}
	}
	s.published = append(s.published, msg)
	return nil
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

var (
	_ domain.OutboxRepository = (*stubOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)

func TestWorker_ProcessOnce_PublishesLedgerEvents(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		ledgerEvent("evt-1", "order-1", domain.EventPaymentRecorded, "partially_paid"),
		ledgerEvent("evt-2", "order-1", domain.EventFinancialStatusChanged, "partially_paid"),
		ledgerEvent("evt-3", "order-2", domain.EventCreditNoteIssued, "credit_note_pending"),
	}}
	publisher := &stubPublisher{}

	result := NewWorker(repo, publisher, WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 3, Sent: 3}, result)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
	require.Len(t, publisher.published, 3)
	assert.Equal(t, domain.EventFinancialStatusChanged, publisher.published[1].EventType)
}

func TestWorker_ProcessOnce_FailedEventGoesToDLQ(t *testing.T) {
	t.Parallel()

	event := ledgerEvent("evt-9", "order-2", domain.EventPaymentRecorded, "fully_paid")
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{event}}
	publisher := &stubPublisher{failOrders: map[string]error{"order-2": errors.New("kafka: leader not available")}}
	dlq := &stubPublisher{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithClock(func() time.Time { return now }),
	)
	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 1, Failed: 1}, result)
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.sentIDs)
	assert.Equal(t, []string{"evt-9"}, repo.failedIDs)

	require.Len(t, dlq.published, 1)
	dead := dlq.published[0]
	assert.Equal(t, "order-2", dead.AggregateID)
	assert.Equal(t, domain.EventPaymentRecorded, dead.EventType)

	var letter deadLetter
	require.NoError(t, json.Unmarshal(dead.Payload, &letter))
	assert.Equal(t, "evt-9", letter.OutboxID)
	assert.Equal(t, domain.AggregateTypeOrder, letter.AggregateType)
	assert.Contains(t, letter.PublishError, "leader not available")
	assert.Equal(t, now.Format(time.RFC3339Nano), letter.DLQPublishedAt)
	assert.JSONEq(t, string(event.Payload), string(letter.Payload))
}

func TestWorker_ProcessOnce_HoldsLaterEventsOfFailedOrder(t *testing.T) {
	heldBefore := testutil.ToFloat64(outboxPublishAttempts.WithLabelValues(domain.EventFinancialStatusChanged, "held"))

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		ledgerEvent("evt-1", "order-1", domain.EventPaymentRecorded, "fully_paid"),
		ledgerEvent("evt-2", "order-2", domain.EventPaymentRecorded, "partially_paid"),
		ledgerEvent("evt-3", "order-1", domain.EventFinancialStatusChanged, "fully_paid"),
		ledgerEvent("evt-4", "order-2", domain.EventFinancialStatusChanged, "partially_paid"),
	}}
	publisher := &stubPublisher{failOrders: map[string]error{"order-1": errors.New("message too large")}}

	result := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(2)).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 4, Sent: 2, Failed: 1, Held: 1}, result)
	assert.Equal(t, []string{"evt-2", "evt-4"}, repo.sentIDs)
	assert.Equal(t, []string{"evt-1"}, repo.failedIDs, "held event stays pending")
	assert.Equal(t, 4, publisher.calls(), "held event is not attempted")
	assert.Equal(t, heldBefore+1, testutil.ToFloat64(outboxPublishAttempts.WithLabelValues(domain.EventFinancialStatusChanged, "held")))
}

func TestWorker_ProcessOnce_RecoversAfterTransientErrors(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		ledgerEvent("evt-5", "order-3", domain.EventFinancialStatusChanged, "overdue"),
	}}
	publisher := &stubPublisher{sequenceErrors: []error{
		errors.New("kafka: broker not connected"),
		errors.New("kafka: request timed out"),
		nil,
	}}

	result := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 1, Sent: 1}, result)
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"evt-5"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_PullErrorAndEmptyBatch(t *testing.T) {
	t.Parallel()

	publisher := &stubPublisher{}
	broken := NewWorker(&stubOutboxRepo{pullErr: errors.New("relation outbox does not exist")}, publisher)
	assert.Equal(t, BatchResult{}, broken.ProcessOnce(context.Background()))

	empty := NewWorker(&stubOutboxRepo{}, publisher)
	assert.Equal(t, BatchResult{}, empty.ProcessOnce(context.Background()))
	assert.Zero(t, publisher.calls())
}

type cancelingPublisher struct {
	*stubPublisher
	cancel context.CancelFunc
}

func (c *cancelingPublisher) Publish(msg domain.OutboxMessage) error {
	err := c.stubPublisher.Publish(msg)
	c.cancel()
	return err
}

func TestWorker_ProcessOnce_CancellationKeepsEventsPending(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		ledgerEvent("evt-6", "order-4", domain.EventOrderCreated, "pending"),
		ledgerEvent("evt-7", "order-5", domain.EventOrderCreated, "pending"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	publisher := &stubPublisher{failOrders: map[string]error{"order-4": errors.New("broker down")}}

	worker := NewWorker(repo, &cancelingPublisher{stubPublisher: publisher, cancel: cancel},
		WithRetryBaseDelay(time.Hour),
		WithMaxAttempts(5),
	)
	result := worker.ProcessOnce(ctx)

	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Sent)
	assert.Empty(t, repo.failedIDs, "interrupted publish must not mark the event failed")
	assert.Equal(t, 1, publisher.calls())
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops on context cancel", func(t *testing.T) {
		t.Parallel()
		repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
			ledgerEvent("evt-8", "order-6", domain.EventDeliveryUpdated, "pending"),
		}}
		publisher := &stubPublisher{}
		worker := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond), WithRetryBaseDelay(0))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			worker.Run(ctx)
		}()

		time.Sleep(15 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on context cancel")
		}
		assert.GreaterOrEqual(t, publisher.calls(), 1)
	})

	t.Run("disabled without publisher", func(t *testing.T) {
		t.Parallel()
		worker := NewWorker(&stubOutboxRepo{}, nil)
		done := make(chan struct{})
		go func() {
			defer close(done)
			worker.Run(context.Background())
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker without publisher must return immediately")
		}
	})
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(100*time.Millisecond))
	for attempt, want := range map[int]time.Duration{
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		3:  400 * time.Millisecond,
		20: maxRetryDelay,
	} {
		assert.Equal(t, want, worker.retryBackoff(attempt), "attempt %d", attempt)
	}

	noDelay := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(-time.Second))
	assert.Zero(t, noDelay.retryBackoff(3))
}

func TestBacklogAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Zero(t, backlogAge(domain.OutboxStats{}, now))
	assert.Equal(t, 90*time.Second, backlogAge(domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-90 * time.Second)}, now))
	assert.Zero(t, backlogAge(domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(time.Minute)}, now), "clock skew clamps to zero")
}
