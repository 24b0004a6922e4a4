// Package ledger применяет внешние события к заказам и после каждой мутации
// заново сверяет финансовое положение заказа.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/metrics"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 5 * time.Millisecond
	maxRetryDelay         = 200 * time.Millisecond
)

// Имена операций для логов и метрик.
const (
	OpCreateOrder          = "create_order"
	OpRecordPayment        = "record_payment"
	OpSetAdvancePayment    = "set_advance_payment"
	OpIssueCreditNote      = "issue_credit_note"
	OpTransitionCreditNote = "transition_credit_note"
	OpUpdateDelivery       = "update_delivery"
	OpUpdateStatus         = "update_status"
	OpUpdateRawMaterial    = "update_raw_material"
	OpRefresh              = "refresh"
)

// ErrOutboxBacklogFull отклоняет мутацию, пока outbox не разгрузится.
var ErrOutboxBacklogFull = errors.New("outbox backlog is full")

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithMaxAttempts задаёт число попыток при конфликте версий.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт базовую задержку экспоненциального backoff.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retryBaseDelay = d
		}
	}
}

// WithMaxOutboxPending включает backpressure: при backlog >= n мутации отклоняются.
func WithMaxOutboxPending(n int) Option {
	return func(s *Service) {
		s.maxOutboxPending = n
	}
}

// Service служит точкой входа для всех мутаций заказа.
type Service struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	validate         *validator.Validate
	logger           *log.Entry
	metrics          *metrics.LedgerMetrics
	now              func() time.Time
	newID            func() string
	maxAttempts      int
	retryBaseDelay   time.Duration
	maxOutboxPending int
}

// NewService создаёт сервис. outbox и timeline могут быть nil.
func NewService(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	options ...Option,
) *Service {
	s := &Service{
		orders:         orders,
		outbox:         outbox,
		timeline:       timeline,
		validate:       newValidator(),
		logger:         log.WithField("component", "ledger"),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateOrder создаёт заказ и сразу сверяет его.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order domain.Order, err error) {
	defer s.observe(OpCreateOrder, time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := validateCommand(s.validate, cmd); err != nil {
		return domain.Order{}, err
	}
	if err := s.checkBackpressure(); err != nil {
		return domain.Order{}, err
	}

	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		id = s.newID()
	}
	now := s.now()

	order, err = domain.NewOrder(domain.NewOrderParams{
		ID:              id,
		CustomerID:      cmd.CustomerID,
		ProductID:       cmd.ProductID,
		Currency:        cmd.Currency,
		QuantityOrdered: cmd.QuantityOrdered,
		SellingPrice:    cmd.SellingPrice,
		DeliveryCost:    cmd.DeliveryCost,
		DeliveryDate:    cmd.DeliveryDate,
		PaymentTerms: domain.PaymentTerms{
			CreditPeriodDays:  cmd.PaymentTerms.CreditPeriodDays,
			AdvanceRequired:   cmd.PaymentTerms.AdvanceRequired,
			AdvancePercentage: cmd.PaymentTerms.AdvancePercentage,
		},
	}, now)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.orders.Create(order); err != nil {
		return domain.Order{}, err
	}
	s.metrics.RecordReconciliation(string(order.FinancialStatus))

	s.emit(order, pendingEvent{
		eventType: domain.EventOrderCreated,
		data: map[string]any{
			"product_id":       order.ProductID,
			"quantity_ordered": order.QuantityOrdered,
			"delivery_date":    order.DeliveryDate,
		},
	}, now)

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
	}).Info("order created")
	return order, nil
}

// GetOrder возвращает заказ, сверенный на текущий момент. Хранилище не меняется.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.NewValidationError(domain.ErrOrderIDRequired)
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Reconcile(s.now())
	return order, nil
}

// ListOrders возвращает заказы клиента, сверенные на текущий момент.
func (s *Service) ListOrders(ctx context.Context, q ListOrdersQuery) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateCommand(s.validate, q); err != nil {
		return nil, err
	}

	orders, err := s.orders.ListByCustomer(q.CustomerID, q.Limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range orders {
		orders[i].Reconcile(now)
	}
	return orders, nil
}

// RecordPayment добавляет платёж. Повтор с тем же непустым TransactionID ничего не меняет.
func (s *Service) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpRecordPayment, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		paymentID = s.newID()
	}

	return s.mutate(ctx, mutation{
		op:      OpRecordPayment,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, now time.Time) (*pendingEvent, error) {
			if cmd.TransactionID != "" && hasPaymentTransaction(o, cmd.TransactionID) {
				return nil, errNoChange
			}
			payment := domain.Payment{
				ID:            paymentID,
				Amount:        cmd.Amount,
				Date:          cmd.Date,
				TransactionID: cmd.TransactionID,
				Mode:          cmd.Mode,
				Notes:         cmd.Notes,
				RecordedAt:    now,
			}
			if err := o.AddPayment(payment); err != nil {
				return nil, err
			}
			s.metrics.RecordAmount("payment", o.Currency, payment.Amount.InexactFloat64())
			return &pendingEvent{
				eventType: domain.EventPaymentRecorded,
				reason:    cmd.TransactionID,
				data: map[string]any{
					"payment_id":     payment.ID,
					"amount":         payment.Amount,
					"mode":           payment.Mode,
					"transaction_id": payment.TransactionID,
					"date":           payment.Date,
				},
			}, nil
		},
	})
}

// SetAdvancePayment фиксирует предоплату; повторная установка отклоняется.
func (s *Service) SetAdvancePayment(ctx context.Context, cmd SetAdvancePaymentCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpSetAdvancePayment, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	return s.mutate(ctx, mutation{
		op:      OpSetAdvancePayment,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, now time.Time) (*pendingEvent, error) {
			advance := domain.AdvancePayment{
				Amount:        cmd.Amount,
				Date:          cmd.Date,
				TransactionID: cmd.TransactionID,
				Mode:          cmd.Mode,
				RecordedAt:    now,
			}
			if err := o.SetAdvancePayment(advance); err != nil {
				return nil, err
			}
			s.metrics.RecordAmount("advance", o.Currency, advance.Amount.InexactFloat64())
			return &pendingEvent{
				eventType: domain.EventAdvancePaymentRecorded,
				reason:    cmd.TransactionID,
				data: map[string]any{
					"amount":         advance.Amount,
					"transaction_id": advance.TransactionID,
					"date":           advance.Date,
				},
			}, nil
		},
	})
}

// IssueCreditNote выпускает кредит-ноту. Входной статус игнорируется: нота всегда pending.
func (s *Service) IssueCreditNote(ctx context.Context, cmd IssueCreditNoteCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpIssueCreditNote, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	noteID := strings.TrimSpace(cmd.CreditNoteID)
	if noteID == "" {
		noteID = s.newID()
	}

	return s.mutate(ctx, mutation{
		op:      OpIssueCreditNote,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, now time.Time) (*pendingEvent, error) {
			date := cmd.Date
			if date.IsZero() {
				date = now
			}
			note, err := o.AddCreditNote(domain.CreditNote{
				ID:            noteID,
				Amount:        cmd.Amount,
				Reason:        cmd.Reason,
				LinkedOrderID: cmd.LinkedOrderID,
				Date:          date,
				Notes:         cmd.Notes,
				IssuedAt:      now,
			})
			if err != nil {
				return nil, err
			}
			s.metrics.RecordAmount("credit_note", o.Currency, note.Amount.InexactFloat64())
			return &pendingEvent{
				eventType: domain.EventCreditNoteIssued,
				reason:    string(note.Reason),
				data: map[string]any{
					"credit_note_id": note.ID,
					"amount":         note.Amount,
					"reason":         note.Reason,
				},
			}, nil
		},
	})
}

// TransitionCreditNote закрывает кредит-ноту и пересчитывает статус.
func (s *Service) TransitionCreditNote(ctx context.Context, cmd TransitionCreditNoteCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpTransitionCreditNote, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	return s.mutate(ctx, mutation{
		op:      OpTransitionCreditNote,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, now time.Time) (*pendingEvent, error) {
			note, err := o.TransitionCreditNote(domain.CreditNoteTransition{
				CreditNoteID:  cmd.CreditNoteID,
				To:            cmd.To,
				LinkedOrderID: cmd.LinkedOrderID,
				Notes:         cmd.Notes,
			}, now)
			if err != nil {
				return nil, err
			}
			return &pendingEvent{
				eventType: domain.EventCreditNoteTransitioned,
				reason:    string(note.Status),
				data: map[string]any{
					"credit_note_id":  note.ID,
					"status":          note.Status,
					"linked_order_id": note.LinkedOrderID,
				},
			}, nil
		},
	})
}

// UpdateDelivery обновляет поставленное количество и дату поставки.
func (s *Service) UpdateDelivery(ctx context.Context, cmd UpdateDeliveryCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpUpdateDelivery, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	return s.mutate(ctx, mutation{
		op:      OpUpdateDelivery,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, _ time.Time) (*pendingEvent, error) {
			if err := o.UpdateDelivery(cmd.QuantityDelivered, cmd.DeliveryDate); err != nil {
				return nil, err
			}
			return &pendingEvent{
				eventType: domain.EventDeliveryUpdated,
				data: map[string]any{
					"quantity_delivered": o.QuantityDelivered,
					"delivery_date":      o.DeliveryDate,
				},
			}, nil
		},
	})
}

// UpdateStatus применяет переход жизненного цикла заказа.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpUpdateStatus, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	return s.mutate(ctx, mutation{
		op:      OpUpdateStatus,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, now time.Time) (*pendingEvent, error) {
			from := o.Status
			if err := o.TransitionStatus(cmd.Status, now); err != nil {
				return nil, err
			}
			return &pendingEvent{
				eventType: domain.EventOrderStatusChanged,
				reason:    string(o.Status),
				data: map[string]any{
					"from": from,
					"to":   o.Status,
				},
			}, nil
		},
	})
}

// UpdateRawMaterialConsumption заменяет учёт сырья, пока он не заблокирован.
func (s *Service) UpdateRawMaterialConsumption(ctx context.Context, cmd UpdateRawMaterialCommand) (domain.Order, error) {
	if err := validateCommand(s.validate, cmd); err != nil {
		s.metrics.ObserveOperation(OpUpdateRawMaterial, metrics.ResultValidationError, 0)
		return domain.Order{}, err
	}

	return s.mutate(ctx, mutation{
		op:      OpUpdateRawMaterial,
		orderID: cmd.OrderID,
		apply: func(o *domain.Order, _ time.Time) (*pendingEvent, error) {
			if err := o.UpdateRawMaterialConsumption(domain.RawMaterialConsumption{
				Status:           cmd.Status,
				ConsumedQuantity: cmd.ConsumedQuantity,
				Locked:           cmd.Locked,
			}); err != nil {
				return nil, err
			}
			return &pendingEvent{
				eventType: domain.EventRawMaterialConsumptionUpdated,
				reason:    string(cmd.Status),
				data: map[string]any{
					"status":            cmd.Status,
					"consumed_quantity": cmd.ConsumedQuantity,
					"locked":            cmd.Locked,
				},
			}, nil
		},
	})
}

// Refresh заново сверяет заказ на текущий момент и сохраняет его, только если статус изменился.
func (s *Service) Refresh(ctx context.Context, orderID string) (order domain.Order, changed bool, err error) {
	return s.RefreshAt(ctx, orderID, time.Time{})
}

// RefreshAt пересверяет заказ на момент asOf; нулевой asOf означает текущее время сервиса.
func (s *Service) RefreshAt(ctx context.Context, orderID string, asOf time.Time) (order domain.Order, changed bool, err error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, false, domain.NewValidationError(domain.ErrOrderIDRequired)
	}

	var before domain.FinancialStatus
	order, err = s.mutate(ctx, mutation{
		op:                  OpRefresh,
		orderID:             orderID,
		at:                  asOf,
		onlyIfStatusChanged: true,
		skipBackpressure:    true,
		apply: func(o *domain.Order, _ time.Time) (*pendingEvent, error) {
			before = o.FinancialStatus
			return nil, nil
		},
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return order, order.FinancialStatus != before, nil
}

// Timeline возвращает историю событий заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, domain.NewValidationError(domain.ErrOrderIDRequired)
	}
	if _, err := s.orders.Get(orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(orderID)
}

// errNoChange прерывает мутацию без сохранения и без ошибки для вызывающего.
var errNoChange = errors.New("no change")

type mutation struct {
	op      string
	orderID string
	apply   func(o *domain.Order, now time.Time) (*pendingEvent, error)
	// at фиксирует момент сверки, при нулевом значении берутся часы сервиса.
	at time.Time

	onlyIfStatusChanged bool
	skipBackpressure    bool
}

// mutate выполняет цикл load → apply к копии → Reconcile → Save.
// При конфликте версий заказ перечитывается и мутация применяется заново.
func (s *Service) mutate(ctx context.Context, m mutation) (result domain.Order, err error) {
	defer s.observe(m.op, time.Now(), &err)
	s.metrics.InFlightStarted()
	defer s.metrics.InFlightFinished()

	if !m.skipBackpressure {
		if err := s.checkBackpressure(); err != nil {
			return domain.Order{}, err
		}
	}

	logger := s.logger.WithFields(log.Fields{"order_id": m.orderID, "operation": m.op})

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Order{}, err
		}

		current, err := s.orders.Get(m.orderID)
		if err != nil {
			return domain.Order{}, err
		}

		now := m.at
		if now.IsZero() {
			now = s.now()
		}
		next := current.Clone()
		event, err := m.apply(&next, now)
		if errors.Is(err, errNoChange) {
			logger.Debug("mutation is a no-op, order unchanged")
			current.Reconcile(now)
			return current, nil
		}
		if err != nil {
			return domain.Order{}, err
		}

		previous := current.FinancialStatus
		next.Reconcile(now)
		if m.onlyIfStatusChanged && next.FinancialStatus == previous {
			return next, nil
		}
		next.UpdatedAt = now

		if err := s.orders.Save(next); err != nil {
			if domain.IsVersionConflict(err) && attempt < s.maxAttempts {
				s.metrics.RecordVersionRetry(m.op)
				logger.WithField("attempt", attempt).Warn("version conflict, retrying from a fresh snapshot")
				if err := s.sleep(ctx, attempt); err != nil {
					return domain.Order{}, err
				}
				continue
			}
			return domain.Order{}, err
		}
		next.Version = current.Version + 1
		s.metrics.RecordReconciliation(string(next.FinancialStatus))

		if event != nil {
			s.emit(next, *event, now)
		}
		if next.FinancialStatus != previous {
			s.metrics.RecordStatusChange(string(previous), string(next.FinancialStatus))
			s.emit(next, pendingEvent{
				eventType: domain.EventFinancialStatusChanged,
				reason:    string(next.FinancialStatus),
				data: map[string]any{
					"from": previous,
					"to":   next.FinancialStatus,
				},
			}, now)
			logger.WithFields(log.Fields{
				"from": previous,
				"to":   next.FinancialStatus,
			}).Info("financial status changed")
		}
		return next, nil
	}
}

func (s *Service) sleep(ctx context.Context, attempt int) error {
	if s.retryBaseDelay <= 0 {
		return nil
	}
	delay := s.retryBaseDelay << (attempt - 1)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) checkBackpressure() error {
	if s.maxOutboxPending <= 0 || s.outbox == nil {
		return nil
	}
	stats, err := s.outbox.Stats()
	if err != nil {
		s.logger.WithError(err).Warn("outbox stats unavailable, skipping backpressure check")
		return nil
	}
	if stats.PendingCount >= s.maxOutboxPending {
		return fmt.Errorf("%w: %d pending", ErrOutboxBacklogFull, stats.PendingCount)
	}
	return nil
}

// emit пишет событие в outbox и timeline. Ошибки логируются: заказ уже сохранён.
func (s *Service) emit(order domain.Order, ev pendingEvent, at time.Time) {
	logger := s.logger.WithFields(log.Fields{"order_id": order.ID, "event": ev.eventType})

	if s.outbox != nil {
		payload, err := json.Marshal(newEnvelope(order, ev, at))
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: domain.AggregateTypeOrder,
			AggregateID:   order.ID,
			EventType:     ev.eventType,
			Payload:       payload,
			CreatedAt:     at,
		}); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		if err := s.timeline.Append(domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     ev.eventType,
			Reason:   ev.reason,
			Occurred: at,
		}); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	s.metrics.ObserveOperation(op, ResultLabel(*errp), time.Since(start))
}

// ResultLabel классифицирует ошибку для label result.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case domain.IsValidation(err):
		return metrics.ResultValidationError
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrCreditNoteNotFound):
		return metrics.ResultNotFound
	case domain.IsVersionConflict(err), domain.IsStateConflict(err), domain.IsAlreadyExists(err):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

func hasPaymentTransaction(o *domain.Order, transactionID string) bool {
	for _, p := range o.Payments {
		if p.TransactionID == transactionID {
			return true
		}
	}
	return false
}
