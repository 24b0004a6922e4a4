// Package grpcsvc публикует ledger.Service как gRPC сервис ledger.v1.LedgerService.
package grpcsvc

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 1000
	defaultIdempotencyTTL  = 24 * time.Hour
)

// Ledger описывает операции ledger.Service, доступные через gRPC.
type Ledger interface {
	CreateOrder(ctx context.Context, cmd ledger.CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, q ledger.ListOrdersQuery) ([]domain.Order, error)
	RecordPayment(ctx context.Context, cmd ledger.RecordPaymentCommand) (domain.Order, error)
	SetAdvancePayment(ctx context.Context, cmd ledger.SetAdvancePaymentCommand) (domain.Order, error)
	IssueCreditNote(ctx context.Context, cmd ledger.IssueCreditNoteCommand) (domain.Order, error)
	TransitionCreditNote(ctx context.Context, cmd ledger.TransitionCreditNoteCommand) (domain.Order, error)
	UpdateDelivery(ctx context.Context, cmd ledger.UpdateDeliveryCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd ledger.UpdateStatusCommand) (domain.Order, error)
	UpdateRawMaterialConsumption(ctx context.Context, cmd ledger.UpdateRawMaterialCommand) (domain.Order, error)
	Refresh(ctx context.Context, orderID string) (domain.Order, bool, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// Option настраивает LedgerService.
type Option func(*LedgerService)

// WithIdempotencyTTL задаёт срок хранения ответов по idempotency-key.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *LedgerService) {
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithClock подменяет часы для расчёта TTL.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		if now != nil {
			s.now = now
		}
	}
}

// LedgerService реализует ledgerv1.LedgerServiceServer.
type LedgerService struct {
	ledgerv1.UnimplementedLedgerServiceServer

	ledger         Ledger
	idemRepo       domain.IdempotencyRepository
	logger         *log.Entry
	idempotencyTTL time.Duration
	now            func() time.Time
}

// NewLedgerService конструирует сервис. idemRepo может быть nil: тогда idempotency-key не требуется.
func NewLedgerService(svc Ledger, idemRepo domain.IdempotencyRepository, logger *log.Entry, opts ...Option) *LedgerService {
	if logger == nil {
		logger = log.New().WithField("component", "ledger-grpc")
	}
	s := &LedgerService{
		ledger:         svc,
		idemRepo:       idemRepo,
		logger:         logger,
		idempotencyTTL: defaultIdempotencyTTL,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder создаёт заказ.
func (s *LedgerService) CreateOrder(ctx context.Context, req *ledgerv1.CreateOrderRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_CreateOrder_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.CreateOrder(ctx, ledger.CreateOrderCommand{
				OrderID:         req.OrderID,
				CustomerID:      req.CustomerID,
				ProductID:       req.ProductID,
				Currency:        req.Currency,
				QuantityOrdered: req.QuantityOrdered,
				SellingPrice:    req.SellingPrice,
				DeliveryCost:    req.DeliveryCost,
				DeliveryDate:    req.DeliveryDate,
				PaymentTerms: ledger.PaymentTermsInput{
					CreditPeriodDays:  req.PaymentTerms.CreditPeriodDays,
					AdvanceRequired:   req.PaymentTerms.AdvanceRequired,
					AdvancePercentage: req.PaymentTerms.AdvancePercentage,
				},
			})
			return s.orderResponse(order, err, "CreateOrder", req.OrderID)
		},
	)
}

// GetOrder возвращает заказ, сверенный на текущий момент, и его таймлайн.
func (s *LedgerService) GetOrder(ctx context.Context, req *ledgerv1.GetOrderRequest) (*ledgerv1.GetOrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.ledger.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder", req.OrderID)
	}

	resp := &ledgerv1.GetOrderResponse{Order: ledgerv1.OrderFromDomain(order)}
	events, err := s.ledger.Timeline(ctx, req.OrderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", req.OrderID).Warn("failed to list timeline events")
	} else {
		resp.Timeline = ledgerv1.TimelineFromDomain(events)
	}
	return resp, nil
}

// ListOrders возвращает заказы клиента.
func (s *LedgerService) ListOrders(ctx context.Context, req *ledgerv1.ListOrdersRequest) (*ledgerv1.ListOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	limit := int(req.PageSize)
	switch {
	case limit <= 0:
		limit = defaultListOrdersLimit
	case limit > maxListOrdersLimit:
		limit = maxListOrdersLimit
	}

	orders, err := s.ledger.ListOrders(ctx, ledger.ListOrdersQuery{CustomerID: req.CustomerID, Limit: limit})
	if err != nil {
		return nil, s.toStatus(err, "ListOrders", "")
	}
	return &ledgerv1.ListOrdersResponse{Orders: ledgerv1.OrdersFromDomain(orders)}, nil
}

// RecordPayment добавляет платёж.
func (s *LedgerService) RecordPayment(ctx context.Context, req *ledgerv1.RecordPaymentRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_RecordPayment_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.RecordPayment(ctx, ledger.RecordPaymentCommand{
				OrderID:       req.OrderID,
				PaymentID:     req.PaymentID,
				Amount:        req.Amount,
				Date:          req.Date,
				TransactionID: req.TransactionID,
				Mode:          domain.PaymentMode(req.Mode),
				Notes:         req.Notes,
			})
			return s.orderResponse(order, err, "RecordPayment", req.OrderID)
		},
	)
}

// SetAdvancePayment фиксирует предоплату.
func (s *LedgerService) SetAdvancePayment(ctx context.Context, req *ledgerv1.SetAdvancePaymentRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_SetAdvancePayment_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.SetAdvancePayment(ctx, ledger.SetAdvancePaymentCommand{
				OrderID:       req.OrderID,
				Amount:        req.Amount,
				Date:          req.Date,
				TransactionID: req.TransactionID,
				Mode:          domain.PaymentMode(req.Mode),
			})
			return s.orderResponse(order, err, "SetAdvancePayment", req.OrderID)
		},
	)
}

// IssueCreditNote выпускает кредит-ноту.
func (s *LedgerService) IssueCreditNote(ctx context.Context, req *ledgerv1.IssueCreditNoteRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_IssueCreditNote_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.IssueCreditNote(ctx, ledger.IssueCreditNoteCommand{
				OrderID:       req.OrderID,
				CreditNoteID:  req.CreditNoteID,
				Amount:        req.Amount,
				Reason:        domain.CreditNoteReason(req.Reason),
				LinkedOrderID: req.LinkedOrderID,
				Date:          req.Date,
				Notes:         req.Notes,
			})
			return s.orderResponse(order, err, "IssueCreditNote", req.OrderID)
		},
	)
}

// TransitionCreditNote закрывает кредит-ноту (adjusted или refunded).
func (s *LedgerService) TransitionCreditNote(ctx context.Context, req *ledgerv1.TransitionCreditNoteRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_TransitionCreditNote_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.TransitionCreditNote(ctx, ledger.TransitionCreditNoteCommand{
				OrderID:       req.OrderID,
				CreditNoteID:  req.CreditNoteID,
				To:            domain.CreditNoteStatus(req.To),
				LinkedOrderID: req.LinkedOrderID,
				Notes:         req.Notes,
			})
			return s.orderResponse(order, err, "TransitionCreditNote", req.OrderID)
		},
	)
}

// UpdateDelivery обновляет поставку.
func (s *LedgerService) UpdateDelivery(ctx context.Context, req *ledgerv1.UpdateDeliveryRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_UpdateDelivery_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.UpdateDelivery(ctx, ledger.UpdateDeliveryCommand{
				OrderID:           req.OrderID,
				QuantityDelivered: req.QuantityDelivered,
				DeliveryDate:      req.DeliveryDate,
			})
			return s.orderResponse(order, err, "UpdateDelivery", req.OrderID)
		},
	)
}

// UpdateStatus переводит заказ по жизненному циклу.
func (s *LedgerService) UpdateStatus(ctx context.Context, req *ledgerv1.UpdateStatusRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_UpdateStatus_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.UpdateStatus(ctx, ledger.UpdateStatusCommand{
				OrderID: req.OrderID,
				Status:  domain.OrderStatus(req.Status),
			})
			return s.orderResponse(order, err, "UpdateStatus", req.OrderID)
		},
	)
}

// UpdateRawMaterial заменяет учёт расхода сырья.
func (s *LedgerService) UpdateRawMaterial(ctx context.Context, req *ledgerv1.UpdateRawMaterialRequest) (*ledgerv1.OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_UpdateRawMaterial_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			order, err := s.ledger.UpdateRawMaterialConsumption(ctx, ledger.UpdateRawMaterialCommand{
				OrderID:          req.OrderID,
				Status:           domain.RawMaterialStatus(req.Status),
				ConsumedQuantity: req.ConsumedQuantity,
				Locked:           req.Locked,
			})
			return s.orderResponse(order, err, "UpdateRawMaterial", req.OrderID)
		},
	)
}

// RefreshOrder пересверяет заказ на текущий момент. Повторный вызов безопасен без idempotency-key.
func (s *LedgerService) RefreshOrder(ctx context.Context, req *ledgerv1.RefreshOrderRequest) (*ledgerv1.RefreshOrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, changed, err := s.ledger.Refresh(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "RefreshOrder", req.OrderID)
	}
	return &ledgerv1.RefreshOrderResponse{Order: ledgerv1.OrderFromDomain(order), Changed: changed}, nil
}

// GetTimeline возвращает историю заказа.
func (s *LedgerService) GetTimeline(ctx context.Context, req *ledgerv1.GetTimelineRequest) (*ledgerv1.GetTimelineResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	events, err := s.ledger.Timeline(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetTimeline", req.OrderID)
	}
	return &ledgerv1.GetTimelineResponse{Events: ledgerv1.TimelineFromDomain(events)}, nil
}

func (s *LedgerService) orderResponse(order domain.Order, err error, operation, orderID string) (*ledgerv1.OrderResponse, error) {
	if err != nil {
		return nil, s.toStatus(err, operation, orderID)
	}
	return &ledgerv1.OrderResponse{Order: ledgerv1.OrderFromDomain(order)}, nil
}

// toStatus переводит ошибку ledger в gRPC статус.
func (s *LedgerService) toStatus(err error, operation, orderID string) error {
	code, msg := Code(err)

	entry := s.logger.WithError(err).WithField("operation", operation)
	if orderID != "" {
		entry = entry.WithField("order_id", orderID)
	}
	if code == codes.Internal {
		entry.Error("ledger operation failed")
	} else {
		entry.WithField("code", code.String()).Debug("ledger operation rejected")
	}

	return status.Error(code, msg)
}

// Code сопоставляет ошибку ledger с кодом gRPC и текстом для клиента.
func Code(err error) (codes.Code, string) {
	switch {
	case err == nil:
		return codes.OK, ""
	case errors.Is(err, context.Canceled):
		return codes.Canceled, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, err.Error()
	case domain.IsValidation(err):
		return codes.InvalidArgument, err.Error()
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrCreditNoteNotFound):
		return codes.NotFound, err.Error()
	case domain.IsAlreadyExists(err):
		return codes.AlreadyExists, err.Error()
	case domain.IsVersionConflict(err):
		return codes.Aborted, domain.ErrOrderVersionConflict.Error()
	case domain.IsStateConflict(err):
		return codes.FailedPrecondition, err.Error()
	case errors.Is(err, ledger.ErrOutboxBacklogFull):
		return codes.ResourceExhausted, ledger.ErrOutboxBacklogFull.Error()
	default:
		return codes.Internal, "internal error"
	}
}
