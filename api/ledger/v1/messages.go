// Package ledgerv1 описывает wire-контракт ledger.v1.LedgerService: сообщения, JSON-кодек
// и дескриптор gRPC сервиса. Денежные поля передаются строками decimal.
package ledgerv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTerms описывает условия оплаты заказа.
type PaymentTerms struct {
	CreditPeriodDays  int             `json:"credit_period_days"`
	AdvanceRequired   bool            `json:"advance_required"`
	AdvancePercentage decimal.Decimal `json:"advance_percentage"`
}

// Payment описывает платёж по заказу.
type Payment struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Mode          string          `json:"mode"`
	Notes         string          `json:"notes,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// AdvancePayment описывает предоплату.
type AdvancePayment struct {
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Mode          string          `json:"mode,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// CreditNote описывает кредит-ноту.
type CreditNote struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	LinkedOrderID string          `json:"linked_order_id,omitempty"`
	Date          time.Time       `json:"date"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// RawMaterialConsumption хранит учёт расхода сырья.
type RawMaterialConsumption struct {
	Status           string `json:"status"`
	ConsumedQuantity int64  `json:"consumed_quantity"`
	Locked           bool   `json:"locked"`
}

// Totals содержит производные суммы последней сверки.
type Totals struct {
	TotalOrderValue       decimal.Decimal `json:"total_order_value"`
	TotalPaidAmount       decimal.Decimal `json:"total_paid_amount"`
	UnadjustedCreditTotal decimal.Decimal `json:"unadjusted_credit_total"`
	PendingAmount         decimal.Decimal `json:"pending_amount"`
	DeliveredValue        decimal.Decimal `json:"delivered_value"`
}

// Order представляет заказ вместе с результатом сверки.
type Order struct {
	ID                     string                 `json:"id"`
	CustomerID             string                 `json:"customer_id"`
	ProductID              string                 `json:"product_id"`
	Currency               string                 `json:"currency"`
	QuantityOrdered        int64                  `json:"quantity_ordered"`
	QuantityDelivered      int64                  `json:"quantity_delivered"`
	SellingPrice           decimal.Decimal        `json:"selling_price"`
	DeliveryCost           decimal.Decimal        `json:"delivery_cost"`
	DeliveryDate           time.Time              `json:"delivery_date"`
	PaymentDueDate         *time.Time             `json:"payment_due_date,omitempty"`
	OrderCompletionDate    *time.Time             `json:"order_completion_date,omitempty"`
	Status                 string                 `json:"status"`
	FinancialStatus        string                 `json:"financial_status"`
	PaymentTerms           PaymentTerms           `json:"payment_terms"`
	AdvancePayment         *AdvancePayment        `json:"advance_payment,omitempty"`
	Payments               []Payment              `json:"payments"`
	CreditNotes            []CreditNote           `json:"credit_notes"`
	RawMaterialConsumption RawMaterialConsumption `json:"raw_material_consumption"`
	Totals                 Totals                 `json:"totals"`
	ReconciledAt           time.Time              `json:"reconciled_at"`
	Version                int64                  `json:"version"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

// TimelineEvent описывает запись истории заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// CreateOrderRequest создаёт заказ.
type CreateOrderRequest struct {
	OrderID         string          `json:"order_id,omitempty"`
	CustomerID      string          `json:"customer_id"`
	ProductID       string          `json:"product_id"`
	Currency        string          `json:"currency,omitempty"`
	QuantityOrdered int64           `json:"quantity_ordered"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	DeliveryCost    decimal.Decimal `json:"delivery_cost"`
	DeliveryDate    time.Time       `json:"delivery_date"`
	PaymentTerms    PaymentTerms    `json:"payment_terms"`
}

// OrderResponse возвращается мутациями и содержит заказ после сверки.
type OrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

type ListOrdersRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	PageSize   int32  `json:"page_size,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

// RecordPaymentRequest добавляет платёж. Повтор с тем же transaction_id ничего не меняет.
type RecordPaymentRequest struct {
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Mode          string          `json:"mode"`
	Notes         string          `json:"notes,omitempty"`
}

type SetAdvancePaymentRequest struct {
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Mode          string          `json:"mode,omitempty"`
}

type IssueCreditNoteRequest struct {
	OrderID       string          `json:"order_id"`
	CreditNoteID  string          `json:"credit_note_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	LinkedOrderID string          `json:"linked_order_id,omitempty"`
	Date          time.Time       `json:"date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type TransitionCreditNoteRequest struct {
	OrderID       string `json:"order_id"`
	CreditNoteID  string `json:"credit_note_id"`
	To            string `json:"to"`
	LinkedOrderID string `json:"linked_order_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type UpdateDeliveryRequest struct {
	OrderID           string    `json:"order_id"`
	QuantityDelivered int64     `json:"quantity_delivered"`
	DeliveryDate      time.Time `json:"delivery_date,omitempty"`
}

type UpdateStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type UpdateRawMaterialRequest struct {
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ConsumedQuantity int64  `json:"consumed_quantity"`
	Locked           bool   `json:"locked"`
}

type RefreshOrderRequest struct {
	OrderID string `json:"order_id"`
}

// RefreshOrderResponse сообщает, изменился ли сохранённый финансовый статус.
type RefreshOrderResponse struct {
	Order   *Order `json:"order"`
	Changed bool   `json:"changed"`
}

type GetTimelineRequest struct {
	OrderID string `json:"order_id"`
}

type GetTimelineResponse struct {
	Events []TimelineEvent `json:"events"`
}
