package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

// PaymentTermsInput задаёт условия оплаты в запросе на создание заказа.
type PaymentTermsInput struct {
	CreditPeriodDays  int             `json:"credit_period_days" validate:"lte=3650"`
	AdvanceRequired   bool            `json:"advance_required"`
	AdvancePercentage decimal.Decimal `json:"advance_percentage"`
}

// CreateOrderCommand создаёт заказ. Пустой OrderID заменяется сгенерированным UUID.
type CreateOrderCommand struct {
	OrderID         string            `json:"order_id" validate:"omitempty,max=64"`
	CustomerID      string            `json:"customer_id" validate:"required,max=64"`
	ProductID       string            `json:"product_id" validate:"required,max=64"`
	Currency        string            `json:"currency" validate:"omitempty,len=3,alpha,uppercase"`
	QuantityOrdered int64             `json:"quantity_ordered"`
	SellingPrice    decimal.Decimal   `json:"selling_price"`
	DeliveryCost    decimal.Decimal   `json:"delivery_cost"`
	DeliveryDate    time.Time         `json:"delivery_date"`
	PaymentTerms    PaymentTermsInput `json:"payment_terms"`
}

// RecordPaymentCommand добавляет платёж к заказу.
type RecordPaymentCommand struct {
	OrderID       string             `json:"order_id" validate:"required,max=64"`
	PaymentID     string             `json:"payment_id" validate:"omitempty,max=64"`
	Amount        decimal.Decimal    `json:"amount"`
	Date          time.Time          `json:"date"`
	TransactionID string             `json:"transaction_id" validate:"omitempty,max=128"`
	Mode          domain.PaymentMode `json:"mode"`
	Notes         string             `json:"notes" validate:"max=1024"`
}

// SetAdvancePaymentCommand фиксирует предоплату.
type SetAdvancePaymentCommand struct {
	OrderID       string             `json:"order_id" validate:"required,max=64"`
	Amount        decimal.Decimal    `json:"amount"`
	Date          time.Time          `json:"date"`
	TransactionID string             `json:"transaction_id" validate:"omitempty,max=128"`
	Mode          domain.PaymentMode `json:"mode"`
}

// IssueCreditNoteCommand выпускает кредит-ноту в статусе pending.
type IssueCreditNoteCommand struct {
	OrderID       string                  `json:"order_id" validate:"required,max=64"`
	CreditNoteID  string                  `json:"credit_note_id" validate:"omitempty,max=64"`
	Amount        decimal.Decimal         `json:"amount"`
	Reason        domain.CreditNoteReason `json:"reason"`
	LinkedOrderID string                  `json:"linked_order_id" validate:"omitempty,max=64"`
	Date          time.Time               `json:"date"`
	Notes         string                  `json:"notes" validate:"max=1024"`
}

// TransitionCreditNoteCommand передаёт сигнал workflow о закрытии кредит-ноты.
type TransitionCreditNoteCommand struct {
	OrderID       string                  `json:"order_id" validate:"required,max=64"`
	CreditNoteID  string                  `json:"credit_note_id" validate:"required,max=64"`
	To            domain.CreditNoteStatus `json:"to"`
	LinkedOrderID string                  `json:"linked_order_id" validate:"omitempty,max=64"`
	Notes         string                  `json:"notes" validate:"max=1024"`
}

// UpdateDeliveryCommand обновляет поставку.
type UpdateDeliveryCommand struct {
	OrderID           string    `json:"order_id" validate:"required,max=64"`
	QuantityDelivered int64     `json:"quantity_delivered"`
	DeliveryDate      time.Time `json:"delivery_date"`
}

// UpdateStatusCommand переводит заказ по жизненному циклу.
type UpdateStatusCommand struct {
	OrderID string             `json:"order_id" validate:"required,max=64"`
	Status  domain.OrderStatus `json:"status"`
}

// UpdateRawMaterialCommand заменяет учёт сырья. Locked=true блокирует дальнейшие изменения.
type UpdateRawMaterialCommand struct {
	OrderID          string                   `json:"order_id" validate:"required,max=64"`
	Status           domain.RawMaterialStatus `json:"status"`
	ConsumedQuantity int64                    `json:"consumed_quantity"`
	Locked           bool                     `json:"locked"`
}

// ListOrdersQuery фильтрует список заказов. Пустой CustomerID возвращает все заказы.
type ListOrdersQuery struct {
	CustomerID string `json:"customer_id" validate:"omitempty,max=64"`
	Limit      int    `json:"limit" validate:"gte=0,lte=1000"`
}
