package domain

import "time"

// AggregateTypeOrder задаёт тип агрегата в outbox.
const AggregateTypeOrder = "order"

// Типы событий заказа, общие для outbox и timeline.
const (
	EventOrderCreated                  = "OrderCreated"
	EventPaymentRecorded               = "PaymentRecorded"
	EventAdvancePaymentRecorded        = "AdvancePaymentRecorded"
	EventCreditNoteIssued              = "CreditNoteIssued"
	EventCreditNoteTransitioned        = "CreditNoteTransitioned"
	EventDeliveryUpdated               = "DeliveryUpdated"
	EventOrderStatusChanged            = "OrderStatusChanged"
	EventRawMaterialConsumptionUpdated = "RawMaterialConsumptionUpdated"
	EventFinancialStatusChanged        = "FinancialStatusChanged"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
