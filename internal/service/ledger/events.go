package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

// EventEnvelope задаёт payload сообщения outbox. Несёт снимок финансового положения заказа,
// чтобы потребители не запрашивали заказ повторно.
type EventEnvelope struct {
	EventType       string                 `json:"event_type"`
	OrderID         string                 `json:"order_id"`
	CustomerID      string                 `json:"customer_id"`
	Currency        string                 `json:"currency"`
	FinancialStatus domain.FinancialStatus `json:"financial_status"`
	TotalOrderValue decimal.Decimal        `json:"total_order_value"`
	TotalPaid       decimal.Decimal        `json:"total_paid_amount"`
	PendingAmount   decimal.Decimal        `json:"pending_amount"`
	Version         int64                  `json:"version"`
	OccurredAt      time.Time              `json:"occurred_at"`
	Data            map[string]any         `json:"data,omitempty"`
}

// DecodeEventEnvelope разбирает payload outbox-сообщения.
func DecodeEventEnvelope(payload []byte) (EventEnvelope, error) {
	var env EventEnvelope
	err := json.Unmarshal(payload, &env)
	return env, err
}

// pendingEvent хранит событие, которое нужно отправить после успешного сохранения.
type pendingEvent struct {
	eventType string
	reason    string
	data      map[string]any
}

func newEnvelope(order domain.Order, ev pendingEvent, at time.Time) EventEnvelope {
	return EventEnvelope{
		EventType:       ev.eventType,
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		Currency:        order.Currency,
		FinancialStatus: order.FinancialStatus,
		TotalOrderValue: order.Totals.TotalOrderValue,
		TotalPaid:       order.Totals.TotalPaidAmount,
		PendingAmount:   order.Totals.PendingAmount,
		Version:         order.Version,
		OccurredAt:      at,
		Data:            ev.data,
	}
}
