package ledgerv1

import (
	"time"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

// OrderFromDomain переводит агрегат в wire-представление.
func OrderFromDomain(order domain.Order) *Order {
	out := &Order{
		ID:                  order.ID,
		CustomerID:          order.CustomerID,
		ProductID:           order.ProductID,
		Currency:            order.Currency,
		QuantityOrdered:     order.QuantityOrdered,
		QuantityDelivered:   order.QuantityDelivered,
		SellingPrice:        order.SellingPrice,
		DeliveryCost:        order.DeliveryCost,
		DeliveryDate:        order.DeliveryDate,
		OrderCompletionDate: copyTime(order.OrderCompletionDate),
		Status:              string(order.Status),
		FinancialStatus:     string(order.FinancialStatus),
		PaymentTerms: PaymentTerms{
			CreditPeriodDays:  order.PaymentTerms.CreditPeriodDays,
			AdvanceRequired:   order.PaymentTerms.AdvanceRequired,
			AdvancePercentage: order.PaymentTerms.AdvancePercentage,
		},
		Payments:    make([]Payment, 0, len(order.Payments)),
		CreditNotes: make([]CreditNote, 0, len(order.CreditNotes)),
		RawMaterialConsumption: RawMaterialConsumption{
			Status:           string(order.RawMaterialConsumption.Status),
			ConsumedQuantity: order.RawMaterialConsumption.ConsumedQuantity,
			Locked:           order.RawMaterialConsumption.Locked,
		},
		Totals: Totals{
			TotalOrderValue:       order.Totals.TotalOrderValue,
			TotalPaidAmount:       order.Totals.TotalPaidAmount,
			UnadjustedCreditTotal: order.Totals.UnadjustedCreditTotal,
			PendingAmount:         order.Totals.PendingAmount,
			DeliveredValue:        order.Totals.DeliveredValue,
		},
		ReconciledAt: order.ReconciledAt,
		Version:      order.Version,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}

	if order.PaymentTerms.CreditPeriodDays > 0 && !order.DeliveryDate.IsZero() {
		due := domain.PaymentDueDate(order.DeliveryDate, order.PaymentTerms.CreditPeriodDays)
		out.PaymentDueDate = &due
	}
	if adv := order.AdvancePayment; adv != nil {
		out.AdvancePayment = &AdvancePayment{
			Amount:        adv.Amount,
			Date:          adv.Date,
			TransactionID: adv.TransactionID,
			Mode:          string(adv.Mode),
			RecordedAt:    adv.RecordedAt,
		}
	}
	for _, p := range order.Payments {
		out.Payments = append(out.Payments, Payment{
			ID:            p.ID,
			Amount:        p.Amount,
			Date:          p.Date,
			TransactionID: p.TransactionID,
			Mode:          string(p.Mode),
			Notes:         p.Notes,
			RecordedAt:    p.RecordedAt,
		})
	}
	for _, cn := range order.CreditNotes {
		out.CreditNotes = append(out.CreditNotes, CreditNote{
			ID:            cn.ID,
			Amount:        cn.Amount,
			Reason:        string(cn.Reason),
			LinkedOrderID: cn.LinkedOrderID,
			Date:          cn.Date,
			Status:        string(cn.Status),
			Notes:         cn.Notes,
			IssuedAt:      cn.IssuedAt,
			ResolvedAt:    copyTime(cn.ResolvedAt),
		})
	}

	return out
}

// OrdersFromDomain переводит список заказов.
func OrdersFromDomain(orders []domain.Order) []*Order {
	out := make([]*Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, OrderFromDomain(order))
	}
	return out
}

// TimelineFromDomain переводит события таймлайна.
func TimelineFromDomain(events []domain.TimelineEvent) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
