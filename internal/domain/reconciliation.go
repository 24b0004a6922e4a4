package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialStatus задаёт производную классификацию платёжной позиции заказа.
type FinancialStatus string

const (
	FinancialStatusPending           FinancialStatus = "pending"
	FinancialStatusAdvanceReceived   FinancialStatus = "advance_received"
	FinancialStatusPartiallyPaid     FinancialStatus = "partially_paid"
	FinancialStatusFullyPaid         FinancialStatus = "fully_paid"
	FinancialStatusOverdue           FinancialStatus = "overdue"
	FinancialStatusCreditNotePending FinancialStatus = "credit_note_pending"
)

// Valid проверяет, что статус входит в перечень.
func (s FinancialStatus) Valid() bool {
	switch s {
	case FinancialStatusPending, FinancialStatusAdvanceReceived, FinancialStatusPartiallyPaid,
		FinancialStatusFullyPaid, FinancialStatusOverdue, FinancialStatusCreditNotePending:
		return true
	default:
		return false
	}
}

// Totals содержит денежные производные заказа.
type Totals struct {
	TotalOrderValue       decimal.Decimal
	TotalPaidAmount       decimal.Decimal
	UnadjustedCreditTotal decimal.Decimal
	// PendingAmount не ограничивается снизу: отрицательное значение означает переплату.
	PendingAmount  decimal.Decimal
	DeliveredValue decimal.Decimal
}

// Reconciliation хранит результат сверки заказа.
type Reconciliation struct {
	Totals
	FinancialStatus FinancialStatus
}

type statusInput struct {
	totals             Totals
	advanceAmount      decimal.Decimal
	pendingCreditNotes int
	deliveryDate       time.Time
	creditPeriodDays   int
	now                time.Time
}

type statusRule struct {
	status  FinancialStatus
	matches func(in statusInput) bool
}

// financialStatusRules проверяются по порядку, побеждает первое совпадение.
var financialStatusRules = []statusRule{
	{
		status:  FinancialStatusFullyPaid,
		matches: func(in statusInput) bool { return !in.totals.PendingAmount.IsPositive() },
	},
	{
		status:  FinancialStatusAdvanceReceived,
		matches: func(in statusInput) bool { return in.advanceAmount.IsPositive() },
	},
	{
		status:  FinancialStatusPartiallyPaid,
		matches: func(in statusInput) bool { return in.totals.TotalPaidAmount.IsPositive() },
	},
	{
		status:  FinancialStatusCreditNotePending,
		matches: func(in statusInput) bool { return in.pendingCreditNotes > 0 },
	},
	{
		status: FinancialStatusOverdue,
		matches: func(in statusInput) bool {
			return IsOverdue(in.deliveryDate, in.creditPeriodDays, in.now)
		},
	},
}

// Reconcile является чистой функцией: по снимку заказа и моменту now считает итоги и финансовый статус.
// Паникует с PreconditionViolation, если в заказ попала кредит-нота с неизвестным статусом.
func Reconcile(order Order, now time.Time) Reconciliation {
	totals := Totals{
		TotalOrderValue: decimal.NewFromInt(order.QuantityOrdered).Mul(order.SellingPrice).Add(order.DeliveryCost),
		TotalPaidAmount: decimal.Zero,
		DeliveredValue:  decimal.NewFromInt(order.QuantityDelivered).Mul(order.SellingPrice),
	}

	advance := decimal.Zero
	if order.AdvancePayment != nil {
		advance = order.AdvancePayment.Amount
	}
	totals.TotalPaidAmount = advance
	for _, p := range order.Payments {
		totals.TotalPaidAmount = totals.TotalPaidAmount.Add(p.Amount)
	}

	unadjusted := decimal.Zero
	pendingNotes := 0
	for _, c := range order.CreditNotes {
		if !c.Status.Valid() {
			panic(PreconditionViolation{
				Reason: fmt.Sprintf("credit note %q has unknown status %q", c.ID, c.Status),
			})
		}
		if c.Status != CreditNoteStatusAdjusted {
			unadjusted = unadjusted.Add(c.Amount)
		}
		if c.Status == CreditNoteStatusPending {
			pendingNotes++
		}
	}
	totals.UnadjustedCreditTotal = unadjusted
	totals.PendingAmount = totals.TotalOrderValue.Sub(totals.TotalPaidAmount).Sub(unadjusted)

	in := statusInput{
		totals:             totals,
		advanceAmount:      advance,
		pendingCreditNotes: pendingNotes,
		deliveryDate:       order.DeliveryDate,
		creditPeriodDays:   order.PaymentTerms.CreditPeriodDays,
		now:                now,
	}

	status := FinancialStatusPending
	for _, rule := range financialStatusRules {
		if rule.matches(in) {
			status = rule.status
			break
		}
	}

	return Reconciliation{Totals: totals, FinancialStatus: status}
}

// IsOverdue сообщает, что срок оплаты истёк строго после deliveryDate + creditPeriodDays.
// При нулевой отсрочке заказ никогда не считается просроченным.
func IsOverdue(deliveryDate time.Time, creditPeriodDays int, now time.Time) bool {
	if creditPeriodDays <= 0 {
		return false
	}
	return now.After(PaymentDueDate(deliveryDate, creditPeriodDays))
}

// PaymentDueDate возвращает крайний срок оплаты.
func PaymentDueDate(deliveryDate time.Time, creditPeriodDays int) time.Time {
	return deliveryDate.AddDate(0, 0, creditPeriodDays)
}
