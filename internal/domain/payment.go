package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale задаёт число знаков после запятой, которое хранилище сохраняет без округления.
const MoneyScale = 4

func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// PaymentMode описывает канал поступления денег.
type PaymentMode string

const (
	PaymentModeUPI    PaymentMode = "upi"
	PaymentModeNEFT   PaymentMode = "neft"
	PaymentModeRTGS   PaymentMode = "rtgs"
	PaymentModeCash   PaymentMode = "cash"
	PaymentModeCheque PaymentMode = "cheque"
)

// Valid проверяет, что способ оплаты входит в поддерживаемый перечень.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeUPI, PaymentModeNEFT, PaymentModeRTGS, PaymentModeCash, PaymentModeCheque:
		return true
	default:
		return false
	}
}

// Payment описывает очередной платёж по заказу. После добавления не изменяется.
type Payment struct {
	ID            string
	Amount        decimal.Decimal
	Date          time.Time
	TransactionID string // Может быть пустым для наличных.
	Mode          PaymentMode
	Notes         string
	RecordedAt    time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if !p.Amount.IsPositive() {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	if !fitsMoneyScale(p.Amount) {
		errs = append(errs, ErrAmountScaleInvalid)
	}
	if p.Date.IsZero() {
		errs = append(errs, ErrPaymentDateRequired)
	}
	if !p.Mode.Valid() {
		errs = append(errs, ErrPaymentModeInvalid)
	}

	return errs
}

// AdvancePayment описывает единственную предоплату по заказу, отдельная от очереди платежей.
type AdvancePayment struct {
	Amount        decimal.Decimal
	Date          time.Time
	TransactionID string
	Mode          PaymentMode // Необязателен; если указан, должен быть валиден.
	RecordedAt    time.Time
}

// Validate проверяет поля предоплаты.
func (a *AdvancePayment) Validate() []error {
	var errs []error

	if !a.Amount.IsPositive() {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	if !fitsMoneyScale(a.Amount) {
		errs = append(errs, ErrAmountScaleInvalid)
	}
	if a.Date.IsZero() {
		errs = append(errs, ErrPaymentDateRequired)
	}
	if a.Mode != "" && !a.Mode.Valid() {
		errs = append(errs, ErrPaymentModeInvalid)
	}

	return errs
}
