package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditNoteReason задаёт основание для уменьшения суммы к оплате.
type CreditNoteReason string

const (
	CreditNoteReasonCancellation   CreditNoteReason = "cancellation"
	CreditNoteReasonReturn         CreditNoteReason = "return"
	CreditNoteReasonRateDifference CreditNoteReason = "rate_difference"
	CreditNoteReasonQualityIssue   CreditNoteReason = "quality_issue"
)

// Valid проверяет, что причина поддерживается.
func (r CreditNoteReason) Valid() bool {
	switch r {
	case CreditNoteReasonCancellation, CreditNoteReasonReturn,
		CreditNoteReasonRateDifference, CreditNoteReasonQualityIssue:
		return true
	default:
		return false
	}
}

// CreditNoteStatus описывает собственный жизненный цикл кредит-ноты.
type CreditNoteStatus string

const (
	// CreditNoteStatusPending — нота выписана, но ещё не закрыта.
	CreditNoteStatusPending CreditNoteStatus = "pending"
	// CreditNoteStatusAdjusted — сумма зачтена в заказ-замену.
	CreditNoteStatusAdjusted CreditNoteStatus = "adjusted"
	// CreditNoteStatusRefunded — деньги возвращены клиенту.
	CreditNoteStatusRefunded CreditNoteStatus = "refunded"
)

// Valid проверяет, что статус входит в перечень.
func (s CreditNoteStatus) Valid() bool {
	switch s {
	case CreditNoteStatusPending, CreditNoteStatusAdjusted, CreditNoteStatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s CreditNoteStatus) IsTerminal() bool {
	return s == CreditNoteStatusAdjusted || s == CreditNoteStatusRefunded
}

// CreditNote уменьшает сумму, которую должен клиент.
// Amount и Reason неизменны после выпуска; меняется только Status.
type CreditNote struct {
	ID            string
	Amount        decimal.Decimal
	Reason        CreditNoteReason
	LinkedOrderID string
	Date          time.Time
	Status        CreditNoteStatus
	Notes         string
	IssuedAt      time.Time
	ResolvedAt    *time.Time
}

// Validate проверяет поля кредит-ноты перед добавлением в заказ.
func (c *CreditNote) Validate() []error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, ErrCreditNoteIDRequired)
	}
	if !c.Amount.IsPositive() {
		errs = append(errs, ErrCreditNoteAmountInvalid)
	}
	if !fitsMoneyScale(c.Amount) {
		errs = append(errs, ErrAmountScaleInvalid)
	}
	if !c.Reason.Valid() {
		errs = append(errs, ErrCreditNoteReasonInvalid)
	}

	return errs
}

// CreditNoteTransition передаёт внешний сигнал workflow о закрытии кредит-ноты.
type CreditNoteTransition struct {
	CreditNoteID  string
	To            CreditNoteStatus
	LinkedOrderID string
	Notes         string
}
