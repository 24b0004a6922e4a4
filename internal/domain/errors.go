package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation — общий маркер ошибок валидации входных данных мутации.
	ErrValidation = errors.New("validation failed")

	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора продукта.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка некорректного заказанного количества (<= 0).
	ErrQuantityOrderedInvalid = errors.New("quantity_ordered must be greater than zero")
	// Ошибка отрицательного количества поставки.
	ErrQuantityDeliveredNegative = errors.New("quantity_delivered must be non-negative")
	// Ошибка превышения поставленного количества над заказанным.
	ErrQuantityDeliveredExceedsOrdered = errors.New("quantity_delivered must not exceed quantity_ordered")
	// Ошибка отрицательной цены продажи.
	ErrSellingPriceNegative = errors.New("selling_price must be non-negative")
	// Ошибка отрицательной стоимости доставки.
	ErrDeliveryCostNegative = errors.New("delivery_cost must be non-negative")
	// Ошибка отсутствующей даты поставки.
	ErrDeliveryDateRequired = errors.New("delivery_date is required")
	// Ошибка отрицательного кредитного периода.
	ErrCreditPeriodNegative = errors.New("credit_period_days must be non-negative")
	// Ошибка процента предоплаты вне диапазона 0..100.
	ErrAdvancePercentageInvalid = errors.New("advance_percentage must be between 0 and 100")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is not recognized")
	// Ошибка суммы с точностью больше MoneyScale знаков после запятой.
	ErrAmountScaleInvalid = errors.New("amounts must have at most 4 decimal places")
	// Ошибка суммы платежа (<= 0).
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// Ошибка отсутствующей даты платежа.
	ErrPaymentDateRequired = errors.New("payment date is required")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentModeInvalid = errors.New("payment mode is not recognized")
	// Ошибка отсутствующего идентификатора кредит-ноты.
	ErrCreditNoteIDRequired = errors.New("credit note id is required")
	// Ошибка суммы кредит-ноты (<= 0).
	ErrCreditNoteAmountInvalid = errors.New("credit note amount must be greater than zero")
	// Ошибка неизвестной причины кредит-ноты.
	ErrCreditNoteReasonInvalid = errors.New("credit note reason is not recognized")
	// Ошибка недопустимого целевого статуса кредит-ноты.
	ErrCreditNoteStatusInvalid = errors.New("credit note status is not recognized")
	// Ошибка неизвестного статуса расхода сырья.
	ErrRawMaterialStatusInvalid = errors.New("raw material status is not recognized")
	// Ошибка отрицательного объёма израсходованного сырья.
	ErrConsumedQuantityNegative = errors.New("consumed_quantity must be non-negative")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при повторном создании заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrPaymentAlreadyExists возвращается, если платёж с таким ID уже записан в заказ.
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	// ErrCreditNoteAlreadyExists возвращается при повторном выпуске кредит-ноты с тем же ID.
	ErrCreditNoteAlreadyExists = errors.New("credit note already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrAdvancePaymentAlreadySet — предоплату можно зафиксировать только один раз.
	ErrAdvancePaymentAlreadySet = errors.New("advance payment already set")
	// ErrCreditNoteNotFound — кредит-нота с указанным ID отсутствует в заказе.
	ErrCreditNoteNotFound = errors.New("credit note not found")
	// ErrCreditNoteNotPending — переход возможен только из статуса pending.
	ErrCreditNoteNotPending = errors.New("credit note is not pending")
	// ErrOrderStatusTransition — недопустимый переход жизненного цикла заказа.
	ErrOrderStatusTransition = errors.New("order status transition is not allowed")
	// ErrRawMaterialLocked — учёт расхода сырья заблокирован.
	ErrRawMaterialLocked = errors.New("raw material consumption is locked")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError собирает все нарушения структуры входных данных одной мутации.
type ValidationError struct {
	Problems []error
}

// Error возвращает перечень нарушений через точку с запятой.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Error())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Unwrap позволяет сопоставлять как ErrValidation, так и конкретные причины.
func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrValidation}, e.Problems...)
}

// NewValidationError возвращает nil, если нарушений нет.
func NewValidationError(problems ...error) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// PreconditionViolation сигнализирует о внутренней ошибке программиста: в расчёт попали данные,
// которые должна была отсечь валидация. Используется как значение panic.
type PreconditionViolation struct {
	Reason string
}

func (p PreconditionViolation) Error() string {
	return "precondition violated: " + p.Reason
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsAlreadyExists сообщает о повторном создании заказа или записи внутри него.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrOrderAlreadyExists) ||
		errors.Is(err, ErrPaymentAlreadyExists) ||
		errors.Is(err, ErrCreditNoteAlreadyExists)
}

// IsStateConflict сообщает, что операция несовместима с текущим состоянием агрегата.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAdvancePaymentAlreadySet) ||
		errors.Is(err, ErrCreditNoteNotPending) ||
		errors.Is(err, ErrOrderStatusTransition) ||
		errors.Is(err, ErrRawMaterialLocked)
}
