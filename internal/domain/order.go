package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency используется, если валюта заказа не указана.
const DefaultCurrency = "INR"

// OrderStatus описывает производственный жизненный цикл заказа.
// Финансовый статус от него не зависит и считается отдельно.
type OrderStatus string

const (
	// OrderStatusInProgress — заказ в работе.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted — заказ выполнен.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusPartiallyCancelled — часть заказа отменена.
	OrderStatusPartiallyCancelled OrderStatus = "partially_cancelled"
	// OrderStatusFullyCancelled — заказ отменён целиком.
	OrderStatusFullyCancelled OrderStatus = "fully_cancelled"
)

// Valid проверяет, что статус входит в перечень.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusCompleted, OrderStatusPartiallyCancelled, OrderStatusFullyCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что заказ логически завершён.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFullyCancelled
}

// CanTransitionTo описывает допустимые внешние переходы статуса.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusInProgress:
		return next == OrderStatusCompleted ||
			next == OrderStatusPartiallyCancelled ||
			next == OrderStatusFullyCancelled
	case OrderStatusPartiallyCancelled:
		return next == OrderStatusFullyCancelled
	default:
		return false
	}
}

// PaymentTerms описывает условия оплаты заказа.
type PaymentTerms struct {
	// CreditPeriodDays задаёт отсрочку в днях от даты поставки, 0 означает оплату без отсрочки.
	CreditPeriodDays  int
	AdvanceRequired   bool
	AdvancePercentage decimal.Decimal
}

// Validate проверяет условия оплаты.
func (t *PaymentTerms) Validate() []error {
	var errs []error

	if t.CreditPeriodDays < 0 {
		errs = append(errs, ErrCreditPeriodNegative)
	}
	if t.AdvancePercentage.IsNegative() || t.AdvancePercentage.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, ErrAdvancePercentageInvalid)
	}

	return errs
}

// Order агрегирует количества, цены, условия оплаты и всю историю платежей заказа.
type Order struct {
	ID                     string
	CustomerID             string
	ProductID              string
	Currency               string
	QuantityOrdered        int64
	QuantityDelivered      int64
	SellingPrice           decimal.Decimal
	DeliveryCost           decimal.Decimal
	DeliveryDate           time.Time
	OrderCompletionDate    *time.Time
	Status                 OrderStatus
	AdvancePayment         *AdvancePayment
	Payments               []Payment
	CreditNotes            []CreditNote
	RawMaterialConsumption RawMaterialConsumption
	PaymentTerms           PaymentTerms

	// FinancialStatus и Totals хранят копию последней сверки.
	FinancialStatus FinancialStatus
	Totals          Totals
	ReconciledAt    time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderParams содержит входные данные для создания заказа.
type NewOrderParams struct {
	ID              string
	CustomerID      string
	ProductID       string
	Currency        string
	QuantityOrdered int64
	SellingPrice    decimal.Decimal
	DeliveryCost    decimal.Decimal
	DeliveryDate    time.Time
	PaymentTerms    PaymentTerms
}

// NewOrder создаёт заказ без платежей и сразу сверяет его на момент now.
func NewOrder(p NewOrderParams, now time.Time) (Order, error) {
	currency := p.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	order := Order{
		ID:              p.ID,
		CustomerID:      p.CustomerID,
		ProductID:       p.ProductID,
		Currency:        currency,
		QuantityOrdered: p.QuantityOrdered,
		SellingPrice:    p.SellingPrice,
		DeliveryCost:    p.DeliveryCost,
		DeliveryDate:    p.DeliveryDate,
		Status:          OrderStatusInProgress,
		PaymentTerms:    p.PaymentTerms,
		FinancialStatus: FinancialStatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		RawMaterialConsumption: RawMaterialConsumption{
			Status: RawMaterialStatusNotStarted,
		},
	}

	if err := NewValidationError(order.ValidateInvariants()...); err != nil {
		return Order{}, err
	}

	order.Reconcile(now)
	return order, nil
}

// ValidateInvariants проверяет структурные инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.ProductID == "" {
		errs = append(errs, ErrProductRequired)
	}
	if o.QuantityOrdered <= 0 {
		errs = append(errs, ErrQuantityOrderedInvalid)
	}
	if o.QuantityDelivered < 0 {
		errs = append(errs, ErrQuantityDeliveredNegative)
	}
	if o.QuantityDelivered > o.QuantityOrdered && o.QuantityOrdered > 0 {
		errs = append(errs, ErrQuantityDeliveredExceedsOrdered)
	}
	if o.SellingPrice.IsNegative() {
		errs = append(errs, ErrSellingPriceNegative)
	}
	if o.DeliveryCost.IsNegative() {
		errs = append(errs, ErrDeliveryCostNegative)
	}
	if !fitsMoneyScale(o.SellingPrice) || !fitsMoneyScale(o.DeliveryCost) {
		errs = append(errs, ErrAmountScaleInvalid)
	}
	if o.DeliveryDate.IsZero() {
		errs = append(errs, ErrDeliveryDateRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	errs = append(errs, o.PaymentTerms.Validate()...)

	return errs
}

// Reconcile пересчитывает производные поля на момент now и сохраняет их в агрегате.
func (o *Order) Reconcile(now time.Time) Reconciliation {
	r := Reconcile(*o, now)
	o.FinancialStatus = r.FinancialStatus
	o.Totals = r.Totals
	o.ReconciledAt = now
	return r
}

// AddPayment добавляет платёж. При ошибке валидации заказ не меняется.
func (o *Order) AddPayment(p Payment) error {
	if err := NewValidationError(p.Validate()...); err != nil {
		return err
	}
	for i := range o.Payments {
		if p.ID != "" && o.Payments[i].ID == p.ID {
			return ErrPaymentAlreadyExists
		}
	}
	o.Payments = append(o.Payments, p)
	return nil
}

// SetAdvancePayment фиксирует предоплату; повторная установка запрещена.
func (o *Order) SetAdvancePayment(a AdvancePayment) error {
	if o.AdvancePayment != nil {
		return ErrAdvancePaymentAlreadySet
	}
	if err := NewValidationError(a.Validate()...); err != nil {
		return err
	}
	advance := a
	o.AdvancePayment = &advance
	return nil
}

// AddCreditNote добавляет кредит-ноту. Статус всегда pending, независимо от входа.
func (o *Order) AddCreditNote(c CreditNote) (CreditNote, error) {
	if err := NewValidationError(c.Validate()...); err != nil {
		return CreditNote{}, err
	}
	if _, exists := o.FindCreditNote(c.ID); exists {
		return CreditNote{}, ErrCreditNoteAlreadyExists
	}
	c.Status = CreditNoteStatusPending
	c.ResolvedAt = nil
	o.CreditNotes = append(o.CreditNotes, c)
	return c, nil
}

// TransitionCreditNote закрывает кредит-ноту статусом adjusted или refunded.
func (o *Order) TransitionCreditNote(t CreditNoteTransition, at time.Time) (CreditNote, error) {
	if t.To != CreditNoteStatusAdjusted && t.To != CreditNoteStatusRefunded {
		return CreditNote{}, NewValidationError(ErrCreditNoteStatusInvalid)
	}

	idx := -1
	for i := range o.CreditNotes {
		if o.CreditNotes[i].ID == t.CreditNoteID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return CreditNote{}, ErrCreditNoteNotFound
	}

	note := o.CreditNotes[idx]
	if note.Status != CreditNoteStatusPending {
		return CreditNote{}, ErrCreditNoteNotPending
	}

	note.Status = t.To
	resolved := at
	note.ResolvedAt = &resolved
	if t.LinkedOrderID != "" {
		note.LinkedOrderID = t.LinkedOrderID
	}
	if t.Notes != "" {
		note.Notes = t.Notes
	}
	o.CreditNotes[idx] = note
	return note, nil
}

// UpdateDelivery обновляет поставленное количество и дату поставки.
func (o *Order) UpdateDelivery(quantityDelivered int64, deliveryDate time.Time) error {
	var errs []error
	if quantityDelivered < 0 {
		errs = append(errs, ErrQuantityDeliveredNegative)
	}
	if quantityDelivered > o.QuantityOrdered {
		errs = append(errs, ErrQuantityDeliveredExceedsOrdered)
	}
	if deliveryDate.IsZero() {
		errs = append(errs, ErrDeliveryDateRequired)
	}
	if err := NewValidationError(errs...); err != nil {
		return err
	}

	o.QuantityDelivered = quantityDelivered
	o.DeliveryDate = deliveryDate
	return nil
}

// TransitionStatus применяет внешний переход жизненного цикла.
func (o *Order) TransitionStatus(next OrderStatus, at time.Time) error {
	if !next.Valid() {
		return NewValidationError(ErrOrderStatusInvalid)
	}
	if !o.Status.CanTransitionTo(next) {
		return ErrOrderStatusTransition
	}

	o.Status = next
	if next == OrderStatusCompleted {
		completed := at
		o.OrderCompletionDate = &completed
	}
	return nil
}

// UpdateRawMaterialConsumption заменяет учёт сырья, пока он не заблокирован.
func (o *Order) UpdateRawMaterialConsumption(r RawMaterialConsumption) error {
	if o.RawMaterialConsumption.Locked {
		return ErrRawMaterialLocked
	}
	if err := NewValidationError(r.Validate()...); err != nil {
		return err
	}
	o.RawMaterialConsumption = r
	return nil
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	cp := o
	if o.OrderCompletionDate != nil {
		t := *o.OrderCompletionDate
		cp.OrderCompletionDate = &t
	}
	if o.AdvancePayment != nil {
		a := *o.AdvancePayment
		cp.AdvancePayment = &a
	}
	if o.Payments != nil {
		cp.Payments = make([]Payment, len(o.Payments))
		copy(cp.Payments, o.Payments)
	}
	if o.CreditNotes != nil {
		cp.CreditNotes = make([]CreditNote, len(o.CreditNotes))
		for i, c := range o.CreditNotes {
			if c.ResolvedAt != nil {
				t := *c.ResolvedAt
				c.ResolvedAt = &t
			}
			cp.CreditNotes[i] = c
		}
	}
	return cp
}

// FindCreditNote ищет кредит-ноту по ID.
func (o *Order) FindCreditNote(id string) (CreditNote, bool) {
	for _, c := range o.CreditNotes {
		if c.ID == id {
			return c, true
		}
	}
	return CreditNote{}, false
}
