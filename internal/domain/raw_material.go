package domain

// RawMaterialStatus описывает стадию расхода сырья под заказ.
type RawMaterialStatus string

const (
	RawMaterialStatusNotStarted        RawMaterialStatus = "not_started"
	RawMaterialStatusPartiallyConsumed RawMaterialStatus = "partially_consumed"
	RawMaterialStatusFullyConsumed     RawMaterialStatus = "fully_consumed"
)

// Valid проверяет, что статус поддерживается.
func (s RawMaterialStatus) Valid() bool {
	switch s {
	case RawMaterialStatusNotStarted, RawMaterialStatusPartiallyConsumed, RawMaterialStatusFullyConsumed:
		return true
	default:
		return false
	}
}

// RawMaterialConsumption хранит независимое подсостояние заказа, в финансовой сверке не участвует.
type RawMaterialConsumption struct {
	Status           RawMaterialStatus
	ConsumedQuantity int64
	Locked           bool
}

// Validate проверяет поля учёта сырья.
func (r *RawMaterialConsumption) Validate() []error {
	var errs []error

	if !r.Status.Valid() {
		errs = append(errs, ErrRawMaterialStatusInvalid)
	}
	if r.ConsumedQuantity < 0 {
		errs = append(errs, ErrConsumedQuantityNegative)
	}

	return errs
}
