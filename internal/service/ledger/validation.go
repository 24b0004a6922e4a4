package ledger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

// FieldError описывает нарушение правила валидации поля команды.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: must satisfy %s=%s", e.Field, e.Rule, e.Param)
	}
	return fmt.Sprintf("%s: must satisfy %s", e.Field, e.Rule)
}

// requiredFieldErrors сохраняет доменные sentinel-ошибки для обязательных идентификаторов.
var requiredFieldErrors = map[string]error{
	"order_id":       domain.ErrOrderIDRequired,
	"customer_id":    domain.ErrCustomerRequired,
	"product_id":     domain.ErrProductRequired,
	"credit_note_id": domain.ErrCreditNoteIDRequired,
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCommand проверяет структуру команды и переводит ошибки validator в *domain.ValidationError.
func validateCommand(v *validator.Validate, cmd any) error {
	err := v.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate command: %w", err)
	}

	problems := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if sentinel, ok := requiredFieldErrors[fe.Field()]; ok && fe.Tag() == "required" {
			problems = append(problems, sentinel)
			continue
		}
		problems = append(problems, &FieldError{Field: fieldPath(fe), Rule: fe.Tag(), Param: fe.Param()})
	}
	return domain.NewValidationError(problems...)
}

// fieldPath возвращает путь без имени корневой структуры: payment_terms.credit_period_days.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
