package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

const problemContentType = "application/problem+json"

// Problem описывает документ ошибки RFC 7807.
type Problem struct {
	Type   string   `json:"type,omitempty"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

var errMalformedBody = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// problemFor переводит ошибку сервиса в HTTP-статус. Детали внутренних ошибок наружу не уходят.
func problemFor(err error) Problem {
	switch {
	case errors.Is(err, errMalformedBody):
		return Problem{Title: "Malformed Request", Status: http.StatusBadRequest, Detail: err.Error()}
	case domain.IsValidation(err):
		p := Problem{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Detail: domain.ErrValidation.Error()}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, problem := range verr.Problems {
				p.Errors = append(p.Errors, problem.Error())
			}
		}
		return p
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrCreditNoteNotFound):
		return Problem{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}
	case domain.IsAlreadyExists(err):
		return Problem{Title: "Already Exists", Status: http.StatusConflict, Detail: err.Error()}
	case domain.IsVersionConflict(err):
		return Problem{Title: "Version Conflict", Status: http.StatusConflict, Detail: domain.ErrOrderVersionConflict.Error()}
	case domain.IsStateConflict(err):
		return Problem{Title: "State Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, ledger.ErrOutboxBacklogFull):
		return Problem{Title: "Backlog Full", Status: http.StatusServiceUnavailable, Detail: ledger.ErrOutboxBacklogFull.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Problem{Title: "Timeout", Status: http.StatusGatewayTimeout}
	default:
		return Problem{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}
