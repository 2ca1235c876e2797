package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

// WriteDomainError maps write-model errors to HTTP. Domain rule violations carry the
// violated rule as their code; unexpected errors are reported as internal without detail.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := StatusFor(err)
	WriteError(w, r, status, code, message)
}

func StatusFor(err error) (int, string, string) {
	var e *es.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal", "internal error"
	}
	switch e.Code {
	case es.CodeDomainRuleViolation:
		code := e.Rule
		if code == "" {
			code = string(e.Code)
		}
		return http.StatusUnprocessableEntity, code, e.Message
	case es.CodeConcurrencyConflict:
		return http.StatusConflict, string(e.Code), e.Message
	case es.CodeNotFound:
		return http.StatusNotFound, string(e.Code), e.Message
	case es.CodeValidation:
		return http.StatusBadRequest, string(e.Code), e.Message
	default:
		return http.StatusInternalServerError, string(e.Code), "internal error"
	}
}
