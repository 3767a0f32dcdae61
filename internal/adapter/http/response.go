package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	slogctx "github.com/veqryn/slog-context"
)

type envelope struct {
	Data      any                     `json:"data,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Fields    []domain.FieldError     `json:"fields,omitempty"`
	Conflicts []domain.FieldOwnership `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := envelope{Error: "internal server error"}

	var verr *domain.ValidationError
	var conflict *domain.FieldConflictError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		body.Error = err.Error()
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body.Error = err.Error()
		body.Conflicts = conflict.Conflicts
	case errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
		body.Error = err.Error()
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Error = domain.ErrInvalidInput.Error()
		body.Fields = verr.Errors
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Error = err.Error()
	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrUnsupportedSourceType),
		errors.Is(err, domain.ErrCannotDelete):
		status = http.StatusUnprocessableEntity
		body.Error = err.Error()
	default:
		slogctx.FromCtx(r.Context()).Error("internal error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON 请求体格式错误统一视为参数错误。
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	return nil
}
