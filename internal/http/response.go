package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const msgInternal = "internal server error"

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// requestError is a client error with the status it should be reported as.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

func unprocessable(msg string) error {
	return &requestError{status: http.StatusUnprocessableEntity, msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// validationSentinels lists the client-facing validation errors, most
// specific first.
var validationSentinels = []error{
	core.ErrInvalidType,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrDescriptionTooLong,
	core.ErrCategoryTooLong,
}

// writeRequestError maps err to a status code and writes it. Unexpected
// errors are logged and reported without detail.
func writeRequestError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, reqErr.status, reqErr.msg)
	case errors.Is(err, core.ErrInvalidSort), errors.Is(err, core.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, errorMessage(err, core.ErrInvalidSort, core.ErrInvalidOrder))
	case core.IsValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, errorMessage(err, validationSentinels...))
	default:
		log.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, op,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// errorMessage returns the text of the first sentinel err wraps, dropping
// the wrapping context that is only meant for logs.
func errorMessage(err error, sentinels ...error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

// methodNotAllowed answers any method not registered for a path.
func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
