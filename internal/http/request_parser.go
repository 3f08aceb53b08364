package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"fintrack/internal/core"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

const (
	msgBodyTooLarge = "request body too large"
	msgInvalidJSON  = "invalid JSON body"
	msgNotObject    = "request body must be a JSON object"
	msgInvalidForm  = "invalid form body"

	// encoding/json has no typed error for DisallowUnknownFields.
	unknownFieldPrefix = "json: unknown field "
)

// parseTransaction reads a transaction from a JSON or form-encoded body.
// Errors are either *requestError or wrap a core validation sentinel.
func parseTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if isFormRequest(r) {
		return parseTransactionForm(r)
	}
	return parseTransactionJSON(r.Body)
}

func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded"
}

func parseTransactionJSON(body io.Reader) (core.Transaction, error) {
	var raw json.RawMessage
	dec := json.NewDecoder(body)
	if err := dec.Decode(&raw); err != nil {
		return core.Transaction{}, bodyError(err, msgInvalidJSON)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if isTooLarge(err) {
			return core.Transaction{}, badRequest(msgBodyTooLarge)
		}
		return core.Transaction{}, badRequest(msgInvalidJSON)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return core.Transaction{}, badRequest(msgNotObject)
	}

	// Fields the record cannot hold are refused so an accepted body always
	// reads back unchanged.
	var t core.Transaction
	obj := json.NewDecoder(bytes.NewReader(trimmed))
	obj.DisallowUnknownFields()
	if err := obj.Decode(&t); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case core.IsValidationError(err):
			return core.Transaction{}, err
		case errors.As(err, &typeErr):
			return core.Transaction{}, unprocessable("invalid value for field " + typeErr.Field)
		case strings.HasPrefix(err.Error(), unknownFieldPrefix):
			return core.Transaction{}, unprocessable(strings.TrimPrefix(err.Error(), "json: "))
		default:
			return core.Transaction{}, badRequest(msgInvalidJSON)
		}
	}
	t.Description = sanitizeInput(t.Description)
	t.Category = sanitizeInput(t.Category)
	return t, nil
}

func parseTransactionForm(r *http.Request) (core.Transaction, error) {
	if err := r.ParseForm(); err != nil {
		return core.Transaction{}, bodyError(err, msgInvalidForm)
	}

	cents, err := core.ParseDecimalToCents(r.PostForm.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(r.PostForm.Get("date"))
	if err != nil {
		return core.Transaction{}, err
	}

	return core.Transaction{
		Type:        core.TransactionType(strings.TrimSpace(r.PostForm.Get("type"))),
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(r.PostForm.Get("description")),
		Category:    sanitizeInput(r.PostForm.Get("category")),
		Date:        date,
	}, nil
}

func bodyError(err error, msg string) error {
	if isTooLarge(err) {
		return badRequest(msgBodyTooLarge)
	}
	return badRequest(msg)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// parseQuery reads list filters from the query string. Sort and order are
// checked by the service.
func parseQuery(v url.Values) (core.Query, error) {
	q := core.Query{
		Category: sanitizeInput(v.Get("category")),
		Search:   sanitizeInput(v.Get("q")),
		SortBy:   core.SortField(strings.ToLower(strings.TrimSpace(v.Get("sort")))),
		Order:    core.SortOrder(strings.ToLower(strings.TrimSpace(v.Get("order")))),
	}
	if raw := strings.TrimSpace(v.Get("type")); raw != "" {
		t, err := core.ParseTransactionType(raw)
		if err != nil {
			return core.Query{}, badRequest(core.ErrInvalidType.Error())
		}
		q.Type = t
	}
	return q, nil
}

// sanitizeInput trims s and removes control characters other than tab,
// newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
