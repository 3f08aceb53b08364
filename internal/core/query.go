package core

import (
	"errors"
	"sort"
	"strings"
)

const (
	SortNone     SortField = ""
	SortDate     SortField = "date"
	SortAmount   SortField = "amount"
	SortCategory SortField = "category"

	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

type (
	SortField string
	SortOrder string

	// Query filters and orders a transaction list. The zero Query returns the
	// input unchanged, in insertion order.
	Query struct {
		Type     TransactionType
		Category string
		Search   string
		SortBy   SortField
		Order    SortOrder
	}
)

var (
	ErrInvalidSort  = errors.New("invalid sort: must be date, amount or category")
	ErrInvalidOrder = errors.New("invalid order: must be asc or desc")
)

// Validate checks the enumerated fields of the query.
func (q Query) Validate() error {
	if q.Type != "" && !q.Type.IsValid() {
		return ErrInvalidType
	}
	switch q.SortBy {
	case SortNone, SortDate, SortAmount, SortCategory:
	default:
		return ErrInvalidSort
	}
	switch q.Order {
	case "", Asc, Desc:
	default:
		return ErrInvalidOrder
	}
	return nil
}

// IsZero reports whether the query neither filters nor sorts.
func (q Query) IsZero() bool {
	return q == Query{}
}

// Apply returns the matching transactions in a new slice. Sorting is stable,
// so ties keep insertion order.
func (q Query) Apply(ts []Transaction) []Transaction {
	category := strings.ToLower(strings.TrimSpace(q.Category))
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]Transaction, 0, len(ts))
	for _, t := range ts {
		if q.Type != "" && t.Type != q.Type {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(t.Category), category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Description), search) &&
			!strings.Contains(strings.ToLower(t.Category), search) {
			continue
		}
		out = append(out, t)
	}

	if q.SortBy == SortNone {
		return out
	}

	less := q.less()
	desc := q.Order != Asc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func (q Query) less() func(a, b Transaction) bool {
	switch q.SortBy {
	case SortAmount:
		return func(a, b Transaction) bool { return a.Amount.Cents < b.Amount.Cents }
	case SortCategory:
		return func(a, b Transaction) bool {
			return strings.ToLower(a.Category) < strings.ToLower(b.Category)
		}
	default:
		return func(a, b Transaction) bool { return a.Date.Before(b.Date.Time) }
	}
}
