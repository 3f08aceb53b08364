package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DateLayout is the wire format of transaction dates.
const DateLayout = "2006-01-02"

const (
	maxDescriptionLen = 200
	maxCategoryLen    = 100
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single recorded financial event.
	Transaction struct {
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		Category    string          `json:"category,omitempty"`
		Date        Date            `json:"date,omitzero"`
	}
)

var (
	ErrInvalidType        = errors.New("invalid type: must be \"income\" or \"expense\"")
	ErrInvalidAmount      = errors.New("invalid amount: must be a positive number with at most 2 decimals, up to 100000000000")
	ErrInvalidDate        = errors.New("invalid date: must be YYYY-MM-DD")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	ErrCategoryTooLong    = fmt.Errorf("category too long (max %d characters)", maxCategoryLen)
)

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// ParseTransactionType normalizes s and returns the matching type.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if len(t.Category) > maxCategoryLen {
		return ErrCategoryTooLong
	}
	return nil
}

// Normalize trims the free-text fields. The type is left untouched: only the
// exact values "income" and "expense" are accepted.
func (t Transaction) Normalize() Transaction {
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	return t
}

// IsValidationError reports whether err originates from transaction validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrDescriptionTooLong) ||
		errors.Is(err, ErrCategoryTooLong)
}
