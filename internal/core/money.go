// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Conversion to and from the decimal
// representation used on the wire goes through shopspring/decimal so that
// no float arithmetic is involved.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents is the largest amount a single record may carry
// (100 000 000 000.00). It keeps aggregate sums far from int64 overflow.
const MaxAmountCents int64 = 10_000_000_000_000

// maxScale bounds the decimal exponent accepted from input. Anything outside
// it is either far above MaxAmountCents or far below one cent, and rescaling
// such values is unbounded work.
const maxScale = 20

var maxAmount = decimal.New(MaxAmountCents, -2)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero on the third decimal place. The result is always
// positive cents. Returns ErrInvalidAmount for invalid formats, signed values,
// zero amounts or amounts above MaxAmountCents.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	d, err := parseBounded(s)
	if err != nil {
		return 0, err
	}
	cents := d.Shift(2).Round(0).IntPart()
	if cents <= 0 || cents > MaxAmountCents {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// NewMoneyFromDecimal converts d to cents. Values with more than two
// decimals or outside ±MaxAmountCents are rejected rather than rounded.
func NewMoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if e := d.Exponent(); e < -maxScale || e > maxScale {
		return Money{}, ErrInvalidAmount
	}
	if d.Abs().GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: shifted.IntPart()}, nil
}

// parseBounded parses s and rejects values whose exponent or magnitude is
// out of range before any rescaling happens. Trailing fractional zeros are
// dropped first so "12.3400" is read as 12.34.
func parseBounded(s string) (decimal.Decimal, error) {
	if strings.Contains(s, ".") && !strings.ContainsAny(s, "eE") {
		s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if e := d.Exponent(); e < -maxScale || e > maxScale {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Abs().GreaterThan(maxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount without trailing zeros ("100", "12.5").
func (m Money) String() string {
	return m.Decimal().String()
}

// Fixed renders the amount with exactly two decimals, for display.
func (m Money) Fixed() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// MarshalJSON emits the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number with at most two decimals. null leaves
// the zero value, which Validate rejects.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*m = Money{}
		return nil
	}
	if len(data) == 0 || data[0] == '"' {
		return ErrInvalidAmount
	}
	d, err := parseBounded(string(data))
	if err != nil {
		return err
	}
	parsed, err := NewMoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
