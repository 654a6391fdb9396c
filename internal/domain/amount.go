package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount errors.
var (
	// ErrAmountOverflow is returned when arithmetic leaves the signed 128-bit range.
	ErrAmountOverflow = errors.New("amount overflows 128-bit range")

	// ErrInvalidAmountText is returned when a textual amount is not an integer.
	ErrInvalidAmountText = errors.New("invalid amount text")
)

var (
	maxAmount = decimal.RequireFromString("170141183460469231731687303715884105727")
	minAmount = decimal.RequireFromString("-170141183460469231731687303715884105728")
)

// Amount is a signed 128-bit token amount in base units.
// The zero value is a valid zero amount.
type Amount struct {
	d decimal.Decimal
}

// NewAmount creates an amount from an int64.
func NewAmount(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// ZeroAmount returns a zero amount.
func ZeroAmount() Amount {
	return Amount{}
}

// ParseAmount parses a base-10 integer amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmountText, s)
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %q is not integral", ErrInvalidAmountText, s)
	}
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{d: d}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Intended for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b, failing with ErrAmountOverflow outside the 128-bit range.
func (a Amount) Add(b Amount) (Amount, error) {
	return checked(a.d.Add(b.d))
}

// Sub returns a-b, failing with ErrAmountOverflow outside the 128-bit range.
func (a Amount) Sub(b Amount) (Amount, error) {
	return checked(a.d.Sub(b.d))
}

func checked(d decimal.Decimal) (Amount, error) {
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{d: d}, nil
}

// Cmp compares a and b: -1 if a<b, 0 if equal, +1 if a>b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	return a.d.Sign()
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a.d.Sign() > 0
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

// GreaterThanOrEqual reports whether a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.d.GreaterThanOrEqual(b.d)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// String returns the base-10 integer representation.
func (a Amount) String() string {
	return a.d.String()
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
