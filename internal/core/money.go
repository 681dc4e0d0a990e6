// Package core provides money parsing and handling utilities.
//
// This file contains the exact-decimal Money type used for every amount
// read from the effort tables and written to the master ledger.
package core

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for stored amounts.
const MoneyPlaces = 2

// Money is an exact decimal amount. The zero value is 0.
type Money struct {
	d decimal.Decimal
}

var amountJunk = regexp.MustCompile(`[^0-9.\-]`)

// NewMoney wraps a decimal value without rounding it.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d}
}

// ParseAmount extracts an amount from free text such as "$1,200.50 USD".
//
// Every character other than digits, '.' and '-' is dropped first. An empty
// result, a lone "." or "-", or anything that still fails to parse yields
// zero. It never returns an error: garbage degrades to zero.
//
// Examples:
//
//	ParseAmount("1,200.50") -> 1200.50
//	ParseAmount("n/a")      -> 0
//	ParseAmount("1.2.3")    -> 0
func ParseAmount(raw string) Money {
	cleaned := amountJunk.ReplaceAllString(raw, "")
	switch cleaned {
	case "", ".", "-":
		return Money{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}
	}
	return Money{d: d}
}

// Add returns m+o without rounding.
func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

// Round returns m rounded half-up (away from zero) to two decimals.
// Rounding an already rounded amount returns it unchanged.
func (m Money) Round() Money {
	return Money{d: m.d.Round(MoneyPlaces)}
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(MoneyPlaces)
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// Equal reports whether both amounts are numerically equal.
func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}
