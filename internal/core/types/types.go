// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Quantity represents a stock quantity with full precision.
// Uses decimal.Decimal to avoid floating-point errors: running chain
// recomputation would otherwise accumulate rounding drift.
type Quantity = decimal.Decimal

// Money represents a monetary value (unit costs, average costs) with full
// precision.
type Money = decimal.Decimal

// NewFromString creates a decimal value from a string.
// This is the preferred method for quantities and monetary values.
func NewFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustDecimal creates a decimal value from a string, panics on error.
// Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns the zero decimal value.
func Zero() decimal.Decimal {
	return decimal.Zero
}
