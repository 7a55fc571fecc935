// Package types provides the numeric types used for stock and money.
package types

import (
	"github.com/shopspring/decimal"
)

// Quantity is a signed stock quantity. Stock may legitimately go negative.
type Quantity = decimal.Decimal

// Money represents a monetary value with full precision.
type Money = decimal.Decimal

// MoneyPlaces is the scale used when rounding totals.
const MoneyPlaces = 2

// NewQuantity creates a Quantity from an integer number of units.
func NewQuantity(v int64) Quantity {
	return decimal.NewFromInt(v)
}

// MustQuantity parses s, panics on error. Constants and tests only.
func MustQuantity(s string) Quantity {
	return decimal.RequireFromString(s)
}

// LineTotal returns quantity × unit cost rounded to MoneyPlaces.
func LineTotal(qty Quantity, unitCost Money) Money {
	return qty.Mul(unitCost).Round(MoneyPlaces)
}

// OrZero returns the value of an optional decimal or zero.
func OrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
