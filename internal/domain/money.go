package domain

import (
	"fmt"
	"math"
)

// Money is a monetary amount in minor units (cents). All arithmetic in the
// pricing engine happens on this type; decimal strings appear only at the
// API boundary.
type Money int64

// MulFloat multiplies the amount by a factor and rounds half away from zero.
func (m Money) MulFloat(factor float64) Money {
	return RoundHalfAway(float64(m) * factor)
}

// Decimal renders the amount as a two-fraction-digit decimal string.
func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// RoundHalfAway rounds a fractional minor-unit amount to the nearest cent,
// with halves rounded away from zero.
func RoundHalfAway(v float64) Money {
	return Money(math.Round(v))
}

// AbsDiff returns the absolute difference between two amounts.
func AbsDiff(a, b Money) Money {
	if a > b {
		return a - b
	}
	return b - a
}
