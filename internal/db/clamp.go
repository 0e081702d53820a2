package db

import "github.com/shopspring/decimal"

// DefaultMaxValue is the largest value a NUMERIC(50,18) column stores.
var DefaultMaxValue = decimal.RequireFromString("9.999999999999999999999999999999999999999999999999E+31")

// Clamp bounds v to [-max, max].
func Clamp(v, max decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(max) {
		return max
	}
	if min := max.Neg(); v.LessThan(min) {
		return min
	}
	return v
}
