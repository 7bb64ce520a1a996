// Package money provides monetary rounding helpers.
// All monetary aggregates are rounded to two decimal places at the point
// where they leave the aggregation layer, so floating error never crosses
// component boundaries.
package money

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to two decimal places (half up).
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Round2Ptr rounds through a nullable amount, preserving nil.
func Round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

// Pct returns part/total as a percentage rounded to two decimals.
// A zero total yields 0, not a division error.
func Pct(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return Round2(part / total * 100)
}
