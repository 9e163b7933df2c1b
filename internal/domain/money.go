package domain

import "github.com/shopspring/decimal"

// DecimalPlaces is the fixed scale for every monetary and asset quantity.
// All persisted values and all arithmetic results are kept at this scale.
const DecimalPlaces = 8

// CommissionRate is the fixed platform fee charged to the buyer (1.5%).
var CommissionRate = decimal.RequireFromString("0.015")

// MulFixed multiplies two amounts and truncates the result to 8 decimal
// places. Truncation (not rounding) keeps repeated settlements drift-free:
// the product of two scale-8 values never gains digits it can't keep.
func MulFixed(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(DecimalPlaces)
}
