// Package pricing holds the single implementation of sale arithmetic. Every
// stored or displayed total must come from here.
package pricing

import (
	"github.com/shopspring/decimal"

	"kasiran/backend/internal/domain"
)

// DefaultDiscountPercent applies when no discount is configured.
var DefaultDiscountPercent = decimal.RequireFromString("14.5")

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Subtotal       int64
	DiscountAmount int64
	Total          int64
	TotalCost      int64
}

func Subtotal(items []domain.SaleItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Price * int64(item.Quantity)
	}
	return sum
}

func TotalCost(items []domain.SaleItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Cost * int64(item.Quantity)
	}
	return sum
}

// Discount returns subtotal × pct / 100 rounded half-up to a whole unit.
// Inputs are non-negative, so Round's half-away-from-zero is half-up here.
func Discount(subtotal int64, pct decimal.Decimal) int64 {
	if subtotal <= 0 || !pct.IsPositive() {
		return 0
	}
	amount := decimal.NewFromInt(subtotal).Mul(pct).Div(hundred).Round(0)
	if amount.GreaterThan(decimal.NewFromInt(subtotal)) {
		return subtotal
	}
	return amount.IntPart()
}

func Total(subtotal int64, discount int64) int64 {
	return subtotal - discount
}

func Compute(items []domain.SaleItem, pct decimal.Decimal) Totals {
	subtotal := Subtotal(items)
	discount := Discount(subtotal, pct)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          Total(subtotal, discount),
		TotalCost:      TotalCost(items),
	}
}

// Apply writes freshly computed totals onto a sale.
func Apply(sale *domain.SaleRecord, pct decimal.Decimal) Totals {
	totals := Compute(sale.Items, pct)
	sale.DiscountPercent = pct
	sale.Subtotal = totals.Subtotal
	sale.DiscountAmount = totals.DiscountAmount
	sale.Total = totals.Total
	sale.TotalCost = totals.TotalCost
	return totals
}

// ValidPercent reports whether pct is usable as a discount percentage.
func ValidPercent(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}
