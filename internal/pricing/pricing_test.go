package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"kasiran/backend/internal/domain"
)

func sampleCart() []domain.SaleItem {
	return []domain.SaleItem{
		{Name: "Kopi Susu 1L", Price: 25000, Quantity: 1, Cost: 15000},
		{Name: "Roti Sobek", Price: 18000, Quantity: 2, Cost: 10000},
	}
}

func TestComputeSampleCart(t *testing.T) {
	totals := Compute(sampleCart(), DefaultDiscountPercent)

	assert.Equal(t, int64(61000), totals.Subtotal)
	assert.Equal(t, int64(8845), totals.DiscountAmount)
	assert.Equal(t, int64(52155), totals.Total)
	assert.Equal(t, int64(35000), totals.TotalCost)
}

func TestDiscountRoundsHalfUp(t *testing.T) {
	pct := decimal.RequireFromString("14.5")

	// 1000 × 14.5% = 145 exactly, 1001 → 145.145, 1003 → 145.435, 1010 → 146.45
	assert.Equal(t, int64(145), Discount(1000, pct))
	assert.Equal(t, int64(145), Discount(1001, pct))
	assert.Equal(t, int64(145), Discount(1003, pct))
	assert.Equal(t, int64(146), Discount(1010, pct))

	// 10 × 5% = 0.5 rounds up to 1
	assert.Equal(t, int64(1), Discount(10, decimal.NewFromInt(5)))
	// 30 × 5% = 1.5 rounds up to 2
	assert.Equal(t, int64(2), Discount(30, decimal.NewFromInt(5)))
}

func TestDiscountEdgeCases(t *testing.T) {
	assert.Equal(t, int64(0), Discount(0, DefaultDiscountPercent))
	assert.Equal(t, int64(0), Discount(5000, decimal.Zero))
	assert.Equal(t, int64(0), Discount(5000, decimal.NewFromInt(-3)))
	assert.Equal(t, int64(5000), Discount(5000, decimal.NewFromInt(100)))
}

func TestTotalAlwaysSubtotalMinusDiscount(t *testing.T) {
	carts := [][]domain.SaleItem{
		{{Price: 1, Quantity: 1}},
		{{Price: 3333, Quantity: 3}, {Price: 7, Quantity: 11}},
		{{Price: 99999, Quantity: 7, Cost: 50000}},
		sampleCart(),
	}
	for _, pct := range []string{"0", "2.5", "14.5", "33.33", "100"} {
		p := decimal.RequireFromString(pct)
		for _, cart := range carts {
			totals := Compute(cart, p)
			assert.Equal(t, totals.Subtotal-totals.DiscountAmount, totals.Total, "pct=%s", pct)
			assert.Equal(t, Subtotal(cart), totals.Subtotal)
			assert.GreaterOrEqual(t, totals.Total, int64(0))
		}
	}
}

func TestApplyWritesTotalsOntoSale(t *testing.T) {
	sale := domain.SaleRecord{Items: sampleCart()[:1]}
	totals := Apply(&sale, DefaultDiscountPercent)

	assert.Equal(t, int64(25000), sale.Subtotal)
	assert.Equal(t, int64(3625), sale.DiscountAmount)
	assert.Equal(t, int64(21375), sale.Total)
	assert.Equal(t, int64(15000), sale.TotalCost)
	assert.True(t, sale.DiscountPercent.Equal(DefaultDiscountPercent))
	assert.Equal(t, totals.Total, sale.Total)
}

func TestValidPercent(t *testing.T) {
	assert.True(t, ValidPercent(decimal.Zero))
	assert.True(t, ValidPercent(DefaultDiscountPercent))
	assert.True(t, ValidPercent(decimal.NewFromInt(100)))
	assert.False(t, ValidPercent(decimal.NewFromInt(-1)))
	assert.False(t, ValidPercent(decimal.RequireFromString("100.01")))
}
