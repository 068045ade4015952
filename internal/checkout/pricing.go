package checkout

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AmountMinor converts the cart into gateway minor units: sum(price * 100 * rate * quantity),
// rounded half away from zero once at the end.
func AmountMinor(items []CartItem, rate decimal.Decimal) int64 {
	total := decimal.Zero
	for _, it := range items {
		line := it.Price.Mul(hundred).Mul(rate).Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(line)
	}
	return total.Round(0).IntPart()
}

// ApplyDiscount returns amount - round(amount*pct/100). pct is clamped to [0, 100].
func ApplyDiscount(amount int64, pct int) int64 {
	if pct <= 0 {
		return amount
	}
	if pct > 100 {
		pct = 100
	}
	a := decimal.NewFromInt(amount)
	off := a.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(0)
	return a.Sub(off).IntPart()
}

// ToMajor converts minor units back to the major unit (amount / 100).
func ToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
