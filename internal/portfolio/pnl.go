package portfolio

import (
	"github.com/shopspring/decimal"

	"portfolio-blotter/internal/model"
)

// Derived holds the price-dependent fields of a position, rounded to cents.
type Derived struct {
	MarketValue   decimal.Decimal
	TotalCost     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Derive computes market value, total cost and unrealized P&L for a signed
// quantity. Longs gain when price rises above avgCost, shorts when it falls
// below it. Values are rounded half away from zero to two decimals.
func Derive(quantity, avgCost, price float64) Derived {
	qty := decimal.NewFromFloat(quantity)
	absQty := qty.Abs()

	marketValue := decimal.NewFromFloat(price).Mul(absQty)
	totalCost := decimal.NewFromFloat(avgCost).Mul(absQty)

	var pnl decimal.Decimal
	if qty.IsNegative() {
		pnl = totalCost.Sub(marketValue)
	} else {
		pnl = marketValue.Sub(totalCost)
	}

	return Derived{
		MarketValue:   marketValue.Round(2),
		TotalCost:     totalCost.Round(2),
		UnrealizedPnL: pnl.Round(2),
	}
}

// reprice moves p to price. Closed positions only take the new price; their
// derived fields are left as they were. A missing or non-numeric avgCost
// counts as zero here without touching the stored value.
func reprice(p *model.Position, price float64) {
	p.CurrentPrice = model.NumericFromFloat(price)
	if p.Closed() {
		return
	}

	d := Derive(p.Quantity, p.AvgCost.Or(0), price)
	p.MarketValue = model.NumericFromDecimal(d.MarketValue)
	p.TotalCost = model.NumericFromDecimal(d.TotalCost)
	p.UnrealizedPnL = model.NumericFromDecimal(d.UnrealizedPnL)
}
