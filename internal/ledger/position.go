package ledger

import (
	"main/internal/schema"
)

// Position is the net exposure for one instrument, derived purely
// from fills.
type Position struct {
	SymbolID schema.SymbolID
	Qty      schema.Quantity // signed, positive long
	AvgEntry schema.Price
	Realized schema.Notional
}

// UnrealizedPnL values the open quantity against a mark price.
func (p Position) UnrealizedPnL(mark schema.Price, spec schema.ScaleSpec) schema.Notional {
	if p.Qty == 0 {
		return 0
	}
	diff := int64(mark) - int64(p.AvgEntry)
	qty := int64(p.Qty)
	n, overflow := schema.NotionalValue(schema.Price(diff), schema.Quantity(qty), spec)
	if overflow {
		return 0
	}
	return n
}

// applyFill folds one fill into the position and returns the realized
// PnL delta in quote units. Opposite-side fills first close existing
// quantity at the average entry; any excess flips the position.
func (p *Position) applyFill(side schema.OrderSide, price schema.Price, qty schema.Quantity, spec schema.ScaleSpec) schema.Notional {
	signed := int64(qty)
	if side == schema.OrderSideSell {
		signed = -signed
	}
	cur := int64(p.Qty)

	// extending or opening
	if cur == 0 || (cur > 0) == (signed > 0) {
		total := cur + signed
		if total != 0 {
			weighted := int64(p.AvgEntry)*abs64(cur) + int64(price)*abs64(signed)
			p.AvgEntry = schema.Price(weighted / abs64(total))
		}
		p.Qty = schema.Quantity(total)
		return 0
	}

	// reducing: realize PnL on the closed quantity
	closing := abs64(signed)
	if closing > abs64(cur) {
		closing = abs64(cur)
	}
	diff := int64(price) - int64(p.AvgEntry)
	if cur < 0 {
		diff = -diff
	}
	realized, overflow := schema.NotionalValue(schema.Price(diff), schema.Quantity(closing), spec)
	if overflow {
		realized = 0
	}
	p.Realized += realized

	total := cur + signed
	if total == 0 {
		p.Qty = 0
		p.AvgEntry = 0
		return realized
	}
	if (total > 0) != (cur > 0) {
		// flipped through zero, remainder opens at the fill price
		p.AvgEntry = price
	}
	p.Qty = schema.Quantity(total)
	return realized
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
