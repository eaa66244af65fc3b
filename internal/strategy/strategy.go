package strategy

import (
	"context"

	"main/internal/ledger"
	"main/internal/market"
	"main/internal/schema"
)

// Input is the read-only state a strategy decides from. All fields are
// copies; mutating them has no effect on the live ledger or cache.
type Input struct {
	Symbol   schema.Symbol
	Book     market.Book
	Last     schema.Price
	Candles  []schema.Candle
	Position ledger.Position
	Balance  ledger.Balance
	Now      int64
}

// Strategy turns market and ledger state into order intents. An empty
// result means hold. Implementations must not touch the transport;
// submission and risk checks happen downstream.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, in Input) []schema.OrderIntent
}

// SizeConfig controls order sizing from the available balance.
type SizeConfig struct {
	BalancePct  float64         `json:"balancePct"`
	MaxNotional schema.Notional `json:"maxNotional"`
}

// SizeQty converts a fraction of the available balance into an order
// quantity at the given price, floored to the instrument's lot step.
// ok is false when the result violates the instrument's minimums.
func SizeQty(sym schema.Symbol, price schema.Price, available schema.Notional, cfg SizeConfig) (schema.Quantity, bool) {
	if price <= 0 || available <= 0 || cfg.BalancePct <= 0 {
		return 0, false
	}
	target := schema.Notional(float64(available) * cfg.BalancePct)
	if cfg.MaxNotional > 0 && target > cfg.MaxNotional {
		target = cfg.MaxNotional
	}

	// invert NotionalValue: qty = target / price adjusted between the
	// quote scale and the instrument scales
	shift := sym.Scale.PriceScale + sym.Scale.QuantityScale - schema.QuoteScale
	var qty int64
	if shift >= 0 {
		qty = int64(target) * pow10(shift) / int64(price)
	} else {
		qty = int64(target) / (int64(price) * pow10(-shift))
	}

	if sym.QtyStep > 1 {
		qty -= qty % int64(sym.QtyStep)
	}
	if qty <= 0 || schema.Quantity(qty) < sym.MinQty {
		return 0, false
	}
	if sym.MinNotional > 0 {
		n, overflow := schema.NotionalValue(price, schema.Quantity(qty), sym.Scale)
		if overflow || n < sym.MinNotional {
			return 0, false
		}
	}
	return schema.Quantity(qty), true
}

func pow10(s schema.Scale) int64 {
	out := int64(1)
	for i := schema.Scale(0); i < s; i++ {
		out *= 10
	}
	return out
}
