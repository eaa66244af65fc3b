package strategy

import (
	"context"

	"main/internal/schema"
)

// ImbalanceConfig tunes the book-imbalance momentum strategy.
type ImbalanceConfig struct {
	Depth        int   `json:"depth"`        // levels per side
	ThresholdBps int64 `json:"thresholdBps"` // imbalance needed to act
	Size         SizeConfig
}

// Imbalance trades top-of-book depth skew: a heavy bid side signals
// buy pressure, a heavy ask side sell pressure. One intent per
// decision at most, priced at the opposing best level.
type Imbalance struct {
	cfg ImbalanceConfig
}

// NewImbalance creates the strategy with the given tuning.
func NewImbalance(cfg ImbalanceConfig) *Imbalance {
	if cfg.Depth <= 0 {
		cfg.Depth = 5
	}
	return &Imbalance{cfg: cfg}
}

func (s *Imbalance) Name() string { return "imbalance" }

// Decide emits a buy when bid depth outweighs ask depth beyond the
// threshold, a sell in the opposite case, otherwise nothing. Intents
// in the direction of an existing position are suppressed so the
// strategy scales in only through fresh signals after flat.
func (s *Imbalance) Decide(_ context.Context, in Input) []schema.OrderIntent {
	bidQty := int64(in.Book.DepthQty(schema.OrderSideBuy, s.cfg.Depth))
	askQty := int64(in.Book.DepthQty(schema.OrderSideSell, s.cfg.Depth))
	total := bidQty + askQty
	if total == 0 {
		return nil
	}
	imbalance := (bidQty - askQty) * 10_000 / total

	var side schema.OrderSide
	var price schema.Price
	switch {
	case imbalance >= s.cfg.ThresholdBps:
		ask, ok := in.Book.BestAsk()
		if !ok {
			return nil
		}
		side, price = schema.OrderSideBuy, ask.Price
	case imbalance <= -s.cfg.ThresholdBps:
		bid, ok := in.Book.BestBid()
		if !ok {
			return nil
		}
		side, price = schema.OrderSideSell, bid.Price
	default:
		return nil
	}

	if samePositionDirection(in.Position.Qty, side) {
		return nil
	}

	qty, ok := SizeQty(in.Symbol, price, in.Balance.Available(), s.cfg.Size)
	if !ok {
		return nil
	}
	return []schema.OrderIntent{{
		SymbolID:    in.Symbol.ID,
		Side:        side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       price,
		Qty:         qty,
	}}
}

func samePositionDirection(pos schema.Quantity, side schema.OrderSide) bool {
	if pos > 0 && side == schema.OrderSideBuy {
		return true
	}
	if pos < 0 && side == schema.OrderSideSell {
		return true
	}
	return false
}
