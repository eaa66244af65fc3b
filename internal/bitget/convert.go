package bitget

import (
	"strconv"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

func sideFromWire(s string) schema.OrderSide {
	switch s {
	case "buy":
		return schema.OrderSideBuy
	case "sell":
		return schema.OrderSideSell
	default:
		return schema.OrderSideUnknown
	}
}

func sideToWire(s schema.OrderSide) string {
	switch s {
	case schema.OrderSideBuy:
		return "buy"
	case schema.OrderSideSell:
		return "sell"
	default:
		return ""
	}
}

func orderTypeToWire(t schema.OrderType) string {
	switch t {
	case schema.OrderTypeLimit:
		return "limit"
	case schema.OrderTypeMarket:
		return "market"
	case schema.OrderTypeStopMarket:
		return "stop_market"
	case schema.OrderTypeTakeProfitMarket:
		return "take_profit_market"
	default:
		return ""
	}
}

func forceToWire(tif schema.TimeInForce) string {
	switch tif {
	case schema.TimeInForceIOC:
		return "ioc"
	case schema.TimeInForceFOK:
		return "fok"
	default:
		return "gtc"
	}
}

func statusFromWire(s string) schema.OrderStatus {
	switch s {
	case "live", "new", "init":
		return schema.OrderStatusLive
	case "partially_filled", "partial_fill":
		return schema.OrderStatusPartFilled
	case "filled", "full_fill":
		return schema.OrderStatusFilled
	case "canceled", "cancelled":
		return schema.OrderStatusCanceled
	case "rejected":
		return schema.OrderStatusRejected
	default:
		return schema.OrderStatusUnknown
	}
}

func parsePrice(sym schema.Symbol, s string) (schema.Price, error) {
	if s == "" {
		return 0, nil
	}
	v, err := schema.ParseScaled(s, sym.Scale.PriceScale)
	if err != nil {
		return 0, errors.Wrap(err, "parse price").With("symbol", sym.Name)
	}
	return schema.Price(v), nil
}

func parseQty(sym schema.Symbol, s string) (schema.Quantity, error) {
	if s == "" {
		return 0, nil
	}
	v, err := schema.ParseScaled(s, sym.Scale.QuantityScale)
	if err != nil {
		return 0, errors.Wrap(err, "parse quantity").With("symbol", sym.Name)
	}
	return schema.Quantity(v), nil
}

func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// orderUpdateFromData maps a REST order row onto the stream event shape
// so ledger reconciliation has a single input type.
func orderUpdateFromData(sym schema.Symbol, d OrderData) (schema.OrderUpdate, error) {
	price, err := parsePrice(sym, d.Price)
	if err != nil {
		return schema.OrderUpdate{}, err
	}
	qty, err := parseQty(sym, d.Size)
	if err != nil {
		return schema.OrderUpdate{}, err
	}
	filled, err := parseQty(sym, d.BaseVolume)
	if err != nil {
		return schema.OrderUpdate{}, err
	}
	return schema.OrderUpdate{
		ClientOrderID:   d.ClientOid,
		ExchangeOrderID: d.OrderID,
		SymbolID:        sym.ID,
		Side:            sideFromWire(d.Side),
		Price:           price,
		Qty:             qty,
		FilledQty:       filled,
		Status:          statusFromWire(d.Status),
		Ts:              parseMillis(d.UTime),
	}, nil
}

func bookFromWire(sym schema.Symbol, full bool, d wsBookData) (*schema.BookUpdate, error) {
	parseLevels := func(rows [][2]string) ([]schema.PriceLevel, error) {
		levels := make([]schema.PriceLevel, 0, len(rows))
		for _, row := range rows {
			price, err := parsePrice(sym, row[0])
			if err != nil {
				return nil, err
			}
			qty, err := parseQty(sym, row[1])
			if err != nil {
				return nil, err
			}
			levels = append(levels, schema.PriceLevel{Price: price, Qty: qty})
		}
		return levels, nil
	}
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	version := d.Seq
	if version == 0 {
		version = uint64(parseMillis(d.Ts))
	}
	return &schema.BookUpdate{
		SymbolID: sym.ID,
		Version:  version,
		Full:     full,
		Bids:     bids,
		Asks:     asks,
	}, nil
}
