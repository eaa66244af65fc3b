package bitget

import (
	"context"
	"strconv"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Transport adapts the REST client to the coordinator's schema types.
// It owns symbol registration from contract metadata and the resync
// fetches after a stream gap.
type Transport struct {
	rest *RestClient
	reg  *schema.Registry
}

// NewTransport wraps a REST client over the registry.
func NewTransport(rest *RestClient, reg *schema.Registry) *Transport {
	return &Transport{rest: rest, reg: reg}
}

// LoadSymbols fetches contract metadata and registers the named
// instruments, taking precision and lot constraints from the exchange.
func (t *Transport) LoadSymbols(ctx context.Context, names []string) error {
	contracts, err := t.rest.Contracts(ctx)
	if err != nil {
		return err
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	registered := 0
	for _, c := range contracts {
		if len(wanted) > 0 && !wanted[c.Symbol] {
			continue
		}
		sym, err := symbolFromContract(c)
		if err != nil {
			return errors.Wrap(err, "parse contract").With("symbol", c.Symbol)
		}
		if _, err := t.reg.AddSymbol(sym); err != nil {
			return errors.Wrap(err, "register symbol")
		}
		registered++
	}
	if len(wanted) > 0 && registered < len(wanted) {
		return errors.Errorf("only %d of %d instruments found in contract metadata", registered, len(wanted))
	}
	logs.Infof("registered %d instruments", registered)
	return nil
}

func symbolFromContract(c ContractMeta) (schema.Symbol, error) {
	priceScale, err := strconv.Atoi(c.PricePlace)
	if err != nil {
		return schema.Symbol{}, errors.Wrap(err, "price place")
	}
	qtyScale, err := strconv.Atoi(c.VolumePlace)
	if err != nil {
		return schema.Symbol{}, errors.Wrap(err, "volume place")
	}
	sym := schema.Symbol{
		Name:       c.Symbol,
		BaseAsset:  c.BaseCoin,
		QuoteAsset: c.QuoteCoin,
		Scale: schema.ScaleSpec{
			PriceScale:    schema.Scale(priceScale),
			QuantityScale: schema.Scale(qtyScale),
		},
	}
	if c.MinTradeNum != "" {
		v, err := schema.ParseScaled(c.MinTradeNum, sym.Scale.QuantityScale)
		if err != nil {
			return schema.Symbol{}, errors.Wrap(err, "min trade num")
		}
		sym.MinQty = schema.Quantity(v)
	}
	if c.SizeMultiplier != "" {
		v, err := schema.ParseScaled(c.SizeMultiplier, sym.Scale.QuantityScale)
		if err != nil {
			return schema.Symbol{}, errors.Wrap(err, "size multiplier")
		}
		sym.QtyStep = schema.Quantity(v)
	}
	if c.MinTradeUSDT != "" {
		v, err := schema.ParseScaled(c.MinTradeUSDT, schema.QuoteScale)
		if err != nil {
			return schema.Symbol{}, errors.Wrap(err, "min trade usdt")
		}
		sym.MinNotional = schema.Notional(v)
	}
	return sym, nil
}

// SubmitOrder places an intent and returns the exchange order id.
func (t *Transport) SubmitOrder(ctx context.Context, intent schema.OrderIntent) (string, error) {
	sym, ok := t.reg.Symbol(intent.SymbolID)
	if !ok {
		return "", errors.Errorf("unregistered symbol id %d", intent.SymbolID)
	}
	req := PlaceOrderRequest{
		Symbol:    sym.Name,
		Size:      schema.FormatScaled(int64(intent.Qty), sym.Scale.QuantityScale),
		Side:      sideToWire(intent.Side),
		OrderType: orderTypeToWire(intent.Type),
		ClientOid: intent.ClientOrderID,
	}
	if intent.Type == schema.OrderTypeLimit {
		req.Price = schema.FormatScaled(int64(intent.Price), sym.Scale.PriceScale)
		req.Force = forceToWire(intent.TimeInForce)
	}
	if intent.TriggerPrice != 0 {
		req.TriggerPrice = schema.FormatScaled(int64(intent.TriggerPrice), sym.Scale.PriceScale)
	}
	if intent.ReduceOnly {
		req.ReduceOnly = "YES"
	}
	data, err := t.rest.PlaceOrder(ctx, req)
	if err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// CancelOrder cancels by client order id.
func (t *Transport) CancelOrder(ctx context.Context, symbolID schema.SymbolID, clientOrderID string) error {
	sym, ok := t.reg.Symbol(symbolID)
	if !ok {
		return errors.Errorf("unregistered symbol id %d", symbolID)
	}
	_, err := t.rest.CancelOrder(ctx, sym.Name, clientOrderID)
	return err
}

// OpenOrders fetches the exchange's open orders for every registered
// instrument, mapped onto the stream event shape for reconciliation.
func (t *Transport) OpenOrders(ctx context.Context) ([]schema.OrderUpdate, error) {
	rows, err := t.rest.OpenOrders(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]schema.OrderUpdate, 0, len(rows))
	for _, row := range rows {
		id, ok := t.reg.SymbolIDByName(row.Symbol)
		if !ok {
			continue
		}
		sym, _ := t.reg.Symbol(id)
		u, err := orderUpdateFromData(sym, row)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// OrderStatus fetches one order's current state by client order id.
func (t *Transport) OrderStatus(ctx context.Context, symbolID schema.SymbolID, clientOrderID string) (schema.OrderUpdate, error) {
	sym, ok := t.reg.Symbol(symbolID)
	if !ok {
		return schema.OrderUpdate{}, errors.Errorf("unregistered symbol id %d", symbolID)
	}
	row, err := t.rest.OrderDetail(ctx, sym.Name, clientOrderID)
	if err != nil {
		return schema.OrderUpdate{}, err
	}
	return orderUpdateFromData(sym, row)
}

// BookSnapshot fetches a fresh full book for resync.
func (t *Transport) BookSnapshot(ctx context.Context, symbolID schema.SymbolID, depth int) (*schema.BookUpdate, error) {
	sym, ok := t.reg.Symbol(symbolID)
	if !ok {
		return nil, errors.Errorf("unregistered symbol id %d", symbolID)
	}
	data, err := t.rest.MergedDepth(ctx, sym.Name, depth)
	if err != nil {
		return nil, err
	}
	return bookFromWire(sym, true, data)
}

// QuoteBalance fetches the margin-coin account total in quote units.
func (t *Transport) QuoteBalance(ctx context.Context) (schema.Notional, error) {
	assets, err := t.rest.Accounts(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range assets {
		if a.MarginCoin != t.rest.marginCoin {
			continue
		}
		available, err := schema.ParseScaled(a.Available, schema.QuoteScale)
		if err != nil {
			return 0, errors.Wrap(err, "parse available")
		}
		locked, err := schema.ParseScaled(a.Locked, schema.QuoteScale)
		if err != nil {
			return 0, errors.Wrap(err, "parse locked")
		}
		return schema.Notional(available + locked), nil
	}
	return 0, errors.Errorf("no account entry for %s", t.rest.marginCoin)
}

// CandleHistory fetches recent klines at the instrument scale.
func (t *Transport) CandleHistory(ctx context.Context, symbolID schema.SymbolID, granularity string, limit int) ([]schema.Candle, error) {
	sym, ok := t.reg.Symbol(symbolID)
	if !ok {
		return nil, errors.Errorf("unregistered symbol id %d", symbolID)
	}
	rows, err := t.rest.Candles(ctx, sym.Name, granularity, limit)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := candleFromWire(sym, row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func candleFromWire(sym schema.Symbol, row Candle) (schema.Candle, error) {
	open, err := parsePrice(sym, row.Open)
	if err != nil {
		return schema.Candle{}, err
	}
	high, err := parsePrice(sym, row.High)
	if err != nil {
		return schema.Candle{}, err
	}
	low, err := parsePrice(sym, row.Low)
	if err != nil {
		return schema.Candle{}, err
	}
	closeP, err := parsePrice(sym, row.Close)
	if err != nil {
		return schema.Candle{}, err
	}
	volume, err := parseQty(sym, row.Volume)
	if err != nil {
		return schema.Candle{}, err
	}
	return schema.Candle{
		Ts:     row.Ts,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeP,
		Volume: volume,
	}, nil
}
