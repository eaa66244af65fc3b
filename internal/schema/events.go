package schema

// EventKind defines the category of a stream-delivered event.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventBook
	EventTicker
	EventOrder
	EventFill
	EventBalance
	EventGap
	EventConnected
	EventDisconnected
)

// Event is the typed unit passed from the stream consumer to the
// reconciliation step. Exactly one payload pointer is set per kind.
type Event struct {
	Kind    EventKind
	Seq     uint64
	TsEvent int64
	TsRecv  int64

	Book    *BookUpdate
	Ticker  *TickerUpdate
	Order   *OrderUpdate
	Fill    *FillEvent
	Balance *BalanceUpdate
	Gap     *SequenceGap
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price Price
	Qty   Quantity
}

// BookUpdate carries a full or incremental order book for one instrument.
// Version is monotonic per instrument; stale versions must be dropped.
type BookUpdate struct {
	SymbolID SymbolID
	Version  uint64
	Full     bool
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// TickerUpdate carries the latest trade price for one instrument.
type TickerUpdate struct {
	SymbolID     SymbolID
	Last         Price
	Change24hBps int64
	BaseVolume   Quantity
}

// OrderStatus is the exchange-reported order state on the wire.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusLive
	OrderStatusPartFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusLive:
		return "live"
	case OrderStatusPartFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OrderUpdate is an exchange-pushed order state change.
type OrderUpdate struct {
	ClientOrderID   string
	ExchangeOrderID string
	SymbolID        SymbolID
	Side            OrderSide
	Price           Price
	Qty             Quantity
	FilledQty       Quantity
	Status          OrderStatus
	Reason          string
	Ts              int64
}

// FillEvent is a single execution. TradeID identifies the fill for
// idempotent application.
type FillEvent struct {
	TradeID         string
	ClientOrderID   string
	ExchangeOrderID string
	SymbolID        SymbolID
	Side            OrderSide
	Price           Price
	Qty             Quantity
	Fee             Fee
	Ts              int64
}

// BalanceUpdate is an exchange-pushed account balance for one asset.
type BalanceUpdate struct {
	Asset     string
	Available Notional
	Locked    Notional
}

// SequenceGap signals a missed message range on one channel. The
// consumer must treat following deltas as untrusted until a resync.
type SequenceGap struct {
	Channel  string
	Expected uint64
	Got      uint64
}

// OrderIntent is a proposed order produced by a strategy. It has not
// been risk-checked or submitted yet.
type OrderIntent struct {
	ClientOrderID string
	SymbolID      SymbolID
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	Price         Price
	Qty           Quantity
	TriggerPrice  Price
	ReduceOnly    bool
}
