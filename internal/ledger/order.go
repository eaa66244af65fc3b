package ledger

import (
	"main/internal/schema"
)

// OrderState tracks the local lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStatePending
	OrderStateAcked
	OrderStatePartFilled
	OrderStateFilled
	OrderStateCanceled
	OrderStateRejected
)

func (s OrderState) String() string {
	switch s {
	case OrderStatePending:
		return "pending"
	case OrderStateAcked:
		return "acknowledged"
	case OrderStatePartFilled:
		return "partially_filled"
	case OrderStateFilled:
		return "filled"
	case OrderStateCanceled:
		return "canceled"
	case OrderStateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can no longer change.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// Order is the ledger's view of one order. Callers receive copies;
// the ledger owns the only mutable instance.
type Order struct {
	ClientOrderID   string
	ExchangeOrderID string
	SymbolID        schema.SymbolID
	Side            schema.OrderSide
	Type            schema.OrderType
	Price           schema.Price
	Qty             schema.Quantity
	FilledQty       schema.Quantity
	ReduceOnly      bool
	State           OrderState
	Reason          string
	Reserved        schema.Notional
	CreatedAt       int64
	UpdatedAt       int64
	CanceledAt      int64
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() schema.Quantity {
	r := int64(o.Qty) - int64(o.FilledQty)
	if r < 0 {
		return 0
	}
	return schema.Quantity(r)
}

func stateFromStatus(st schema.OrderStatus) OrderState {
	switch st {
	case schema.OrderStatusLive:
		return OrderStateAcked
	case schema.OrderStatusPartFilled:
		return OrderStatePartFilled
	case schema.OrderStatusFilled:
		return OrderStateFilled
	case schema.OrderStatusCanceled:
		return OrderStateCanceled
	case schema.OrderStatusRejected:
		return OrderStateRejected
	default:
		return OrderStateUnknown
	}
}
