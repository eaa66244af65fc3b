package ledger

import (
	"errors"
	"sync"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder      = errors.New("order already tracked")
	ErrUnknownOrder        = errors.New("order not found")
	ErrUnknownSymbol       = errors.New("symbol not registered")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrNotionalOverflow    = errors.New("order notional overflows")
)

// Balance is the quote-asset account view. Total is the last
// exchange-reported amount; Reserved is locked against local open
// orders. Available is always Total - Reserved.
type Balance struct {
	Asset    string
	Total    schema.Notional
	Reserved schema.Notional
}

// Available returns funds usable for new orders.
func (b Balance) Available() schema.Notional {
	return b.Total - b.Reserved
}

// Ledger is the authoritative local view of orders, positions and
// balance, reconciled against exchange events. All mutation goes
// through Track/Apply*/Reconcile; reads return copies.
type Ledger struct {
	mu        sync.RWMutex
	reg       *schema.Registry
	orders    map[string]*Order // by client order id
	byExchID  map[string]string
	seenFills map[string]struct{}
	positions map[schema.SymbolID]*Position
	balance   Balance
}

// NewLedger creates an empty ledger over the symbol registry.
func NewLedger(reg *schema.Registry, asset string) *Ledger {
	return &Ledger{
		reg:       reg,
		orders:    make(map[string]*Order),
		byExchID:  make(map[string]string),
		seenFills: make(map[string]struct{}),
		positions: make(map[schema.SymbolID]*Position),
		balance:   Balance{Asset: asset},
	}
}

// SetTotalBalance replaces the exchange-reported total.
func (l *Ledger) SetTotalBalance(total schema.Notional) {
	l.mu.Lock()
	l.balance.Total = total
	l.mu.Unlock()
}

// Balance returns the current balance view.
func (l *Ledger) Balance() Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Track registers an approved intent as a Pending order and reserves
// its notional against the available balance. Reduce-only intents
// reserve nothing.
func (l *Ledger) Track(intent schema.OrderIntent, now int64) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[intent.ClientOrderID]; ok {
		return Order{}, ErrDuplicateOrder
	}
	sym, ok := l.reg.Symbol(intent.SymbolID)
	if !ok {
		return Order{}, ErrUnknownSymbol
	}

	var reserved schema.Notional
	if !intent.ReduceOnly {
		n, overflow := schema.NotionalValue(intent.Price, intent.Qty, sym.Scale)
		if overflow {
			return Order{}, ErrNotionalOverflow
		}
		if n > l.balance.Available() {
			return Order{}, ErrInsufficientBalance
		}
		reserved = n
	}

	o := &Order{
		ClientOrderID: intent.ClientOrderID,
		SymbolID:      intent.SymbolID,
		Side:          intent.Side,
		Type:          intent.Type,
		Price:         intent.Price,
		Qty:           intent.Qty,
		ReduceOnly:    intent.ReduceOnly,
		State:         OrderStatePending,
		Reserved:      reserved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.orders[o.ClientOrderID] = o
	l.balance.Reserved += reserved
	return *o, nil
}

// ApplyEvent dispatches a stream event to the matching handler. It
// reports whether the ledger changed.
func (l *Ledger) ApplyEvent(ev schema.Event) bool {
	switch ev.Kind {
	case schema.EventOrder:
		if ev.Order == nil {
			return false
		}
		_, changed := l.ApplyOrderUpdate(*ev.Order)
		return changed
	case schema.EventFill:
		if ev.Fill == nil {
			return false
		}
		_, changed := l.ApplyFill(*ev.Fill)
		return changed
	case schema.EventBalance:
		if ev.Balance == nil {
			return false
		}
		l.SetTotalBalance(ev.Balance.Available + ev.Balance.Locked)
		return true
	default:
		return false
	}
}

// ApplyOrderUpdate advances an order's state from an exchange push.
// Quantities are owned by ApplyFill; this handles acknowledgement,
// cancellation and rejection. Unknown exchange orders are adopted so
// recovery after a restart converges on exchange truth.
func (l *Ledger) ApplyOrderUpdate(u schema.OrderUpdate) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := l.lookupLocked(u.ClientOrderID, u.ExchangeOrderID)
	if o == nil {
		o = l.adoptLocked(u)
		return *o, true
	}
	if u.ExchangeOrderID != "" && o.ExchangeOrderID == "" {
		o.ExchangeOrderID = u.ExchangeOrderID
		l.byExchID[u.ExchangeOrderID] = o.ClientOrderID
	}
	if o.State.Terminal() {
		return *o, false
	}

	next := stateFromStatus(u.Status)
	changed := false
	switch next {
	case OrderStateAcked:
		if o.State == OrderStatePending {
			o.State = OrderStateAcked
			changed = true
		}
	case OrderStatePartFilled, OrderStateFilled:
		// state follows fills; the matching fill event carries the
		// quantity and is deduplicated by trade id
	case OrderStateCanceled:
		l.releaseLocked(o)
		o.State = OrderStateCanceled
		o.CanceledAt = u.Ts
		o.Reason = u.Reason
		changed = true
	case OrderStateRejected:
		l.releaseLocked(o)
		o.State = OrderStateRejected
		o.Reason = u.Reason
		changed = true
	}
	if changed {
		o.UpdatedAt = u.Ts
	}
	return *o, changed
}

// ApplyFill applies one execution. Duplicate trade ids are dropped.
// Order quantity, position and balance move in one step so no reader
// observes a partial application. A fill arriving after the cancel
// ack but timestamped before it is still counted; the order stays
// Canceled.
func (l *Ledger) ApplyFill(f schema.FillEvent) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.seenFills[f.TradeID]; seen {
		return Order{}, false
	}

	o := l.lookupLocked(f.ClientOrderID, f.ExchangeOrderID)
	if o == nil {
		// fill for an untracked order, still exchange truth for the
		// position
		l.seenFills[f.TradeID] = struct{}{}
		l.applyPositionLocked(f.SymbolID, f.Side, f.Price, f.Qty, f.Fee)
		return Order{}, true
	}

	if o.State.Terminal() {
		lateAfterCancel := o.State == OrderStateCanceled && f.Ts < o.CanceledAt
		if !lateAfterCancel {
			return *o, false
		}
	}

	l.seenFills[f.TradeID] = struct{}{}
	o.FilledQty = schema.Quantity(int64(o.FilledQty) + int64(f.Qty))
	if o.FilledQty > o.Qty {
		o.FilledQty = o.Qty
	}
	o.UpdatedAt = f.Ts

	if !o.State.Terminal() {
		if o.FilledQty >= o.Qty {
			o.State = OrderStateFilled
		} else {
			o.State = OrderStatePartFilled
		}
	}

	// release the filled portion of the reservation and spend it
	if sym, ok := l.reg.Symbol(o.SymbolID); ok && o.Reserved > 0 {
		rel, overflow := schema.NotionalValue(o.Price, f.Qty, sym.Scale)
		if !overflow {
			if rel > o.Reserved {
				rel = o.Reserved
			}
			o.Reserved -= rel
			l.balance.Reserved -= rel
			l.balance.Total -= rel
		}
	}
	if o.State.Terminal() && o.Reserved > 0 {
		l.releaseLocked(o)
	}

	l.applyPositionLocked(f.SymbolID, f.Side, f.Price, f.Qty, f.Fee)
	return *o, true
}

// Reconcile diffs local open orders against the exchange's open-order
// list after a resync. Orders the exchange no longer reports open are
// resolved by fetching their final status and force-transitioning,
// applying any missed fill quantity exactly once.
func (l *Ledger) Reconcile(open []schema.OrderUpdate, fetch func(clientOrderID string) (schema.OrderUpdate, error)) error {
	openByID := make(map[string]schema.OrderUpdate, len(open))
	for _, u := range open {
		openByID[u.ClientOrderID] = u
		l.ApplyOrderUpdate(u)
	}

	for _, id := range l.openOrderIDs() {
		if _, stillOpen := openByID[id]; stillOpen {
			continue
		}
		final, err := fetch(id)
		if err != nil {
			return err
		}
		l.forceTerminal(id, final)
	}
	return nil
}

func (l *Ledger) forceTerminal(clientOrderID string, final schema.OrderUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := l.orders[clientOrderID]
	if o == nil || o.State.Terminal() {
		return
	}
	if final.ExchangeOrderID != "" && o.ExchangeOrderID == "" {
		o.ExchangeOrderID = final.ExchangeOrderID
		l.byExchID[final.ExchangeOrderID] = o.ClientOrderID
	}

	// fills lost during the gap: the delta between exchange-reported
	// and local filled quantity
	delta := int64(final.FilledQty) - int64(o.FilledQty)
	if delta > 0 {
		price := final.Price
		if price == 0 {
			price = o.Price
		}
		qty := schema.Quantity(delta)
		o.FilledQty = final.FilledQty
		if sym, ok := l.reg.Symbol(o.SymbolID); ok && o.Reserved > 0 {
			rel, overflow := schema.NotionalValue(o.Price, qty, sym.Scale)
			if !overflow {
				if rel > o.Reserved {
					rel = o.Reserved
				}
				o.Reserved -= rel
				l.balance.Reserved -= rel
				l.balance.Total -= rel
			}
		}
		l.applyPositionLocked(o.SymbolID, o.Side, price, qty, 0)
	}

	next := stateFromStatus(final.Status)
	if !next.Terminal() {
		if o.FilledQty >= o.Qty {
			next = OrderStateFilled
		} else {
			next = OrderStateCanceled
		}
	}
	l.releaseLocked(o)
	o.State = next
	o.Reason = final.Reason
	o.UpdatedAt = final.Ts
	if next == OrderStateCanceled {
		o.CanceledAt = final.Ts
	}
}

// Order returns a copy of the tracked order.
func (l *Ledger) Order(clientOrderID string) (Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[clientOrderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// OpenOrders returns copies of all non-terminal orders.
func (l *Ledger) OpenOrders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		if !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// OpenOrderCount returns the number of non-terminal orders.
func (l *Ledger) OpenOrderCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, o := range l.orders {
		if !o.State.Terminal() {
			n++
		}
	}
	return n
}

// Orders returns copies of every tracked order.
func (l *Ledger) Orders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, *o)
	}
	return out
}

// Position returns the current position for a symbol.
func (l *Ledger) Position(symbolID schema.SymbolID) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p := l.positions[symbolID]; p != nil {
		return *p
	}
	return Position{SymbolID: symbolID}
}

// Positions returns copies of all non-flat positions.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Qty != 0 || p.Realized != 0 {
			out = append(out, *p)
		}
	}
	return out
}

// Prune drops terminal orders from the working set, returning the
// removed copies for archival.
func (l *Ledger) Prune() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Order, 0)
	for id, o := range l.orders {
		if o.State.Terminal() {
			out = append(out, *o)
			delete(l.orders, id)
			if o.ExchangeOrderID != "" {
				delete(l.byExchID, o.ExchangeOrderID)
			}
		}
	}
	return out
}

func (l *Ledger) openOrderIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.orders))
	for id, o := range l.orders {
		if !o.State.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

func (l *Ledger) lookupLocked(clientOrderID, exchangeOrderID string) *Order {
	if o, ok := l.orders[clientOrderID]; ok {
		return o
	}
	if clientID, ok := l.byExchID[exchangeOrderID]; ok {
		return l.orders[clientID]
	}
	return nil
}

func (l *Ledger) adoptLocked(u schema.OrderUpdate) *Order {
	o := &Order{
		ClientOrderID:   u.ClientOrderID,
		ExchangeOrderID: u.ExchangeOrderID,
		SymbolID:        u.SymbolID,
		Side:            u.Side,
		Price:           u.Price,
		Qty:             u.Qty,
		FilledQty:       u.FilledQty,
		State:           stateFromStatus(u.Status),
		Reason:          u.Reason,
		CreatedAt:       u.Ts,
		UpdatedAt:       u.Ts,
	}
	if o.State == OrderStateUnknown {
		o.State = OrderStateAcked
	}
	l.orders[o.ClientOrderID] = o
	if o.ExchangeOrderID != "" {
		l.byExchID[o.ExchangeOrderID] = o.ClientOrderID
	}
	return o
}

func (l *Ledger) releaseLocked(o *Order) {
	if o.Reserved > 0 {
		l.balance.Reserved -= o.Reserved
		o.Reserved = 0
	}
}

func (l *Ledger) applyPositionLocked(symbolID schema.SymbolID, side schema.OrderSide, price schema.Price, qty schema.Quantity, fee schema.Fee) {
	sym, ok := l.reg.Symbol(symbolID)
	if !ok {
		return
	}
	p := l.positions[symbolID]
	if p == nil {
		p = &Position{SymbolID: symbolID}
		l.positions[symbolID] = p
	}
	realized := p.applyFill(side, price, qty, sym.Scale)
	l.balance.Total += realized
	l.balance.Total -= schema.Notional(fee)
}
