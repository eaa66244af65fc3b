package risk

import (
	"time"

	"main/internal/schema"
)

// Action is the gate's verdict for one intent.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a deny.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonInstrumentNotAllowed
	ReasonPositionLimit
	ReasonMaxNotional
	ReasonMaxOpenOrders
	ReasonOrderInterval
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonInstrumentNotAllowed:
		return "instrument_not_allowed"
	case ReasonPositionLimit:
		return "position_limit"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonMaxOpenOrders:
		return "max_open_orders"
	case ReasonOrderInterval:
		return "order_interval"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating one intent.
type Decision struct {
	Action  Action
	Reason  Reason
	NextPos schema.Quantity
}

// Allowed reports whether the intent may be submitted.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Limits are the static risk limits for a run. Zero values disable
// the corresponding check.
type Limits struct {
	KillSwitch       bool            `json:"killSwitch"`
	MaxPosition      schema.Quantity `json:"maxPosition"`
	MaxOrderNotional schema.Notional `json:"maxOrderNotional"`
	MaxOpenOrders    int             `json:"maxOpenOrders"`
	MinOrderInterval time.Duration   `json:"minOrderInterval"`
}

// View is the ledger state the gate evaluates against.
type View struct {
	Position       schema.Quantity
	OpenOrderCount int
	Now            int64
}

// Gate validates order intents against position, notional, open-order
// and pacing limits. The only state it keeps is the per-instrument
// last-approval timestamp, updated when a regular order is allowed.
type Gate struct {
	limits    Limits
	reg       *schema.Registry
	allowed   map[schema.SymbolID]bool
	lastOrder map[schema.SymbolID]int64
}

// NewGate creates a gate over the registry. Only symbols named in
// allowlist pass the instrument check; an empty allowlist allows every
// registered symbol.
func NewGate(limits Limits, reg *schema.Registry, allowlist []string) *Gate {
	g := &Gate{
		limits:    limits,
		reg:       reg,
		lastOrder: make(map[schema.SymbolID]int64),
	}
	if len(allowlist) > 0 {
		g.allowed = make(map[schema.SymbolID]bool, len(allowlist))
		for _, name := range allowlist {
			if id, ok := reg.SymbolIDByName(name); ok {
				g.allowed[id] = true
			}
		}
	}
	return g
}

// Evaluate runs the checks in order, short-circuiting on the first
// failure. Reduce-only intents skip the position check since they can
// only shrink exposure, and are exempt from order pacing: a protective
// exit or a close before a flip must not be starved by the interval,
// and must not stamp the interval for the entry that follows it.
func (g *Gate) Evaluate(intent schema.OrderIntent, view View) Decision {
	d := Decision{Action: ActionAllow, Reason: ReasonNone}

	now := view.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if g.limits.KillSwitch {
		return deny(ReasonKillSwitch)
	}

	if _, ok := g.reg.Symbol(intent.SymbolID); !ok {
		return deny(ReasonInstrumentNotAllowed)
	}
	if g.allowed != nil && !g.allowed[intent.SymbolID] {
		return deny(ReasonInstrumentNotAllowed)
	}

	nextPos := applySide(view.Position, intent.Side, intent.Qty)
	d.NextPos = nextPos
	if !intent.ReduceOnly && g.limits.MaxPosition > 0 && absQty(nextPos) > g.limits.MaxPosition {
		return deny(ReasonPositionLimit)
	}

	if g.limits.MaxOrderNotional > 0 {
		sym, _ := g.reg.Symbol(intent.SymbolID)
		notional, overflow := schema.NotionalValue(intent.Price, intent.Qty, sym.Scale)
		if overflow || notional > g.limits.MaxOrderNotional {
			return deny(ReasonMaxNotional)
		}
	}

	if g.limits.MaxOpenOrders > 0 && view.OpenOrderCount >= g.limits.MaxOpenOrders {
		return deny(ReasonMaxOpenOrders)
	}

	if intent.ReduceOnly {
		return d
	}

	if g.limits.MinOrderInterval > 0 {
		last, ok := g.lastOrder[intent.SymbolID]
		if ok && now-last < int64(g.limits.MinOrderInterval) {
			return deny(ReasonOrderInterval)
		}
	}

	g.lastOrder[intent.SymbolID] = now
	return d
}

func deny(reason Reason) Decision {
	return Decision{Action: ActionDeny, Reason: reason}
}

func applySide(pos schema.Quantity, side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.OrderSideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.OrderSideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQty(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}
