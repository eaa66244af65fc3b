package risk

import (
	"math/rand"
	"testing"
	"time"

	"main/internal/schema"
)

func newTestGate(t *testing.T, limits Limits) (*Gate, schema.SymbolID) {
	t.Helper()
	reg := schema.NewRegistry()
	id, err := reg.AddSymbol(schema.Symbol{
		Name:  "BTCUSDT",
		Scale: schema.ScaleSpec{PriceScale: 2, QuantityScale: 3},
	})
	if err != nil {
		t.Fatalf("add symbol: %v", err)
	}
	return NewGate(limits, reg, nil), id
}

func intent(sym schema.SymbolID, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		ClientOrderID: "c1",
		SymbolID:      sym,
		Side:          side,
		Type:          schema.OrderTypeLimit,
		Price:         price,
		Qty:           qty,
	}
}

func TestAllowWithinLimits(t *testing.T) {
	g, sym := newTestGate(t, Limits{
		MaxPosition:      10_000,
		MaxOrderNotional: 1_000_000,
		MaxOpenOrders:    5,
	})
	d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 400), View{Now: 1})
	if !d.Allowed() {
		t.Fatalf("denied: %v", d.Reason)
	}
	if d.NextPos != 400 {
		t.Fatalf("next pos %d", d.NextPos)
	}
}

func TestInstrumentNotAllowed(t *testing.T) {
	reg := schema.NewRegistry()
	btc, _ := reg.AddSymbol(schema.Symbol{Name: "BTCUSDT", Scale: schema.ScaleSpec{PriceScale: 2, QuantityScale: 3}})
	eth, _ := reg.AddSymbol(schema.Symbol{Name: "ETHUSDT", Scale: schema.ScaleSpec{PriceScale: 2, QuantityScale: 2}})
	g := NewGate(Limits{}, reg, []string{"BTCUSDT"})

	if d := g.Evaluate(intent(btc, schema.OrderSideBuy, 10000, 1), View{Now: 1}); !d.Allowed() {
		t.Fatalf("allowed symbol denied: %v", d.Reason)
	}
	if d := g.Evaluate(intent(eth, schema.OrderSideBuy, 10000, 1), View{Now: 1}); d.Reason != ReasonInstrumentNotAllowed {
		t.Fatalf("reason %v", d.Reason)
	}
	// unregistered symbol id
	if d := g.Evaluate(intent(99, schema.OrderSideBuy, 10000, 1), View{Now: 1}); d.Reason != ReasonInstrumentNotAllowed {
		t.Fatalf("reason %v", d.Reason)
	}
}

func TestPositionLimitProperty(t *testing.T) {
	const maxPos = 5_000
	g, sym := newTestGate(t, Limits{MaxPosition: maxPos})

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		pos := schema.Quantity(rng.Int63n(20_001) - 10_000)
		qty := schema.Quantity(rng.Int63n(8_000) + 1)
		side := schema.OrderSideBuy
		if rng.Intn(2) == 1 {
			side = schema.OrderSideSell
		}

		d := g.Evaluate(intent(sym, side, 10000, qty), View{Position: pos, Now: int64(i + 1)})
		next := int64(pos) + int64(qty)
		if side == schema.OrderSideSell {
			next = int64(pos) - int64(qty)
		}
		exceeds := next > maxPos || next < -maxPos
		if exceeds && d.Allowed() {
			t.Fatalf("pos %d %v qty %d -> next %d allowed past limit", pos, side, qty, next)
		}
		if !exceeds && d.Reason == ReasonPositionLimit {
			t.Fatalf("pos %d %v qty %d -> next %d denied within limit", pos, side, qty, next)
		}
	}
}

func TestReduceOnlySkipsPositionLimit(t *testing.T) {
	g, sym := newTestGate(t, Limits{MaxPosition: 100})
	in := intent(sym, schema.OrderSideSell, 10000, 500)
	in.ReduceOnly = true
	if d := g.Evaluate(in, View{Position: 500, Now: 1}); !d.Allowed() {
		t.Fatalf("reduce-only denied: %v", d.Reason)
	}
}

func TestMaxNotional(t *testing.T) {
	g, sym := newTestGate(t, Limits{MaxOrderNotional: 500_000}) // 50 USDT
	// 100.00 * 0.400 = 40.0000
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 400), View{Now: 1}); !d.Allowed() {
		t.Fatalf("denied: %v", d.Reason)
	}
	// 100.00 * 0.600 = 60.0000
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 600), View{Now: 2}); d.Reason != ReasonMaxNotional {
		t.Fatalf("reason %v", d.Reason)
	}
}

func TestMaxOpenOrders(t *testing.T) {
	g, sym := newTestGate(t, Limits{MaxOpenOrders: 3})
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1), View{OpenOrderCount: 2, Now: 1}); !d.Allowed() {
		t.Fatalf("denied: %v", d.Reason)
	}
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1), View{OpenOrderCount: 3, Now: 2}); d.Reason != ReasonMaxOpenOrders {
		t.Fatalf("reason %v", d.Reason)
	}
}

func TestMinOrderInterval(t *testing.T) {
	g, sym := newTestGate(t, Limits{MinOrderInterval: time.Second})
	base := time.Now().UTC().UnixNano()

	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1000), View{Now: base}); !d.Allowed() {
		t.Fatalf("first order denied: %v", d.Reason)
	}
	// 0.5s later on the same instrument
	d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1000), View{Now: base + int64(500*time.Millisecond)})
	if d.Reason != ReasonOrderInterval {
		t.Fatalf("reason %v, want order_interval", d.Reason)
	}
	// 1.1s after the approved order
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1000), View{Now: base + int64(1100*time.Millisecond)}); !d.Allowed() {
		t.Fatalf("order after interval denied: %v", d.Reason)
	}
}

func TestReduceOnlySkipsPacing(t *testing.T) {
	g, sym := newTestGate(t, Limits{MinOrderInterval: time.Second})
	base := time.Now().UTC().UnixNano()

	closing := intent(sym, schema.OrderSideSell, 10000, 1000)
	closing.ReduceOnly = true
	if d := g.Evaluate(closing, View{Position: 1000, Now: base}); !d.Allowed() {
		t.Fatalf("reduce-only denied: %v", d.Reason)
	}

	// the close did not start a pacing window; an entry right after passes
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1000), View{Now: base + int64(100*time.Millisecond)}); !d.Allowed() {
		t.Fatalf("entry after close denied: %v", d.Reason)
	}

	// a protective exit inside the entry's window is still exempt
	if d := g.Evaluate(closing, View{Position: 1000, Now: base + int64(200*time.Millisecond)}); !d.Allowed() {
		t.Fatalf("exit inside window denied: %v", d.Reason)
	}
}

func TestDeniedIntentDoesNotUpdateInterval(t *testing.T) {
	g, sym := newTestGate(t, Limits{MaxOpenOrders: 1, MinOrderInterval: time.Second})
	base := time.Now().UTC().UnixNano()

	// denied by open-order count; must not start the pacing window
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1), View{OpenOrderCount: 1, Now: base}); d.Allowed() {
		t.Fatal("expected deny")
	}
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1), View{OpenOrderCount: 0, Now: base + 1}); !d.Allowed() {
		t.Fatalf("denied: %v", d.Reason)
	}
}

func TestKillSwitch(t *testing.T) {
	g, sym := newTestGate(t, Limits{KillSwitch: true})
	if d := g.Evaluate(intent(sym, schema.OrderSideBuy, 10000, 1), View{Now: 1}); d.Reason != ReasonKillSwitch {
		t.Fatalf("reason %v", d.Reason)
	}
}
