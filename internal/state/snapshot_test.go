package state

import (
	"path/filepath"
	"testing"

	"main/internal/ledger"
	"main/internal/schema"
)

func testLedger(t *testing.T) (*ledger.Ledger, schema.SymbolID) {
	t.Helper()
	reg := schema.NewRegistry()
	id, err := reg.AddSymbol(schema.Symbol{
		Name:  "BTCUSDT",
		Scale: schema.ScaleSpec{PriceScale: 2, QuantityScale: 3},
	})
	if err != nil {
		t.Fatalf("add symbol: %v", err)
	}
	return ledger.NewLedger(reg, "USDT"), id
}

func TestSnapshotRoundTrip(t *testing.T) {
	l, sym := testLedger(t)
	l.SetTotalBalance(10_000_000)
	l.ApplyFill(schema.FillEvent{
		TradeID: "t1", SymbolID: sym,
		Side: schema.OrderSideBuy, Price: 10000, Qty: 400, Ts: 1,
	})

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := WriteSnapshot(path, NewSnapshot(l, 42)); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored, _ := testLedger(t)
	lastSeq, recovered, err := Recover(path, restored)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered || lastSeq != 42 {
		t.Fatalf("recovered %v lastSeq %d", recovered, lastSeq)
	}
	if p := restored.Position(sym); p.Qty != 400 {
		t.Fatalf("restored position: %+v", p)
	}
	if b := restored.Balance(); b != l.Balance() {
		t.Fatalf("restored balance %+v want %+v", b, l.Balance())
	}
}

func TestRecoverMissingFile(t *testing.T) {
	l, _ := testLedger(t)
	lastSeq, recovered, err := Recover(filepath.Join(t.TempDir(), "absent.json"), l)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered || lastSeq != 0 {
		t.Fatalf("recovered %v lastSeq %d from missing file", recovered, lastSeq)
	}
}

func TestRecoverEmptyPathDisabled(t *testing.T) {
	l, _ := testLedger(t)
	if _, recovered, err := Recover("", l); err != nil || recovered {
		t.Fatalf("recovered %v err %v", recovered, err)
	}
}
