package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"main/internal/schema"
	"main/internal/state"
)

// Prints a saved trading snapshot in human units, for checking what
// the trader will recover from before restarting it.
func main() {
	path := flag.String("snapshot", "testdata/snapshot.json", "Snapshot file to inspect")
	openOnly := flag.Bool("open-only", false, "Show only non-terminal orders")
	flag.Parse()

	snap, err := state.ReadSnapshot(*path)
	if err != nil {
		log.Fatalf("read snapshot failed: %v", err)
	}

	fmt.Printf("taken:    %s\n", time.Unix(0, snap.Timestamp).UTC().Format(time.RFC3339))
	fmt.Printf("last seq: %d\n", snap.LastSeq)
	fmt.Printf("balance:  total=%s reserved=%s available=%s\n",
		schema.FormatScaled(int64(snap.Ledger.Balance.Total), schema.QuoteScale),
		schema.FormatScaled(int64(snap.Ledger.Balance.Reserved), schema.QuoteScale),
		schema.FormatScaled(int64(snap.Ledger.Balance.Available()), schema.QuoteScale))

	fmt.Printf("\npositions (%d):\n", len(snap.Ledger.Positions))
	for _, p := range snap.Ledger.Positions {
		fmt.Printf("  symbol=%d qty=%d avg_entry=%d realized=%s\n",
			p.SymbolID, p.Qty, p.AvgEntry,
			schema.FormatScaled(int64(p.Realized), schema.QuoteScale))
	}

	shown := 0
	fmt.Printf("\norders (%d tracked):\n", len(snap.Ledger.Orders))
	for _, o := range snap.Ledger.Orders {
		if *openOnly && o.State.Terminal() {
			continue
		}
		shown++
		fmt.Printf("  %s exch=%s symbol=%d %s %s px=%d qty=%d filled=%d state=%s\n",
			o.ClientOrderID, o.ExchangeOrderID, o.SymbolID, o.Side, o.Type,
			o.Price, o.Qty, o.FilledQty, o.State)
	}
	if *openOnly {
		fmt.Printf("  (%d open)\n", shown)
	}
	fmt.Printf("\nseen fills: %d\n", len(snap.Ledger.SeenFills))
}
