package market

import (
	"sort"
	"sync"

	"main/internal/schema"
)

// Book is an immutable copy of the cached order book for one symbol.
// Bids are price-descending, asks price-ascending.
type Book struct {
	SymbolID schema.SymbolID
	Version  uint64
	Bids     []schema.PriceLevel
	Asks     []schema.PriceLevel
}

// BestBid returns the highest bid level.
func (b Book) BestBid() (schema.PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return schema.PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level.
func (b Book) BestAsk() (schema.PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return schema.PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the bid/ask midpoint price.
func (b Book) Mid() (schema.Price, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return schema.Price((int64(bid.Price) + int64(ask.Price)) / 2), true
}

// DepthQty sums resting quantity over the top n levels of one side.
func (b Book) DepthQty(side schema.OrderSide, n int) schema.Quantity {
	levels := b.Bids
	if side == schema.OrderSideSell {
		levels = b.Asks
	}
	if n > len(levels) {
		n = len(levels)
	}
	var total int64
	for _, lv := range levels[:n] {
		total += int64(lv.Qty)
	}
	return schema.Quantity(total)
}

type bookState struct {
	version uint64
	valid   bool
	bids    []schema.PriceLevel
	asks    []schema.PriceLevel
}

// Cache holds the latest book and ticker per instrument. Writes come
// from the single reconciliation goroutine; reads return copies so the
// decision loop never observes a half-applied update.
type Cache struct {
	mu      sync.RWMutex
	books   map[schema.SymbolID]*bookState
	tickers map[schema.SymbolID]schema.TickerUpdate
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		books:   make(map[schema.SymbolID]*bookState),
		tickers: make(map[schema.SymbolID]schema.TickerUpdate),
	}
}

// ApplyEvent applies a book or ticker event. It reports whether the
// event changed the cache; stale book versions are dropped.
func (c *Cache) ApplyEvent(ev schema.Event) bool {
	switch ev.Kind {
	case schema.EventBook:
		if ev.Book == nil {
			return false
		}
		return c.applyBook(ev.Book)
	case schema.EventTicker:
		if ev.Ticker == nil {
			return false
		}
		c.mu.Lock()
		c.tickers[ev.Ticker.SymbolID] = *ev.Ticker
		c.mu.Unlock()
		return true
	default:
		return false
	}
}

func (c *Cache) applyBook(u *schema.BookUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.books[u.SymbolID]
	if st == nil {
		st = &bookState{}
		c.books[u.SymbolID] = st
	}
	if u.Version <= st.version && st.version != 0 {
		return false
	}
	if u.Full {
		st.bids = append(st.bids[:0], u.Bids...)
		st.asks = append(st.asks[:0], u.Asks...)
		sortLevels(st.bids, st.asks)
		st.version = u.Version
		st.valid = true
		return true
	}
	if !st.valid {
		// deltas on an invalidated book are untrusted until the
		// next full snapshot
		return false
	}
	st.bids = patchSide(st.bids, u.Bids, func(a, b schema.Price) bool { return a > b })
	st.asks = patchSide(st.asks, u.Asks, func(a, b schema.Price) bool { return a < b })
	st.version = u.Version
	return true
}

// Invalidate marks the symbol's book as untrusted after a sequence gap.
// Deltas are ignored until the next full snapshot arrives.
func (c *Cache) Invalidate(symbolID schema.SymbolID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.books[symbolID]; st != nil {
		st.valid = false
	}
}

// InvalidateAll marks every cached book as untrusted, used after a
// stream disconnect.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.books {
		st.valid = false
	}
}

// Snapshot returns an immutable copy of the symbol's book. ok is false
// when no valid book is cached.
func (c *Cache) Snapshot(symbolID schema.SymbolID) (Book, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.books[symbolID]
	if st == nil || !st.valid {
		return Book{}, false
	}
	out := Book{
		SymbolID: symbolID,
		Version:  st.version,
		Bids:     make([]schema.PriceLevel, len(st.bids)),
		Asks:     make([]schema.PriceLevel, len(st.asks)),
	}
	copy(out.Bids, st.bids)
	copy(out.Asks, st.asks)
	return out, true
}

// Ticker returns the latest ticker for the symbol.
func (c *Cache) Ticker(symbolID schema.SymbolID) (schema.TickerUpdate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickers[symbolID]
	return t, ok
}

// LastPrice returns the latest trade price, falling back to the book
// midpoint when no ticker has arrived yet.
func (c *Cache) LastPrice(symbolID schema.SymbolID) (schema.Price, bool) {
	if t, ok := c.Ticker(symbolID); ok && t.Last != 0 {
		return t.Last, true
	}
	snap, ok := c.Snapshot(symbolID)
	if !ok {
		return 0, false
	}
	return snap.Mid()
}

func sortLevels(bids, asks []schema.PriceLevel) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
}

// patchSide merges delta levels into a sorted side. Zero quantity
// removes the level, otherwise the level is replaced or inserted at
// its sorted position.
func patchSide(side, deltas []schema.PriceLevel, before func(a, b schema.Price) bool) []schema.PriceLevel {
	for _, d := range deltas {
		idx := sort.Search(len(side), func(i int) bool {
			return !before(side[i].Price, d.Price)
		})
		found := idx < len(side) && side[idx].Price == d.Price
		switch {
		case d.Qty == 0 && found:
			side = append(side[:idx], side[idx+1:]...)
		case d.Qty == 0:
			// removal of an unknown level, ignore
		case found:
			side[idx].Qty = d.Qty
		default:
			side = append(side, schema.PriceLevel{})
			copy(side[idx+1:], side[idx:])
			side[idx] = d
		}
	}
	return side
}
