package ledger

import "main/internal/schema"

// Snapshot is the persistable ledger state.
type Snapshot struct {
	Orders    []Order    `json:"orders"`
	Positions []Position `json:"positions"`
	Balance   Balance    `json:"balance"`
	SeenFills []string   `json:"seen_fills"`
}

// Export copies the full ledger state for persistence.
func (l *Ledger) Export() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Snapshot{
		Orders:    make([]Order, 0, len(l.orders)),
		Positions: make([]Position, 0, len(l.positions)),
		Balance:   l.balance,
		SeenFills: make([]string, 0, len(l.seenFills)),
	}
	for _, o := range l.orders {
		s.Orders = append(s.Orders, *o)
	}
	for _, p := range l.positions {
		s.Positions = append(s.Positions, *p)
	}
	for id := range l.seenFills {
		s.SeenFills = append(s.SeenFills, id)
	}
	return s
}

// Restore replaces the ledger state with a snapshot.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders = make(map[string]*Order, len(s.Orders))
	l.byExchID = make(map[string]string, len(s.Orders))
	for i := range s.Orders {
		o := s.Orders[i]
		l.orders[o.ClientOrderID] = &o
		if o.ExchangeOrderID != "" {
			l.byExchID[o.ExchangeOrderID] = o.ClientOrderID
		}
	}
	l.positions = make(map[schema.SymbolID]*Position, len(s.Positions))
	for i := range s.Positions {
		p := s.Positions[i]
		l.positions[p.SymbolID] = &p
	}
	l.seenFills = make(map[string]struct{}, len(s.SeenFills))
	for _, id := range s.SeenFills {
		l.seenFills[id] = struct{}{}
	}
	l.balance = s.Balance
}
