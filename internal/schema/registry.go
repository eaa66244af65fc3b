package schema

import "fmt"

// ScaleSpec defines scaling for an instrument's numeric fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale"`
	QuantityScale Scale `json:"quantityScale"`
}

// SymbolID is the numeric identifier for an instrument.
type SymbolID uint32

// Symbol describes a tradable instrument. Immutable once registered;
// lot constraints come from exchange contract metadata.
type Symbol struct {
	ID          SymbolID
	Name        string
	BaseAsset   string
	QuoteAsset  string
	Scale       ScaleSpec
	MinQty      Quantity
	QtyStep     Quantity
	MinNotional Notional
}

// Registry stores instrument mappings in a compact form.
type Registry struct {
	symbols      []Symbol
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		symbolByName: make(map[string]SymbolID),
	}
}

// AddSymbol registers a new instrument and returns its ID.
func (r *Registry) AddSymbol(sym Symbol) (SymbolID, error) {
	if sym.Name == "" {
		return 0, fmt.Errorf("symbol name is empty")
	}
	if id, ok := r.symbolByName[sym.Name]; ok {
		return id, fmt.Errorf("symbol already exists: %s", sym.Name)
	}
	if sym.Scale.PriceScale < 0 || sym.Scale.QuantityScale < 0 {
		return 0, fmt.Errorf("invalid scale for %s", sym.Name)
	}
	id := SymbolID(len(r.symbols) + 1)
	sym.ID = id
	r.symbols = append(r.symbols, sym)
	r.symbolByName[sym.Name] = id
	return id, nil
}

// Symbol returns the instrument by ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if id == 0 || int(id) > len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// SymbolIDByName returns the instrument ID for a name.
func (r *Registry) SymbolIDByName(name string) (SymbolID, bool) {
	id, ok := r.symbolByName[name]
	return id, ok
}

// SymbolCount returns the number of registered instruments.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// SymbolAt returns the instrument by zero-based index.
func (r *Registry) SymbolAt(index int) (Symbol, bool) {
	if index < 0 || index >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[index], true
}
