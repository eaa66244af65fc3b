package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// Price is a scaled integer. The scale is defined per instrument.
type Price int64

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

// Notional is a scaled integer in quote-asset units (price scale).
type Notional int64

// Fee is a scaled integer in quote-asset units (price scale).
type Fee int64

const maxInt64 = int64(^uint64(0) >> 1)

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// Opposite returns the other side, or unknown for unknown input.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return OrderSideUnknown
	}
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeStopMarket
	OrderTypeTakeProfitMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	case OrderTypeStopMarket:
		return "stop_market"
	case OrderTypeTakeProfitMarket:
		return "take_profit_market"
	default:
		return "unknown"
	}
}

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// ParseScaled parses a decimal string into a scaled integer, truncating
// extra fractional digits. The exchange reports all numbers as strings.
func ParseScaled(s string, scale Scale) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(scale) {
		fracPart = fracPart[:scale]
	}
	for len(fracPart) < int(scale) {
		fracPart += "0"
	}
	v, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse scaled %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatScaled renders a scaled integer as a decimal string.
func FormatScaled(v int64, scale Scale) string {
	if scale <= 0 {
		return strconv.FormatInt(v, 10)
	}
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	for len(digits) <= int(scale) {
		digits = "0" + digits
	}
	cut := len(digits) - int(scale)
	out := digits[:cut] + "." + digits[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// QuoteScale is the scale for all quote-asset (USDT) amounts:
// notionals, balances, fees, and PnL.
const QuoteScale Scale = 4

// NotionalValue computes price*qty rescaled into QuoteScale units.
// The second return is true on overflow.
func NotionalValue(price Price, qty Quantity, spec ScaleSpec) (Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	sign := int64(1)
	if p < 0 {
		p = -p
		sign = -sign
	}
	if q < 0 {
		q = -q
		sign = -sign
	}
	if p > maxInt64/q {
		return 0, true
	}
	raw := p * q
	shift := QuoteScale - spec.PriceScale - spec.QuantityScale
	if shift >= 0 {
		mul := pow10(shift)
		if raw > maxInt64/mul {
			return 0, true
		}
		return Notional(sign * raw * mul), false
	}
	return Notional(sign * (raw / pow10(-shift))), false
}

func pow10(scale Scale) int64 {
	v := int64(1)
	for i := Scale(0); i < scale; i++ {
		v *= 10
	}
	return v
}
