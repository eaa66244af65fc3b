package schema

// Candle is one OHLCV bar, prices at the instrument's price scale and
// volume at its quantity scale.
type Candle struct {
	Ts     int64
	Open   Price
	High   Price
	Low    Price
	Close  Price
	Volume Quantity
}
