package bitget

import "encoding/json"

// envelope is the standard response wrapper on every REST endpoint.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

const codeOK = "00000"

// ContractMeta is one entry of /api/v2/mix/market/contracts.
type ContractMeta struct {
	Symbol         string `json:"symbol"`
	BaseCoin       string `json:"baseCoin"`
	QuoteCoin      string `json:"quoteCoin"`
	PricePlace     string `json:"pricePlace"`
	VolumePlace    string `json:"volumePlace"`
	SizeMultiplier string `json:"sizeMultiplier"`
	MinTradeNum    string `json:"minTradeNum"`
	MinTradeUSDT   string `json:"minTradeUSDT"`
}

// TickerData is one entry of /api/v2/mix/market/ticker.
type TickerData struct {
	Symbol     string `json:"symbol"`
	LastPr     string `json:"lastPr"`
	BaseVolume string `json:"baseVolume"`
	Change24h  string `json:"change24h"`
	Ts         string `json:"ts"`
}

// Candle is a single kline row. The exchange returns rows as arrays:
// [ts, open, high, low, close, baseVolume, quoteVolume].
type Candle struct {
	Ts     int64
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
}

// AccountAsset is one entry of /api/v2/mix/account/accounts.
type AccountAsset struct {
	MarginCoin string `json:"marginCoin"`
	Available  string `json:"available"`
	Locked     string `json:"locked"`
	Equity     string `json:"accountEquity"`
}

// PositionData is one entry of /api/v2/mix/position/all-position.
type PositionData struct {
	Symbol       string `json:"symbol"`
	HoldSide     string `json:"holdSide"`
	Total        string `json:"total"`
	OpenPriceAvg string `json:"openPriceAvg"`
	UnrealizedPL string `json:"unrealizedPL"`
}

// PlaceOrderRequest is the body of /api/v2/mix/order/place-order.
type PlaceOrderRequest struct {
	Symbol       string `json:"symbol"`
	ProductType  string `json:"productType"`
	MarginMode   string `json:"marginMode"`
	MarginCoin   string `json:"marginCoin"`
	Size         string `json:"size"`
	Price        string `json:"price,omitempty"`
	Side         string `json:"side"`
	TradeSide    string `json:"tradeSide,omitempty"`
	OrderType    string `json:"orderType"`
	Force        string `json:"force,omitempty"`
	TriggerPrice string `json:"triggerPrice,omitempty"`
	ReduceOnly   string `json:"reduceOnly,omitempty"`
	ClientOid    string `json:"clientOid"`
}

// PlaceOrderData is the success payload of place-order and cancel-order.
type PlaceOrderData struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// OrderData is one entry of orders-pending / order detail.
type OrderData struct {
	Symbol     string `json:"symbol"`
	OrderID    string `json:"orderId"`
	ClientOid  string `json:"clientOid"`
	Side       string `json:"side"`
	OrderType  string `json:"orderType"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	BaseVolume string `json:"baseVolume"`
	Status     string `json:"status"`
	CTime      string `json:"cTime"`
	UTime      string `json:"uTime"`
}

// Streaming message frames.

type wsRequest struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsArg struct {
	InstType string `json:"instType,omitempty"`
	Channel  string `json:"channel,omitempty"`
	InstID   string `json:"instId,omitempty"`

	// login fields
	APIKey     string `json:"apiKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Sign       string `json:"sign,omitempty"`
}

type wsPush struct {
	Event  string          `json:"event,omitempty"`
	Code   any             `json:"code,omitempty"`
	Msg    string          `json:"msg,omitempty"`
	Action string          `json:"action,omitempty"`
	Arg    wsArg           `json:"arg,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Ts     int64           `json:"ts,omitempty"`
}

type wsBookData struct {
	Asks [][2]string `json:"asks"`
	Bids [][2]string `json:"bids"`
	Ts   string      `json:"ts"`
	Seq  uint64      `json:"seq"`
}

type wsTickerData struct {
	InstID     string `json:"instId"`
	LastPr     string `json:"lastPr"`
	Change24h  string `json:"change24h"`
	BaseVolume string `json:"baseVolume"`
	Ts         string `json:"ts"`
}

type wsOrderData struct {
	InstID        string `json:"instId"`
	OrderID       string `json:"orderId"`
	ClientOid     string `json:"clientOid"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	AccBaseVolume string `json:"accBaseVolume"`
	Status        string `json:"status"`
	TradeID       string `json:"tradeId"`
	FillPrice     string `json:"fillPrice"`
	BaseVolume    string `json:"baseVolume"`
	FillFee       string `json:"fillFee"`
	FillTime      string `json:"fillTime"`
	EnterPoint    string `json:"enterPointSource"`
	UTime         string `json:"uTime"`
}

type wsAccountData struct {
	MarginCoin string `json:"marginCoin"`
	Available  string `json:"available"`
	Frozen     string `json:"frozen"`
}
