package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultBaseURL     = "https://api.bitget.com"
	defaultProductType = "USDT-FUTURES"
	defaultMarginCoin  = "USDT"

	clockSyncInterval = 5 * time.Minute
)

// RestClient is the authenticated REST surface of the exchange.
type RestClient struct {
	baseURL     string
	productType string
	marginCoin  string
	creds       Credentials
	clock       *Clock
	limiter     *Limiter
	client      *http.Client
}

// RestConfig configures the REST client.
type RestConfig struct {
	BaseURL     string
	ProductType string
	MarginCoin  string
	Credentials Credentials
	Limiter     LimiterConfig
	Timeout     time.Duration
}

// NewRestClient creates a REST client. The clock starts unsynced; call
// SyncClock before the first signed request.
func NewRestClient(cfg RestConfig) *RestClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ProductType == "" {
		cfg.ProductType = defaultProductType
	}
	if cfg.MarginCoin == "" {
		cfg.MarginCoin = defaultMarginCoin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Limiter == (LimiterConfig{}) {
		cfg.Limiter = DefaultLimiterConfig()
	}
	return &RestClient{
		baseURL:     cfg.BaseURL,
		productType: cfg.ProductType,
		marginCoin:  cfg.MarginCoin,
		creds:       cfg.Credentials,
		clock:       &Clock{},
		limiter:     NewLimiter(cfg.Limiter),
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Clock exposes the server-time corrected clock, shared with the
// private stream login.
func (c *RestClient) Clock() *Clock {
	return c.clock
}

// SyncClock samples server time and updates the signing clock.
func (c *RestClient) SyncClock(ctx context.Context) error {
	var data struct {
		ServerTime string `json:"serverTime"`
	}
	before := time.Now()
	if err := c.get(ctx, ClassPublic, "/api/v2/public/time", nil, &data); err != nil {
		return errors.Wrap(err, "fetch server time")
	}
	roundTrip := time.Since(before)
	ms, err := strconv.ParseInt(data.ServerTime, 10, 64)
	if err != nil {
		return errors.Wrap(err, "parse server time")
	}
	c.clock.Adjust(ms, roundTrip)
	logs.Infof("clock synced, offset %v round trip %v", c.clock.Offset(), roundTrip)
	return nil
}

// KeepClockSynced re-syncs the clock periodically until ctx is done.
func (c *RestClient) KeepClockSynced(ctx context.Context) {
	ticker := time.NewTicker(clockSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SyncClock(ctx); err != nil {
				logs.Warnf("clock sync failed: %+v", err)
			}
		}
	}
}

// Contracts fetches instrument metadata for the product type.
func (c *RestClient) Contracts(ctx context.Context) ([]ContractMeta, error) {
	var data []ContractMeta
	query := url.Values{"productType": {c.productType}}
	if err := c.get(ctx, ClassPublic, "/api/v2/mix/market/contracts", query, &data); err != nil {
		return nil, errors.Wrap(err, "fetch contracts")
	}
	return data, nil
}

// Ticker fetches the latest ticker for one symbol.
func (c *RestClient) Ticker(ctx context.Context, symbol string) (TickerData, error) {
	var data []TickerData
	query := url.Values{
		"symbol":      {symbol},
		"productType": {c.productType},
	}
	if err := c.get(ctx, ClassPublic, "/api/v2/mix/market/ticker", query, &data); err != nil {
		return TickerData{}, errors.Wrap(err, "fetch ticker")
	}
	if len(data) == 0 {
		return TickerData{}, errors.New("empty ticker response")
	}
	return data[0], nil
}

// Candles fetches recent klines for one symbol.
func (c *RestClient) Candles(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error) {
	var rows [][]string
	query := url.Values{
		"symbol":      {symbol},
		"productType": {c.productType},
		"granularity": {granularity},
		"limit":       {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, ClassPublic, "/api/v2/mix/market/candles", query, &rows); err != nil {
		return nil, errors.Wrap(err, "fetch candles")
	}
	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Candle{
			Ts:     ts,
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	return out, nil
}

// MergedDepth fetches a full order book snapshot, used for resync.
func (c *RestClient) MergedDepth(ctx context.Context, symbol string, limit int) (wsBookData, error) {
	var data wsBookData
	query := url.Values{
		"symbol":      {symbol},
		"productType": {c.productType},
		"limit":       {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, ClassPublic, "/api/v2/mix/market/merge-depth", query, &data); err != nil {
		return wsBookData{}, errors.Wrap(err, "fetch depth")
	}
	return data, nil
}

// Accounts fetches account balances per margin coin.
func (c *RestClient) Accounts(ctx context.Context) ([]AccountAsset, error) {
	var data []AccountAsset
	query := url.Values{"productType": {c.productType}}
	if err := c.signedGet(ctx, ClassAccount, "/api/v2/mix/account/accounts", query, &data); err != nil {
		return nil, errors.Wrap(err, "fetch accounts")
	}
	return data, nil
}

// Positions fetches all open positions.
func (c *RestClient) Positions(ctx context.Context) ([]PositionData, error) {
	var data []PositionData
	query := url.Values{
		"productType": {c.productType},
		"marginCoin":  {c.marginCoin},
	}
	if err := c.signedGet(ctx, ClassAccount, "/api/v2/mix/position/all-position", query, &data); err != nil {
		return nil, errors.Wrap(err, "fetch positions")
	}
	return data, nil
}

// PlaceOrder submits a new order.
func (c *RestClient) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderData, error) {
	req.ProductType = c.productType
	if req.MarginCoin == "" {
		req.MarginCoin = c.marginCoin
	}
	if req.MarginMode == "" {
		req.MarginMode = "crossed"
	}
	var data PlaceOrderData
	if err := c.signedPost(ctx, ClassTrade, "/api/v2/mix/order/place-order", req, &data); err != nil {
		return PlaceOrderData{}, errors.Wrap(err, "place order").With("clientOid", req.ClientOid)
	}
	return data, nil
}

// CancelOrder cancels an order by client order id.
func (c *RestClient) CancelOrder(ctx context.Context, symbol, clientOid string) (PlaceOrderData, error) {
	body := map[string]string{
		"symbol":      symbol,
		"productType": c.productType,
		"clientOid":   clientOid,
	}
	var data PlaceOrderData
	if err := c.signedPost(ctx, ClassTrade, "/api/v2/mix/order/cancel-order", body, &data); err != nil {
		return PlaceOrderData{}, errors.Wrap(err, "cancel order").With("clientOid", clientOid)
	}
	return data, nil
}

// OpenOrders fetches the exchange's authoritative open order list.
func (c *RestClient) OpenOrders(ctx context.Context, symbol string) ([]OrderData, error) {
	var data struct {
		EntrustedList []OrderData `json:"entrustedList"`
	}
	query := url.Values{"productType": {c.productType}}
	if symbol != "" {
		query.Set("symbol", symbol)
	}
	if err := c.signedGet(ctx, ClassTrade, "/api/v2/mix/order/orders-pending", query, &data); err != nil {
		return nil, errors.Wrap(err, "fetch open orders")
	}
	return data.EntrustedList, nil
}

// OrderDetail fetches the final status of one order.
func (c *RestClient) OrderDetail(ctx context.Context, symbol, clientOid string) (OrderData, error) {
	var data OrderData
	query := url.Values{
		"symbol":      {symbol},
		"productType": {c.productType},
		"clientOid":   {clientOid},
	}
	if err := c.signedGet(ctx, ClassTrade, "/api/v2/mix/order/detail", query, &data); err != nil {
		return OrderData{}, errors.Wrap(err, "fetch order detail").With("clientOid", clientOid)
	}
	return data, nil
}

func (c *RestClient) get(ctx context.Context, class EndpointClass, path string, query url.Values, out any) error {
	return c.do(ctx, class, http.MethodGet, path, query, nil, out, false)
}

func (c *RestClient) signedGet(ctx context.Context, class EndpointClass, path string, query url.Values, out any) error {
	return c.do(ctx, class, http.MethodGet, path, query, nil, out, true)
}

func (c *RestClient) signedPost(ctx context.Context, class EndpointClass, path string, body any, out any) error {
	return c.do(ctx, class, http.MethodPost, path, nil, body, out, true)
}

func (c *RestClient) do(ctx context.Context, class EndpointClass, method, path string, query url.Values, body any, out any, signed bool) error {
	if err := c.limiter.Wait(ctx, class); err != nil {
		return err
	}

	requestPath := path
	if len(query) > 0 {
		requestPath = path + "?" + query.Encode()
	}

	var bodyStr string
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		bodyStr = string(payload)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	if signed {
		timestamp := strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
		req.Header.Set("ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("ACCESS-SIGN", c.creds.sign(timestamp, method, requestPath, bodyStr))
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	var env struct {
		envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Code: strconv.Itoa(resp.StatusCode), Message: string(raw), HTTPStatus: resp.StatusCode}
		}
		return errors.Wrap(err, "decode response envelope")
	}
	if env.Code != codeOK {
		return &APIError{Code: env.Code, Message: env.Message, HTTPStatus: resp.StatusCode}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "decode response data")
		}
	}
	return nil
}
