package bitget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func exchangeStub(t *testing.T) (*httptest.Server, *map[string]any) {
	t.Helper()
	lastBody := &map[string]any{}
	mux := http.NewServeMux()

	reply := func(w http.ResponseWriter, data any) {
		json.NewEncoder(w).Encode(map[string]any{"code": "00000", "msg": "success", "data": data})
	}

	mux.HandleFunc("/api/v2/mix/market/contracts", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, []map[string]string{
			{
				"symbol": "BTCUSDT", "baseCoin": "BTC", "quoteCoin": "USDT",
				"pricePlace": "2", "volumePlace": "3",
				"sizeMultiplier": "0.001", "minTradeNum": "0.001", "minTradeUSDT": "5",
			},
			{
				"symbol": "ETHUSDT", "baseCoin": "ETH", "quoteCoin": "USDT",
				"pricePlace": "2", "volumePlace": "2",
				"sizeMultiplier": "0.01", "minTradeNum": "0.01", "minTradeUSDT": "5",
			},
		})
	})
	mux.HandleFunc("/api/v2/mix/order/place-order", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("ACCESS-KEY"))
		require.NotEmpty(t, r.Header.Get("ACCESS-SIGN"))
		require.NotEmpty(t, r.Header.Get("ACCESS-TIMESTAMP"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(lastBody))
		reply(w, map[string]string{"orderId": "exch-1", "clientOid": (*lastBody)["clientOid"].(string)})
	})
	mux.HandleFunc("/api/v2/mix/order/cancel-order", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("ACCESS-SIGN"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(lastBody))
		reply(w, map[string]string{"orderId": "exch-1", "clientOid": (*lastBody)["clientOid"].(string)})
	})
	mux.HandleFunc("/api/v2/mix/order/orders-pending", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]any{"entrustedList": []map[string]string{{
			"symbol": "BTCUSDT", "orderId": "exch-1", "clientOid": "c1",
			"side": "buy", "orderType": "limit",
			"price": "100.00", "size": "0.400", "baseVolume": "0.100",
			"status": "partially_filled", "uTime": "1700000000000",
		}}})
	})
	mux.HandleFunc("/api/v2/mix/market/merge-depth", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]any{
			"bids": [][2]string{{"100.00", "0.500"}},
			"asks": [][2]string{{"100.10", "0.200"}},
			"ts":   "1700000000000",
			"seq":  42,
		})
	})
	mux.HandleFunc("/api/v2/mix/account/accounts", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, []map[string]string{
			{"marginCoin": "USDT", "available": "950.5", "locked": "49.5"},
			{"marginCoin": "BTC", "available": "0.1", "locked": "0"},
		})
	})
	return httptest.NewServer(mux), lastBody
}

func newTestTransport(t *testing.T, baseURL string) (*Transport, *schema.Registry) {
	t.Helper()
	reg := schema.NewRegistry()
	rest := NewRestClient(RestConfig{
		BaseURL: baseURL,
		Credentials: Credentials{
			APIKey:     "key",
			SecretKey:  "secret",
			Passphrase: "phrase",
		},
	})
	tr := NewTransport(rest, reg)
	require.NoError(t, tr.LoadSymbols(context.Background(), []string{"BTCUSDT"}))
	return tr, reg
}

func TestLoadSymbolsFromContracts(t *testing.T) {
	srv, _ := exchangeStub(t)
	defer srv.Close()

	_, reg := newTestTransport(t, srv.URL)
	require.Equal(t, 1, reg.SymbolCount())

	id, ok := reg.SymbolIDByName("BTCUSDT")
	require.True(t, ok)
	sym, _ := reg.Symbol(id)
	assert.Equal(t, schema.Scale(2), sym.Scale.PriceScale)
	assert.Equal(t, schema.Scale(3), sym.Scale.QuantityScale)
	assert.Equal(t, schema.Quantity(1), sym.MinQty)           // 0.001
	assert.Equal(t, schema.Quantity(1), sym.QtyStep)          // 0.001
	assert.Equal(t, schema.Notional(50_000), sym.MinNotional) // 5 USDT
}

func TestSubmitOrderWireFormat(t *testing.T) {
	srv, lastBody := exchangeStub(t)
	defer srv.Close()

	tr, reg := newTestTransport(t, srv.URL)
	id, _ := reg.SymbolIDByName("BTCUSDT")

	orderID, err := tr.SubmitOrder(context.Background(), schema.OrderIntent{
		ClientOrderID: "c1",
		SymbolID:      id,
		Side:          schema.OrderSideBuy,
		Type:          schema.OrderTypeLimit,
		TimeInForce:   schema.TimeInForceGTC,
		Price:         10000,
		Qty:           400,
	})
	require.NoError(t, err)
	assert.Equal(t, "exch-1", orderID)

	body := *lastBody
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, "buy", body["side"])
	assert.Equal(t, "limit", body["orderType"])
	assert.Equal(t, "100.00", body["price"])
	assert.Equal(t, "0.400", body["size"])
	assert.Equal(t, "gtc", body["force"])
	assert.Equal(t, "USDT-FUTURES", body["productType"])
}

func TestSubmitReduceOnlyStopMarket(t *testing.T) {
	srv, lastBody := exchangeStub(t)
	defer srv.Close()

	tr, reg := newTestTransport(t, srv.URL)
	id, _ := reg.SymbolIDByName("BTCUSDT")

	_, err := tr.SubmitOrder(context.Background(), schema.OrderIntent{
		ClientOrderID: "c2",
		SymbolID:      id,
		Side:          schema.OrderSideSell,
		Type:          schema.OrderTypeStopMarket,
		Qty:           400,
		TriggerPrice:  9800,
		ReduceOnly:    true,
	})
	require.NoError(t, err)

	body := *lastBody
	assert.Equal(t, "stop_market", body["orderType"])
	assert.Equal(t, "98.00", body["triggerPrice"])
	assert.Equal(t, "YES", body["reduceOnly"])
	_, hasPrice := body["price"]
	assert.False(t, hasPrice, "market stop must not carry a limit price")
}

func TestCancelOrderWireFormat(t *testing.T) {
	srv, lastBody := exchangeStub(t)
	defer srv.Close()

	tr, reg := newTestTransport(t, srv.URL)
	id, _ := reg.SymbolIDByName("BTCUSDT")

	require.NoError(t, tr.CancelOrder(context.Background(), id, "c1"))

	body := *lastBody
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, "c1", body["clientOid"])
	assert.Equal(t, "USDT-FUTURES", body["productType"])
}

func TestOpenOrdersMapping(t *testing.T) {
	srv, _ := exchangeStub(t)
	defer srv.Close()

	tr, reg := newTestTransport(t, srv.URL)
	id, _ := reg.SymbolIDByName("BTCUSDT")

	orders, err := tr.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	u := orders[0]
	assert.Equal(t, "c1", u.ClientOrderID)
	assert.Equal(t, "exch-1", u.ExchangeOrderID)
	assert.Equal(t, id, u.SymbolID)
	assert.Equal(t, schema.Price(10000), u.Price)
	assert.Equal(t, schema.Quantity(400), u.Qty)
	assert.Equal(t, schema.Quantity(100), u.FilledQty)
	assert.Equal(t, schema.OrderStatusPartFilled, u.Status)
}

func TestBookSnapshotResync(t *testing.T) {
	srv, _ := exchangeStub(t)
	defer srv.Close()

	tr, reg := newTestTransport(t, srv.URL)
	id, _ := reg.SymbolIDByName("BTCUSDT")

	book, err := tr.BookSnapshot(context.Background(), id, 15)
	require.NoError(t, err)
	assert.True(t, book.Full)
	assert.Equal(t, uint64(42), book.Version)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, schema.Price(10000), book.Bids[0].Price)
	assert.Equal(t, schema.Quantity(500), book.Bids[0].Qty)
}

func TestQuoteBalance(t *testing.T) {
	srv, _ := exchangeStub(t)
	defer srv.Close()

	tr, _ := newTestTransport(t, srv.URL)
	total, err := tr.QuoteBalance(context.Background())
	require.NoError(t, err)
	// 950.5 + 49.5 = 1000.0000
	assert.Equal(t, schema.Notional(10_000_000), total)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "40037", "msg": "apikey not exist"})
	}))
	defer srv.Close()

	rest := NewRestClient(RestConfig{BaseURL: srv.URL})
	_, err := rest.Accounts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "40037", apiErr.Code)
	assert.True(t, IsAuth(err))
	assert.False(t, IsTransient(err))
}
