package bitget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/schema"
)

var upgrader = websocket.Upgrader{}

func newStreamRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := reg.AddSymbol(schema.Symbol{
		Name:       "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Scale:      schema.ScaleSpec{PriceScale: 2, QuantityScale: 3},
		MinQty:     1,
		QtyStep:    1,
	})
	require.NoError(t, err)
	return reg
}

// wsServer runs script against each websocket connection and keeps the
// connection open afterwards until the client goes away.
func wsServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// collect consumes queue events until want kinds were seen or the
// deadline passes. Connected/Disconnected markers are passed through.
func collect(t *testing.T, q *bus.Queue, want int) []schema.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out []schema.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(e schema.Event) {
			out = append(out, e)
			if len(out) >= want {
				cancel()
			}
		})
	}()
	<-done
	require.GreaterOrEqual(t, len(out), want, "timed out collecting events: %+v", out)
	return out
}

func TestPublicStreamBookAndTicker(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var req wsRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, "subscribe", req.Op)
		require.Len(t, req.Args, 2)
		assert.Equal(t, ChannelBooks, req.Args[0].Channel)
		assert.Equal(t, "BTCUSDT", req.Args[0].InstID)

		writeText := func(s string) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(s)))
		}
		writeText(`{"event":"subscribe","arg":{"channel":"books15","instId":"BTCUSDT"}}`)
		writeText(`{"action":"snapshot","arg":{"instType":"USDT-FUTURES","channel":"books15","instId":"BTCUSDT"},` +
			`"data":[{"bids":[["100.00","0.500"]],"asks":[["100.10","0.200"]],"ts":"1700000000000","seq":5}]}`)
		writeText(`{"action":"update","arg":{"instType":"USDT-FUTURES","channel":"books15","instId":"BTCUSDT"},` +
			`"data":[{"bids":[["99.90","0.300"]],"asks":[],"ts":"1700000000100","seq":6}]}`)
		writeText(`{"action":"snapshot","arg":{"instType":"USDT-FUTURES","channel":"ticker","instId":"BTCUSDT"},` +
			`"data":[{"instId":"BTCUSDT","lastPr":"100.05","change24h":"0.012","baseVolume":"1234.5","ts":"1700000000200"}]}`)
	})
	defer srv.Close()

	reg := newStreamRegistry(t)
	queue := bus.NewQueue(32)
	stream := NewPublicStream(reg, queue, "USDT-FUTURES", DefaultBackoff())
	stream.OverrideURL(wsURL(srv))
	stream.Subscribe(ChannelBooks, "BTCUSDT")
	stream.Subscribe(ChannelTicker, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stream.Run(ctx) }()

	events := collect(t, queue, 4)
	require.Equal(t, schema.EventConnected, events[0].Kind)

	snap := events[1]
	require.Equal(t, schema.EventBook, snap.Kind)
	assert.True(t, snap.Book.Full)
	assert.Equal(t, uint64(5), snap.Book.Version)
	require.Len(t, snap.Book.Bids, 1)
	assert.Equal(t, schema.Price(10000), snap.Book.Bids[0].Price)
	assert.Equal(t, schema.Quantity(500), snap.Book.Bids[0].Qty)

	delta := events[2]
	require.Equal(t, schema.EventBook, delta.Kind)
	assert.False(t, delta.Book.Full)
	assert.Equal(t, uint64(6), delta.Book.Version)

	tick := events[3]
	require.Equal(t, schema.EventTicker, tick.Kind)
	assert.Equal(t, schema.Price(10005), tick.Ticker.Last)
	assert.Equal(t, int64(120), tick.Ticker.Change24hBps)
}

func TestPublicStreamSequenceGap(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage() // subscribe
		require.NoError(t, err)
		writeText := func(s string) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(s)))
		}
		writeText(`{"action":"snapshot","arg":{"channel":"books15","instId":"BTCUSDT"},` +
			`"data":[{"bids":[["100.00","0.500"]],"asks":[],"ts":"1700000000000","seq":5}]}`)
		// seq jumps from 5 to 9
		writeText(`{"action":"update","arg":{"channel":"books15","instId":"BTCUSDT"},` +
			`"data":[{"bids":[["99.90","0.300"]],"asks":[],"ts":"1700000000100","seq":9}]}`)
	})
	defer srv.Close()

	reg := newStreamRegistry(t)
	queue := bus.NewQueue(32)
	stream := NewPublicStream(reg, queue, "USDT-FUTURES", DefaultBackoff())
	stream.OverrideURL(wsURL(srv))
	stream.Subscribe(ChannelBooks, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stream.Run(ctx) }()

	events := collect(t, queue, 3)
	require.Equal(t, schema.EventGap, events[2].Kind)
	require.NotNil(t, events[2].Gap)
	assert.Equal(t, uint64(6), events[2].Gap.Expected)
	assert.Equal(t, uint64(9), events[2].Gap.Got)
}

func TestPrivateStreamLoginOrdersAndFill(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var login wsRequest
		require.NoError(t, json.Unmarshal(raw, &login))
		require.Equal(t, "login", login.Op)
		require.Len(t, login.Args, 1)
		assert.Equal(t, "key", login.Args[0].APIKey)
		assert.Equal(t, "phrase", login.Args[0].Passphrase)
		assert.NotEmpty(t, login.Args[0].Sign)
		assert.NotEmpty(t, login.Args[0].Timestamp)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"login","code":0}`)))

		_, _, err = conn.ReadMessage() // subscribe
		require.NoError(t, err)
		push := `{"action":"snapshot","arg":{"channel":"orders","instId":"BTCUSDT"},"data":[{` +
			`"instId":"BTCUSDT","orderId":"e1","clientOid":"c1","side":"buy",` +
			`"price":"100.00","size":"0.400","accBaseVolume":"0.400","status":"filled",` +
			`"tradeId":"t1","fillPrice":"100.00","baseVolume":"0.400","fillFee":"-0.016","fillTime":"1700000000300",` +
			`"uTime":"1700000000300"}]}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(push)))
	})
	defer srv.Close()

	reg := newStreamRegistry(t)
	queue := bus.NewQueue(32)
	creds := Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "phrase"}
	stream := NewPrivateStream(reg, queue, "USDT-FUTURES", creds, &Clock{}, DefaultBackoff())
	stream.OverrideURL(wsURL(srv))
	stream.Subscribe(ChannelOrders, "default")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stream.Run(ctx) }()

	events := collect(t, queue, 3)
	require.Equal(t, schema.EventConnected, events[0].Kind)

	update := events[1]
	require.Equal(t, schema.EventOrder, update.Kind)
	assert.Equal(t, "c1", update.Order.ClientOrderID)
	assert.Equal(t, "e1", update.Order.ExchangeOrderID)
	assert.Equal(t, schema.OrderStatusFilled, update.Order.Status)
	assert.Equal(t, schema.Quantity(400), update.Order.FilledQty)

	fill := events[2]
	require.Equal(t, schema.EventFill, fill.Kind)
	assert.Equal(t, "t1", fill.Fill.TradeID)
	assert.Equal(t, schema.Price(10000), fill.Fill.Price)
	assert.Equal(t, schema.Quantity(400), fill.Fill.Qty)
	assert.Equal(t, schema.Fee(-160), fill.Fill.Fee)
	assert.Equal(t, int64(1700000000300), fill.Fill.Ts)
}

func TestOrderEventsSurviveFullQueue(t *testing.T) {
	reg := newStreamRegistry(t)
	queue := bus.NewQueue(1)
	require.NoError(t, queue.TryPublish(schema.Event{Kind: schema.EventTicker}))

	creds := Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "phrase"}
	stream := NewPrivateStream(reg, queue, "USDT-FUTURES", creds, &Clock{}, DefaultBackoff())

	push := `{"action":"snapshot","arg":{"channel":"orders","instId":"BTCUSDT"},"data":[{` +
		`"instId":"BTCUSDT","orderId":"e1","clientOid":"c1","side":"buy",` +
		`"price":"100.00","size":"0.400","accBaseVolume":"0.400","status":"filled",` +
		`"tradeId":"t1","fillPrice":"100.00","baseVolume":"0.400","fillFee":"-0.016","fillTime":"1700000000300",` +
		`"uTime":"1700000000300"}]}`

	// The handler must block on the full queue instead of dropping the
	// order and fill events.
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.handleMessage(context.Background(), []byte(push))
	}()

	events := collect(t, queue, 3)
	require.Equal(t, schema.EventOrder, events[1].Kind)
	assert.Equal(t, "c1", events[1].Order.ClientOrderID)
	require.Equal(t, schema.EventFill, events[2].Kind)
	assert.Equal(t, "t1", events[2].Fill.TradeID)
	assert.Equal(t, schema.Quantity(400), events[2].Fill.Qty)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("order push did not complete")
	}
}

func TestLoginErrorSurfacesAPIError(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage() // login
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"error","code":"30005","msg":"login failed"}`)))
	})
	defer srv.Close()

	reg := newStreamRegistry(t)
	queue := bus.NewQueue(8)
	creds := Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "phrase"}
	stream := NewPrivateStream(reg, queue, "USDT-FUTURES", creds, &Clock{}, DefaultBackoff())
	stream.OverrideURL(wsURL(srv))

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	err = stream.login(conn)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "30005", apiErr.Code)
}
