package bitget

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

const (
	publicStreamURL  = "wss://ws.bitget.com/v2/ws/public"
	privateStreamURL = "wss://ws.bitget.com/v2/ws/private"

	ChannelBooks   = "books15"
	ChannelTicker  = "ticker"
	ChannelOrders  = "orders"
	ChannelAccount = "account"

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// StreamConfig configures one streaming connection.
type StreamConfig struct {
	URL         string
	Private     bool
	Credentials Credentials
	Clock       *Clock
	ProductType string
	Backoff     Backoff
}

// Stream maintains one long-lived connection, re-subscribing after a
// reconnect. It only emits events; it never touches ledger or cache.
type Stream struct {
	cfg   StreamConfig
	reg   *schema.Registry
	queue *bus.Queue

	mu      sync.Mutex
	topics  []wsArg
	lastSeq map[string]uint64

	recvSeq uint64
}

// NewPublicStream creates a stream for market data channels.
func NewPublicStream(reg *schema.Registry, queue *bus.Queue, productType string, backoff Backoff) *Stream {
	return newStream(StreamConfig{
		URL:         publicStreamURL,
		ProductType: productType,
		Backoff:     backoff,
	}, reg, queue)
}

// NewPrivateStream creates a stream for order and account channels.
// The login signature uses the same server-corrected clock as REST.
func NewPrivateStream(reg *schema.Registry, queue *bus.Queue, productType string, creds Credentials, clock *Clock, backoff Backoff) *Stream {
	return newStream(StreamConfig{
		URL:         privateStreamURL,
		Private:     true,
		Credentials: creds,
		Clock:       clock,
		ProductType: productType,
		Backoff:     backoff,
	}, reg, queue)
}

func newStream(cfg StreamConfig, reg *schema.Registry, queue *bus.Queue) *Stream {
	if cfg.ProductType == "" {
		cfg.ProductType = defaultProductType
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	return &Stream{
		cfg:     cfg,
		reg:     reg,
		queue:   queue,
		lastSeq: make(map[string]uint64),
	}
}

// OverrideURL points the stream at a non-default endpoint, for demo
// or sandbox environments. Call before Run.
func (s *Stream) OverrideURL(url string) {
	if url != "" {
		s.cfg.URL = url
	}
}

// Subscribe registers a topic. Effective on the next (re)connect;
// call before Run.
func (s *Stream) Subscribe(channel, instID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, wsArg{
		InstType: s.cfg.ProductType,
		Channel:  channel,
		InstID:   instID,
	})
}

// Run keeps the connection alive until ctx is done, reconnecting with
// exponential backoff and re-subscribing to all registered topics.
func (s *Stream) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.connectAndConsume(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		wait := s.cfg.Backoff.Next(attempt)
		logs.Warnf("stream disconnected: %+v, reconnecting in %v (attempt %d)", err, wait, attempt)
		s.emit(ctx, schema.Event{Kind: schema.EventDisconnected})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Stream) connectAndConsume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, "dial stream")
	}
	defer conn.Close()

	if s.cfg.Private {
		if err := s.login(conn); err != nil {
			return err
		}
	}
	if err := s.subscribeAll(conn); err != nil {
		return err
	}

	// Dropped per-channel sequences force a fresh baseline; the first
	// message after reconnect is treated as a new snapshot.
	s.mu.Lock()
	s.lastSeq = make(map[string]uint64)
	s.mu.Unlock()

	s.emit(ctx, schema.Event{Kind: schema.EventConnected})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.keepAlive(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read stream message")
		}
		if string(raw) == "pong" {
			continue
		}
		s.handleMessage(ctx, raw)
	}
}

func (s *Stream) login(conn *websocket.Conn) error {
	now := time.Now()
	if s.cfg.Clock != nil {
		now = s.cfg.Clock.Now()
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	sign := s.cfg.Credentials.sign(timestamp, "GET", "/user/verify", "")
	req := wsRequest{
		Op: "login",
		Args: []wsArg{{
			APIKey:     s.cfg.Credentials.APIKey,
			Passphrase: s.cfg.Credentials.Passphrase,
			Timestamp:  timestamp,
			Sign:       sign,
		}},
	}
	if err := s.writeJSON(conn, req); err != nil {
		return errors.Wrap(err, "send login")
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "read login response")
	}
	var resp wsPush
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(err, "decode login response")
	}
	if resp.Event == "error" {
		return &APIError{Code: codeString(resp.Code), Message: resp.Msg}
	}
	return nil
}

func (s *Stream) subscribeAll(conn *websocket.Conn) error {
	s.mu.Lock()
	topics := make([]wsArg, len(s.topics))
	copy(topics, s.topics)
	s.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	if err := s.writeJSON(conn, wsRequest{Op: "subscribe", Args: topics}); err != nil {
		return errors.Wrap(err, "send subscribe")
	}
	return nil
}

func (s *Stream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (s *Stream) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (s *Stream) handleMessage(ctx context.Context, raw []byte) {
	var push wsPush
	if err := json.Unmarshal(raw, &push); err != nil {
		logs.Errorf("decode stream message: %+v", err)
		return
	}
	switch push.Event {
	case "error":
		logs.Errorf("stream error event: code=%s msg=%s", codeString(push.Code), push.Msg)
		return
	case "subscribe", "login", "pong":
		return
	}
	if push.Arg.Channel == "" || len(push.Data) == 0 {
		return
	}

	switch push.Arg.Channel {
	case ChannelBooks:
		s.handleBook(ctx, push)
	case ChannelTicker:
		s.handleTicker(ctx, push)
	case ChannelOrders:
		s.handleOrders(ctx, push)
	case ChannelAccount:
		s.handleAccount(ctx, push)
	}
}

func (s *Stream) handleBook(ctx context.Context, push wsPush) {
	sym, ok := s.symbol(push.Arg.InstID)
	if !ok {
		return
	}
	var rows []wsBookData
	if err := json.Unmarshal(push.Data, &rows); err != nil || len(rows) == 0 {
		logs.Errorf("decode book data: %+v", err)
		return
	}
	data := rows[len(rows)-1]
	full := push.Action == "snapshot"

	if gap := s.checkSequence(push.Arg.Channel+"|"+push.Arg.InstID, data.Seq, full); gap != nil {
		s.emit(ctx, schema.Event{Kind: schema.EventGap, TsRecv: nowNano(), Gap: gap})
		return
	}

	book, err := bookFromWire(sym, full, data)
	if err != nil {
		logs.Errorf("parse book: %+v", err)
		return
	}
	s.emit(ctx, schema.Event{
		Kind:    schema.EventBook,
		TsEvent: parseMillis(data.Ts) * int64(time.Millisecond),
		TsRecv:  nowNano(),
		Book:    book,
	})
}

func (s *Stream) handleTicker(ctx context.Context, push wsPush) {
	sym, ok := s.symbol(push.Arg.InstID)
	if !ok {
		return
	}
	var rows []wsTickerData
	if err := json.Unmarshal(push.Data, &rows); err != nil || len(rows) == 0 {
		logs.Errorf("decode ticker data: %+v", err)
		return
	}
	data := rows[len(rows)-1]
	last, err := parsePrice(sym, data.LastPr)
	if err != nil {
		logs.Errorf("parse ticker: %+v", err)
		return
	}
	volume, _ := parseQty(sym, data.BaseVolume)
	changeBps, _ := schema.ParseScaled(data.Change24h, 4)
	s.emit(ctx, schema.Event{
		Kind:    schema.EventTicker,
		TsEvent: parseMillis(data.Ts) * int64(time.Millisecond),
		TsRecv:  nowNano(),
		Ticker: &schema.TickerUpdate{
			SymbolID:     sym.ID,
			Last:         last,
			Change24hBps: changeBps,
			BaseVolume:   volume,
		},
	})
}

func (s *Stream) handleOrders(ctx context.Context, push wsPush) {
	sym, ok := s.symbol(push.Arg.InstID)
	if !ok {
		return
	}
	var rows []wsOrderData
	if err := json.Unmarshal(push.Data, &rows); err != nil {
		logs.Errorf("decode order data: %+v", err)
		return
	}
	for _, row := range rows {
		price, err := parsePrice(sym, row.Price)
		if err != nil {
			logs.Errorf("parse order price: %+v", err)
			continue
		}
		qty, _ := parseQty(sym, row.Size)
		filled, _ := parseQty(sym, row.AccBaseVolume)
		update := &schema.OrderUpdate{
			ClientOrderID:   row.ClientOid,
			ExchangeOrderID: row.OrderID,
			SymbolID:        sym.ID,
			Side:            sideFromWire(row.Side),
			Price:           price,
			Qty:             qty,
			FilledQty:       filled,
			Status:          statusFromWire(row.Status),
			Ts:              parseMillis(row.UTime),
		}
		s.emit(ctx, schema.Event{
			Kind:    schema.EventOrder,
			TsEvent: update.Ts * int64(time.Millisecond),
			TsRecv:  nowNano(),
			Order:   update,
		})

		// A push carrying a trade id is also a fill.
		if row.TradeID != "" {
			fillPrice, err := parsePrice(sym, row.FillPrice)
			if err != nil {
				logs.Errorf("parse fill price: %+v", err)
				continue
			}
			fillQty, err := parseQty(sym, row.BaseVolume)
			if err != nil {
				logs.Errorf("parse fill quantity: %+v", err)
				continue
			}
			fee, _ := schema.ParseScaled(row.FillFee, schema.QuoteScale)
			s.emit(ctx, schema.Event{
				Kind:    schema.EventFill,
				TsEvent: parseMillis(row.FillTime) * int64(time.Millisecond),
				TsRecv:  nowNano(),
				Fill: &schema.FillEvent{
					TradeID:         row.TradeID,
					ClientOrderID:   row.ClientOid,
					ExchangeOrderID: row.OrderID,
					SymbolID:        sym.ID,
					Side:            sideFromWire(row.Side),
					Price:           fillPrice,
					Qty:             fillQty,
					Fee:             schema.Fee(fee),
					Ts:              parseMillis(row.FillTime),
				},
			})
		}
	}
}

func (s *Stream) handleAccount(ctx context.Context, push wsPush) {
	var rows []wsAccountData
	if err := json.Unmarshal(push.Data, &rows); err != nil {
		logs.Errorf("decode account data: %+v", err)
		return
	}
	for _, row := range rows {
		available, err := schema.ParseScaled(row.Available, schema.QuoteScale)
		if err != nil {
			logs.Errorf("parse account available: %+v", err)
			continue
		}
		locked, _ := schema.ParseScaled(row.Frozen, schema.QuoteScale)
		s.emit(ctx, schema.Event{
			Kind:   schema.EventBalance,
			TsRecv: nowNano(),
			Balance: &schema.BalanceUpdate{
				Asset:     row.MarginCoin,
				Available: schema.Notional(available),
				Locked:    schema.Notional(locked),
			},
		})
	}
}

// checkSequence returns a gap descriptor when a non-snapshot message
// does not continue the channel's sequence.
func (s *Stream) checkSequence(key string, seq uint64, full bool) *schema.SequenceGap {
	if seq == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastSeq[key]
	if !full && last != 0 && seq != last+1 {
		s.lastSeq[key] = 0
		return &schema.SequenceGap{Channel: key, Expected: last + 1, Got: seq}
	}
	s.lastSeq[key] = seq
	return nil
}

func (s *Stream) symbol(instID string) (schema.Symbol, bool) {
	id, ok := s.reg.SymbolIDByName(instID)
	if !ok {
		return schema.Symbol{}, false
	}
	return s.reg.Symbol(id)
}

// emit hands an event to the queue. Market data is best-effort: a
// dropped book or ticker is superseded by the next push. Order, fill,
// balance and connectivity events block until the consumer has room;
// losing one would leave the ledger diverged until the next resync.
func (s *Stream) emit(ctx context.Context, e schema.Event) {
	s.recvSeq++
	e.Seq = s.recvSeq
	switch e.Kind {
	case schema.EventBook, schema.EventTicker:
		if err := s.queue.TryPublish(e); err != nil {
			logs.Warnf("drop stream event kind=%d: %+v", e.Kind, err)
		}
	default:
		if err := s.queue.Publish(ctx, e); err != nil {
			logs.Errorf("publish stream event kind=%d: %+v", e.Kind, err)
		}
	}
}

func codeString(v any) string {
	switch code := v.(type) {
	case string:
		return code
	case float64:
		return strconv.FormatInt(int64(code), 10)
	default:
		return ""
	}
}

func nowNano() int64 {
	return time.Now().UTC().UnixNano()
}
