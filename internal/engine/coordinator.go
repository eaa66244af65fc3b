package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bitget"
	"main/internal/bus"
	"main/internal/ledger"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/publish"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

const resyncBookDepth = 15

// Transport is the exchange surface the coordinator drives. It is the
// subset of the REST client the decision and resync paths need.
type Transport interface {
	SubmitOrder(ctx context.Context, intent schema.OrderIntent) (string, error)
	CancelOrder(ctx context.Context, symbolID schema.SymbolID, clientOrderID string) error
	OpenOrders(ctx context.Context) ([]schema.OrderUpdate, error)
	OrderStatus(ctx context.Context, symbolID schema.SymbolID, clientOrderID string) (schema.OrderUpdate, error)
	BookSnapshot(ctx context.Context, symbolID schema.SymbolID, depth int) (*schema.BookUpdate, error)
	QuoteBalance(ctx context.Context) (schema.Notional, error)
	CandleHistory(ctx context.Context, symbolID schema.SymbolID, granularity string, limit int) ([]schema.Candle, error)
}

// Config is the run-loop tuning for one coordinator.
type Config struct {
	Instruments    []schema.SymbolID
	DecideInterval time.Duration
	MinBalance     schema.Notional
	CloseOnFlip    bool
	StopLossPct    float64
	TakeProfitPct  float64
	ShutdownGrace  time.Duration
	SnapshotEvery  time.Duration
	SnapshotPath   string
	CandleInterval string
	CandleCount    int
}

// Deps are the collaborating components. Archive and Publisher may be
// nil; both are no-ops when absent.
type Deps struct {
	Registry  *schema.Registry
	Queue     *bus.Queue
	Cache     *market.Cache
	Ledger    *ledger.Ledger
	Gate      *risk.Gate
	Strategy  strategy.Strategy
	Transport Transport
	Metrics   *obs.Metrics
	IDs       *obs.IDGenerator
	Archive   *state.Archive
	Publisher *publish.Publisher
}

// Coordinator owns the two run loops: event application in stream
// delivery order, and timer-driven decisions. It holds no market or
// account state of its own; everything lives in the cache and ledger.
type Coordinator struct {
	cfg Config

	reg       *schema.Registry
	queue     *bus.Queue
	cache     *market.Cache
	ledger    *ledger.Ledger
	gate      *risk.Gate
	strat     strategy.Strategy
	transport Transport
	metrics   *obs.Metrics
	ids       *obs.IDGenerator
	archive   *state.Archive
	pub       *publish.Publisher

	lastSeq    atomic.Uint64
	needResync atomic.Bool
	halted     atomic.Bool

	mu       sync.Mutex
	haltErr  error
	decideMu sync.Mutex
}

// New builds a coordinator. LastSeq seeds the high-water mark from a
// recovered snapshot so the next snapshot does not regress.
func New(cfg Config, deps Deps, lastSeq uint64) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		reg:       deps.Registry,
		queue:     deps.Queue,
		cache:     deps.Cache,
		ledger:    deps.Ledger,
		gate:      deps.Gate,
		strat:     deps.Strategy,
		transport: deps.Transport,
		metrics:   deps.Metrics,
		ids:       deps.IDs,
		archive:   deps.Archive,
		pub:       deps.Publisher,
	}
	c.lastSeq.Store(lastSeq)
	c.needResync.Store(true)
	return c
}

// Run drives both loops until ctx is canceled. On cancel the decision
// loop stops submitting immediately; the event loop keeps draining
// stream acknowledgements for the shutdown grace before the final
// snapshot is written.
func (c *Coordinator) Run(ctx context.Context) error {
	evCtx, evCancel := context.WithCancel(context.Background())
	defer evCancel()

	evDone := make(chan struct{})
	go func() {
		defer close(evDone)
		c.queue.Run(evCtx, c.handleEvent)
	}()

	decide := time.NewTicker(c.cfg.DecideInterval)
	defer decide.Stop()
	snapshot := time.NewTicker(c.cfg.SnapshotEvery)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(evCancel, evDone)
			c.persist(context.Background())
			return c.haltedErr()
		case <-decide.C:
			if c.halted.Load() {
				continue
			}
			if c.needResync.CompareAndSwap(true, false) {
				if err := c.resync(ctx); err != nil {
					logs.Warnf("resync failed: %+v", err)
					c.needResync.Store(true)
					continue
				}
			}
			c.decide(ctx)
		case <-snapshot.C:
			c.persist(ctx)
		}
	}
}

// LastSeq returns the highest stream sequence applied so far.
func (c *Coordinator) LastSeq() uint64 {
	return c.lastSeq.Load()
}

// Halted reports whether trading was stopped by a fatal error.
func (c *Coordinator) Halted() bool {
	return c.halted.Load()
}

func (c *Coordinator) drain(evCancel context.CancelFunc, evDone <-chan struct{}) {
	grace := time.NewTimer(c.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-evDone:
	case <-grace.C:
	}
	evCancel()
	<-evDone
	c.queue.Drain(c.handleEvent)
}

func (c *Coordinator) handleEvent(ev schema.Event) {
	c.metrics.ObserveEvent(ev)
	for {
		prev := c.lastSeq.Load()
		if ev.Seq <= prev || c.lastSeq.CompareAndSwap(prev, ev.Seq) {
			break
		}
	}

	switch ev.Kind {
	case schema.EventBook, schema.EventTicker:
		c.cache.ApplyEvent(ev)
	case schema.EventOrder, schema.EventBalance:
		c.ledger.ApplyEvent(ev)
	case schema.EventFill:
		if c.ledger.ApplyEvent(ev) {
			c.onFill(*ev.Fill)
		}
	case schema.EventGap:
		if ev.Gap != nil {
			logs.Warnf("sequence gap on %s: expected %d got %d",
				ev.Gap.Channel, ev.Gap.Expected, ev.Gap.Got)
		}
		c.cache.InvalidateAll()
		c.needResync.Store(true)
	case schema.EventDisconnected:
		c.metrics.IncReconnect()
		c.cache.InvalidateAll()
	case schema.EventConnected:
		c.needResync.Store(true)
	}
}

// resync restores trusted state after a gap or reconnect: open orders
// are reconciled against the exchange, books are replaced by fresh
// snapshots and the quote balance is re-read.
func (c *Coordinator) resync(ctx context.Context) error {
	open, err := c.transport.OpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch open orders")
	}
	err = c.ledger.Reconcile(open, func(clientOrderID string) (schema.OrderUpdate, error) {
		o, ok := c.ledger.Order(clientOrderID)
		if !ok {
			return schema.OrderUpdate{}, errors.Errorf("unknown order %s", clientOrderID)
		}
		return c.transport.OrderStatus(ctx, o.SymbolID, clientOrderID)
	})
	if err != nil {
		return errors.Wrap(err, "reconcile orders")
	}

	for _, symbolID := range c.cfg.Instruments {
		book, err := c.transport.BookSnapshot(ctx, symbolID, resyncBookDepth)
		if err != nil {
			return errors.Wrap(err, "book snapshot").With("symbol_id", symbolID)
		}
		c.cache.ApplyEvent(schema.Event{
			Kind:   schema.EventBook,
			TsRecv: time.Now().UTC().UnixNano(),
			Book:   book,
		})
	}

	total, err := c.transport.QuoteBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch balance")
	}
	c.ledger.SetTotalBalance(total)

	c.metrics.IncResync()
	logs.Infof("resync complete: %d open orders, %d books", len(open), len(c.cfg.Instruments))
	return nil
}

// decide runs one strategy pass over every instrument and routes the
// resulting intents through the risk gate to the exchange.
func (c *Coordinator) decide(ctx context.Context) {
	c.decideMu.Lock()
	defer c.decideMu.Unlock()

	start := time.Now()
	defer func() { c.metrics.ObserveDecision(time.Since(start)) }()

	balance := c.ledger.Balance()
	if balance.Available() < c.cfg.MinBalance {
		logs.Warnf("available balance %s below floor %s, holding",
			schema.FormatScaled(int64(balance.Available()), schema.QuoteScale),
			schema.FormatScaled(int64(c.cfg.MinBalance), schema.QuoteScale))
		return
	}

	for _, symbolID := range c.cfg.Instruments {
		sym, ok := c.reg.Symbol(symbolID)
		if !ok {
			continue
		}
		book, ok := c.cache.Snapshot(symbolID)
		if !ok {
			// book invalidated, wait for the next full snapshot
			continue
		}
		last, _ := c.cache.LastPrice(symbolID)

		in := strategy.Input{
			Symbol:   sym,
			Book:     book,
			Last:     last,
			Position: c.ledger.Position(symbolID),
			Balance:  c.ledger.Balance(),
			Now:      time.Now().UTC().UnixNano(),
		}
		if c.cfg.CandleCount > 0 {
			candles, err := c.transport.CandleHistory(ctx, symbolID, c.cfg.CandleInterval, c.cfg.CandleCount)
			if err != nil {
				logs.Warnf("candle history %s: %+v", sym.Name, err)
			} else {
				in.Candles = candles
			}
		}

		for _, intent := range c.strat.Decide(ctx, in) {
			if c.halted.Load() {
				return
			}
			c.route(ctx, sym, intent)
		}
	}
}

// route submits one intent, closing any opposite position first when
// flip handling is on.
func (c *Coordinator) route(ctx context.Context, sym schema.Symbol, intent schema.OrderIntent) {
	pos := c.ledger.Position(sym.ID)
	if c.cfg.CloseOnFlip && !intent.ReduceOnly && opposes(pos.Qty, intent.Side) {
		c.cancelOpen(ctx, sym)
		closing := schema.OrderIntent{
			SymbolID:   sym.ID,
			Side:       intent.Side,
			Type:       schema.OrderTypeMarket,
			Price:      intent.Price,
			Qty:        absQty(pos.Qty),
			ReduceOnly: true,
		}
		if !c.submit(ctx, sym, closing) {
			return
		}
	}
	c.submit(ctx, sym, intent)
}

// cancelOpen pulls every resting order on the instrument, including
// stale brackets, before the position is reversed.
func (c *Coordinator) cancelOpen(ctx context.Context, sym schema.Symbol) {
	for _, o := range c.ledger.OpenOrders() {
		if o.SymbolID != sym.ID || o.State == ledger.OrderStatePending {
			continue
		}
		if err := c.transport.CancelOrder(ctx, sym.ID, o.ClientOrderID); err != nil {
			logs.Warnf("cancel %s: %+v", o.ClientOrderID, err)
		}
	}
}

func (c *Coordinator) submit(ctx context.Context, sym schema.Symbol, intent schema.OrderIntent) bool {
	if intent.ClientOrderID == "" {
		intent.ClientOrderID = c.ids.Next()
	}

	decision := c.gate.Evaluate(intent, risk.View{
		Position:       c.ledger.Position(sym.ID).Qty,
		OpenOrderCount: c.ledger.OpenOrderCount(),
		Now:            time.Now().UTC().UnixNano(),
	})
	if !decision.Allowed() {
		c.metrics.IncRiskDeny(decision.Reason)
		logs.Infof("intent denied: %s %s reason=%s", sym.Name, intent.Side, decision.Reason)
		return false
	}

	now := time.Now().UTC().UnixMilli()
	if _, err := c.ledger.Track(intent, now); err != nil {
		logs.Warnf("track order %s: %+v", intent.ClientOrderID, err)
		return false
	}

	submitStart := time.Now()
	_, err := c.transport.SubmitOrder(ctx, intent)
	c.metrics.ObserveSubmit(time.Since(submitStart))
	if err != nil {
		c.rejectLocal(intent, err)
		if bitget.IsAuth(err) {
			c.halt(errors.Wrap(err, "authentication rejected"))
		} else if bitget.IsTransient(err) {
			logs.Warnf("submit %s transient failure, retrying next cycle: %+v", intent.ClientOrderID, err)
		} else {
			logs.Errorf("submit %s rejected: %+v", intent.ClientOrderID, err)
		}
		return false
	}

	c.metrics.IncOrderSubmitted()
	logs.Infof("order submitted: %s %s %s qty=%s px=%s",
		intent.ClientOrderID, sym.Name, intent.Side,
		schema.FormatScaled(int64(intent.Qty), sym.Scale.QuantityScale),
		schema.FormatScaled(int64(intent.Price), sym.Scale.PriceScale))
	return true
}

// rejectLocal releases the reservation of an order the exchange never
// accepted.
func (c *Coordinator) rejectLocal(intent schema.OrderIntent, cause error) {
	c.metrics.IncOrderRejected()
	c.ledger.ApplyOrderUpdate(schema.OrderUpdate{
		ClientOrderID: intent.ClientOrderID,
		SymbolID:      intent.SymbolID,
		Side:          intent.Side,
		Price:         intent.Price,
		Qty:           intent.Qty,
		Status:        schema.OrderStatusRejected,
		Reason:        cause.Error(),
		Ts:            time.Now().UTC().UnixMilli(),
	})
}

// onFill publishes the execution and, when an entry order is done,
// places its protective bracket orders.
func (c *Coordinator) onFill(f schema.FillEvent) {
	sym, ok := c.reg.Symbol(f.SymbolID)
	if !ok {
		return
	}
	pos := c.ledger.Position(f.SymbolID)

	if c.pub != nil {
		ctx := context.Background()
		c.pub.PublishExecution(ctx, publish.Execution{
			Symbol:    sym.Name,
			Side:      f.Side.String(),
			Price:     schema.FormatScaled(int64(f.Price), sym.Scale.PriceScale),
			Qty:       schema.FormatScaled(int64(f.Qty), sym.Scale.QuantityScale),
			TradeID:   f.TradeID,
			OrderID:   f.ClientOrderID,
			Timestamp: f.Ts,
		})
		c.pub.PublishPosition(ctx, publish.PositionNotice{
			Symbol:    sym.Name,
			Qty:       schema.FormatScaled(int64(pos.Qty), sym.Scale.QuantityScale),
			AvgEntry:  schema.FormatScaled(int64(pos.AvgEntry), sym.Scale.PriceScale),
			Realized:  schema.FormatScaled(int64(pos.Realized), schema.QuoteScale),
			Timestamp: f.Ts,
		})
	}

	order, ok := c.ledger.Order(f.ClientOrderID)
	if !ok || order.ReduceOnly || order.State != ledger.OrderStateFilled {
		return
	}
	switch order.Type {
	case schema.OrderTypeLimit, schema.OrderTypeMarket:
		c.placeBrackets(sym, order, f.Price)
	}
}

// placeBrackets attaches reduce-only stop-loss and take-profit trigger
// orders around a filled entry.
func (c *Coordinator) placeBrackets(sym schema.Symbol, entry ledger.Order, fillPrice schema.Price) {
	if c.cfg.StopLossPct <= 0 && c.cfg.TakeProfitPct <= 0 {
		return
	}

	exit := schema.OrderSideSell
	lossDir, profitDir := -1.0, 1.0
	if entry.Side == schema.OrderSideSell {
		exit = schema.OrderSideBuy
		lossDir, profitDir = 1.0, -1.0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.cfg.StopLossPct > 0 {
		c.submitBracket(ctx, sym, schema.OrderIntent{
			SymbolID:     sym.ID,
			Side:         exit,
			Type:         schema.OrderTypeStopMarket,
			Qty:          entry.Qty,
			TriggerPrice: pctPrice(fillPrice, lossDir*c.cfg.StopLossPct),
			ReduceOnly:   true,
		})
	}
	if c.cfg.TakeProfitPct > 0 {
		c.submitBracket(ctx, sym, schema.OrderIntent{
			SymbolID:     sym.ID,
			Side:         exit,
			Type:         schema.OrderTypeTakeProfitMarket,
			Qty:          entry.Qty,
			TriggerPrice: pctPrice(fillPrice, profitDir*c.cfg.TakeProfitPct),
			ReduceOnly:   true,
		})
	}
}

func (c *Coordinator) submitBracket(ctx context.Context, sym schema.Symbol, intent schema.OrderIntent) {
	intent.ClientOrderID = c.ids.Next()

	decision := c.gate.Evaluate(intent, risk.View{
		Position:       c.ledger.Position(sym.ID).Qty,
		OpenOrderCount: c.ledger.OpenOrderCount(),
		Now:            time.Now().UTC().UnixNano(),
	})
	if !decision.Allowed() {
		c.metrics.IncRiskDeny(decision.Reason)
		logs.Warnf("bracket denied: %s %s reason=%s", sym.Name, intent.Type, decision.Reason)
		return
	}

	now := time.Now().UTC().UnixMilli()
	if _, err := c.ledger.Track(intent, now); err != nil {
		logs.Warnf("track bracket %s: %+v", intent.ClientOrderID, err)
		return
	}
	if _, err := c.transport.SubmitOrder(ctx, intent); err != nil {
		c.rejectLocal(intent, err)
		if bitget.IsAuth(err) {
			c.halt(errors.Wrap(err, "authentication rejected"))
			return
		}
		logs.Errorf("bracket %s %s on %s failed: %+v", intent.Type, intent.Side, sym.Name, err)
		return
	}
	c.metrics.IncOrderSubmitted()
	logs.Infof("bracket placed: %s %s %s trigger=%s",
		intent.ClientOrderID, sym.Name, intent.Type,
		schema.FormatScaled(int64(intent.TriggerPrice), sym.Scale.PriceScale))
}

// persist writes the snapshot and moves terminal orders to the archive.
func (c *Coordinator) persist(ctx context.Context) {
	if c.cfg.SnapshotPath != "" {
		snap := state.NewSnapshot(c.ledger, c.lastSeq.Load())
		if err := state.WriteSnapshot(c.cfg.SnapshotPath, snap); err != nil {
			logs.Errorf("write snapshot: %+v", err)
		}
	}
	pruned := c.ledger.Prune()
	if len(pruned) == 0 {
		return
	}
	if err := c.archive.ArchiveOrders(ctx, pruned); err != nil {
		logs.Errorf("archive %d orders: %+v", len(pruned), err)
	}
}

func (c *Coordinator) halt(err error) {
	if !c.halted.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.haltErr = err
	c.mu.Unlock()
	logs.Errorf("trading halted: %+v", err)
}

func (c *Coordinator) haltedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haltErr
}

func opposes(pos schema.Quantity, side schema.OrderSide) bool {
	switch {
	case pos > 0:
		return side == schema.OrderSideSell
	case pos < 0:
		return side == schema.OrderSideBuy
	default:
		return false
	}
}

func absQty(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func pctPrice(p schema.Price, pct float64) schema.Price {
	return schema.Price(int64(math.Round(float64(p) * (1 + pct/100))))
}
