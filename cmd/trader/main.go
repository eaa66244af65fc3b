package main

import (
	"context"
	"flag"
	"log"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bitget"
	"main/internal/bus"
	"main/internal/engine"
	"main/internal/ledger"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/publish"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	cfg := loaded.File

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, loaded); err != nil {
		log.Fatalf("trader stopped: %v", err)
	}
	logs.Info("trader stopped cleanly")
}

func run(ctx context.Context, cfg ops.FileConfig, loaded ops.Loaded) error {
	registry := schema.NewRegistry()
	rest := bitget.NewRestClient(bitget.RestConfig{
		BaseURL:     cfg.Exchange.BaseURL,
		ProductType: cfg.Exchange.ProductType,
		MarginCoin:  cfg.Exchange.MarginCoin,
		Credentials: loaded.Credentials,
	})
	if err := rest.SyncClock(ctx); err != nil {
		return err
	}
	go rest.KeepClockSynced(ctx)

	transport := bitget.NewTransport(rest, registry)
	if err := transport.LoadSymbols(ctx, cfg.Instruments); err != nil {
		return err
	}
	instruments := make([]schema.SymbolID, 0, len(cfg.Instruments))
	for _, name := range cfg.Instruments {
		id, ok := registry.SymbolIDByName(name)
		if !ok {
			logs.Warnf("instrument %s not tradable, skipping", name)
			continue
		}
		instruments = append(instruments, id)
	}

	book := ledger.NewLedger(registry, cfg.Exchange.MarginCoin)
	lastSeq, recovered, err := state.Recover(cfg.Snapshot.Path, book)
	if err != nil {
		return err
	}
	if recovered {
		logs.Infof("recovered snapshot: %d open orders, last seq %d",
			book.OpenOrderCount(), lastSeq)
	}

	var archive *state.Archive
	if cfg.Archive.Enabled {
		archive, err = state.OpenArchive(loaded.ArchiveOpt, registry)
		if err != nil {
			return err
		}
		defer func() {
			_ = archive.Close()
		}()
	}

	var publisher *publish.Publisher
	if cfg.Publish.Enabled {
		publisher, err = publish.NewPublisher(loaded.Redis)
		if err != nil {
			logs.Warnf("redis unavailable, notifications off: %+v", err)
		} else {
			defer func() {
				_ = publisher.Close()
			}()
		}
	}

	var strat strategy.Strategy
	switch cfg.Strategy.Kind {
	case "advisor":
		strat = strategy.NewAdvisor(cfg.Strategy.Advisor)
	default:
		strat = strategy.NewImbalance(cfg.Strategy.Imbalance)
	}
	logs.Infof("strategy: %s, instruments: %v", strat.Name(), cfg.Instruments)

	queue := bus.NewQueue(cfg.Exchange.QueueSize)
	metrics := obs.NewMetrics()
	queue.OnDrop = metrics.IncQueueDrop

	public := bitget.NewPublicStream(registry, queue, cfg.Exchange.ProductType, cfg.Exchange.Backoff)
	public.OverrideURL(cfg.Exchange.WSPublicURL)
	for _, name := range cfg.Instruments {
		public.Subscribe("books15", name)
		public.Subscribe("ticker", name)
	}
	private := bitget.NewPrivateStream(registry, queue, cfg.Exchange.ProductType,
		loaded.Credentials, rest.Clock(), cfg.Exchange.Backoff)
	private.OverrideURL(cfg.Exchange.WSPrivateURL)
	private.Subscribe("orders", "default")
	private.Subscribe("account", "default")

	for _, s := range []*bitget.Stream{public, private} {
		go func(s *bitget.Stream) {
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				logs.Errorf("stream exited: %+v", err)
			}
		}(s)
	}

	candleCount := 0
	if cfg.Strategy.Kind == "advisor" {
		candleCount = cfg.Trading.CandleCount
	}
	coordinator := engine.New(engine.Config{
		Instruments:    instruments,
		DecideInterval: cfg.Trading.DecideInterval,
		MinBalance:     cfg.Trading.MinBalance,
		CloseOnFlip:    cfg.Trading.CloseOnFlip,
		StopLossPct:    cfg.Trading.StopLossPct,
		TakeProfitPct:  cfg.Trading.TakeProfitPct,
		ShutdownGrace:  cfg.Trading.ShutdownGrace,
		SnapshotEvery:  cfg.Trading.SnapshotEvery,
		SnapshotPath:   cfg.Snapshot.Path,
		CandleInterval: cfg.Trading.CandleInterval,
		CandleCount:    candleCount,
	}, engine.Deps{
		Registry:  registry,
		Queue:     queue,
		Cache:     market.NewCache(),
		Ledger:    book,
		Gate:      risk.NewGate(cfg.Risk, registry, cfg.Instruments),
		Strategy:  strat,
		Transport: transport,
		Metrics:   metrics,
		IDs:       obs.NewIDGenerator("bg", uint64(time.Now().UnixNano())),
		Archive:   archive,
		Publisher: publisher,
	}, lastSeq)

	err = coordinator.Run(ctx)
	snap := metrics.Snapshot()
	logs.Infof("session summary: %+v", snap)
	return err
}
