// cmd/scanner — the hijack scanner daemon.
//
// Pipeline: [Binance WS or Sim] → [1s Agg] → [FanOut] → windows / SQLite / Redis,
// plus a periodic scan loop that ranks hijack force, fuses auxiliary signals,
// and drives the paper-trading position lifecycle.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hijackwatch/config"
	"hijackwatch/internal/autotrader"
	"hijackwatch/internal/bus"
	"hijackwatch/internal/feed"
	"hijackwatch/internal/force"
	"hijackwatch/internal/fusion"
	"hijackwatch/internal/logger"
	"hijackwatch/internal/metrics"
	"hijackwatch/internal/model"
	"hijackwatch/internal/notification"
	"hijackwatch/internal/ops"
	"hijackwatch/internal/riskctl"
	redisstore "hijackwatch/internal/store/redis"
	sqlitestore "hijackwatch/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scanner] starting...")

	cfg := config.Load()
	slogger := logger.Init("scanner", slog.LevelInfo)
	tickers := cfg.ParseTickers()
	if len(tickers) == 0 {
		log.Fatalf("[scanner] no tickers configured via TICKERS")
	}
	if cfg.StagingMode {
		log.Println("[scanner] *** STAGING MODE — simulated feed and signal sources ***")
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetTickers(tickers)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite store (observations archive + positions + events) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[scanner] sqlite init failed: %v", err)
	}
	defer store.Close()
	store.OnBatchCommit = func(n int, elapsed time.Duration) {
		prom.SQLiteCommitDur.Observe(elapsed.Seconds())
	}
	health.SetSQLiteOK(true)
	log.Println("[scanner] sqlite store ready")

	// ---- Redis hot state (optional; scanner degrades without it) ----
	var redisWriter *redisstore.Writer
	var buffered *redisstore.BufferedWriter
	var persister riskctl.Persister
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[scanner] WARNING: redis init failed: %v (continuing without redis)", err)
		redisWriter = nil
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[scanner] redis circuit breaker %s → %s", from, to)
		}
		buffered = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		persister = redisstore.NewConfigStore(redisWriter.Client())
		log.Println("[scanner] redis writer ready")
	}

	// ---- Risk controller ----
	ctl := riskctl.New(cfg.TOTPSecret, persister)
	if ctl.Load(ctx) {
		log.Println("[scanner] runtime config restored from redis")
	}

	// ---- Liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Notifications ----
	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, notification.NewLogNotifier())
	}
	dispatcher := notification.NewDispatcher(64, notifiers...)
	dispatcher.OnDrop = func() { prom.AlertsDropped.Inc() }
	go dispatcher.Run(ctx)

	// ---- Pipeline channels ----
	tradeCh := make(chan model.Trade, 10000)
	obsCh := make(chan model.Observation, 5000)

	// ---- Fan-out observations: windows + SQLite + Redis ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriber string) {
		prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}
	windowCh := fanout.Subscribe("windows")
	sqliteCh := fanout.Subscribe("sqlite")
	var redisObsCh <-chan model.Observation
	if redisWriter != nil {
		redisObsCh = fanout.Subscribe("redis")
	}
	go fanout.Run(ctx, obsCh)

	windows := force.NewWindowStore(0, 0)
	go func() {
		for o := range windowCh {
			windows.Add(o)
			prom.ObservationsTotal.Inc()
			health.SetLastObsTime(o.TS)
		}
	}()

	go store.Run(ctx, sqliteCh)
	if redisWriter != nil {
		go redisWriter.RunObservations(ctx, redisObsCh)
	}

	// ---- Aggregator (trades → per-second observations) ----
	aggregator := feed.NewAggregator()
	aggregator.OnDroppedTrade = func() { prom.DroppedTrades.Inc() }
	go aggregator.Run(ctx, tradeCh, obsCh)

	// ---- Feed: Binance or simulator ----
	if cfg.StagingMode {
		sim := feed.NewSim(tickers, 100*time.Millisecond)
		health.SetWSConnected(true)
		go sim.Start(ctx, tradeCh)
	} else {
		ingest, err := feed.NewBinance(feed.BinanceConfig{
			BaseURL: cfg.BinanceWSURL,
			Tickers: tickers,
		})
		if err != nil {
			log.Fatalf("[scanner] binance init failed: %v", err)
		}
		ingest.OnConnect = func() { health.SetWSConnected(true) }
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
			health.SetWSConnected(false)
		}
		ingest.OnDrop = func() { prom.DroppedTrades.Inc() }
		go func() {
			if err := ingest.Start(ctx, tradeCh); err != nil {
				log.Printf("[scanner] binance feed error: %v", err)
				health.SetWSConnected(false)
			}
		}()
	}

	// ---- Fusion engine ----
	weights := fusion.DefaultWeights()
	if cfg.WeightsPath != "" {
		w, err := fusion.LoadWeights(cfg.WeightsPath)
		if err != nil {
			log.Printf("[scanner] WARNING: weights load failed: %v (using defaults)", err)
		} else {
			weights = w
		}
	}
	predictor := fusion.NewMomentumPredictor(5, 20, 14)

	var fearGreed, social, options, onChain fusion.Source
	var narrative fusion.NarrativeScorer
	if cfg.SignalAPIBase != "" && !cfg.StagingMode {
		fearGreed = fusion.NewFearGreedSource(cfg.SignalAPIBase)
		social = fusion.NewSocialSource(cfg.SignalAPIBase)
		options = fusion.NewOptionsFlowSource(cfg.SignalAPIBase)
		onChain = fusion.NewOnChainSource(cfg.SignalAPIBase)
		narrative = fusion.NewKeywordScorer(fusion.NewHeadlineSource(cfg.SignalAPIBase))
	} else {
		fearGreed = fusion.NewSimSource("fear_greed")
		social = fusion.NewSimSource("social")
		options = fusion.NewSimSource("options_flow")
		onChain = fusion.NewSimSource("on_chain")
		narrative = &fusion.StaticNarrative{}
	}
	engine := fusion.NewEngine(weights, predictor, fearGreed, social, options, onChain)
	engine.OnSourceFailure = func(source string) {
		prom.SourceFailures.WithLabelValues(source).Inc()
	}

	// ---- Autotrader ----
	trader := autotrader.New(ctl, store, store, narrative, dispatcher.NotifyTrade)
	trader.OnEntry = func(ticker string) { prom.EntriesTotal.Inc() }
	trader.OnExit = func(reason string) { prom.ExitsTotal.WithLabelValues(reason).Inc() }

	// ---- Ops API ----
	leaderboardFn := func(ctx context.Context) []model.ForceReading {
		return force.Leaderboard(windows, ctl.Current().AlertForceThreshold, time.Now().UTC())
	}
	opsSrv := ops.NewServer(ctl, store, leaderboardFn, trader.Stats, store.RecentEvents)
	opsMux := http.NewServeMux()
	opsSrv.RegisterRoutes(opsMux)
	opsHTTP := &http.Server{Addr: cfg.OpsAddr, Handler: opsMux}
	go func() {
		log.Printf("[scanner] ops API listening on %s", cfg.OpsAddr)
		if err := opsHTTP.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[scanner] ops server error: %v", err)
		}
	}()

	// ---- Scan loop ----
	go runScanLoop(ctx, scanDeps{
		interval: cfg.ScanInterval,
		windows:  windows,
		engine:   engine,
		trader:   trader,
		ctl:      ctl,
		store:    store,
		buffered: buffered,
		prom:     prom,
		slog:     slogger,
	})

	log.Printf("[scanner] pipeline ready: %d tickers, scan every %s", len(tickers), cfg.ScanInterval)

	// ---- Wait for shutdown ----
	<-sigCh
	log.Println("[scanner] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	opsHTTP.Shutdown(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}
	log.Println("[scanner] shutdown complete.")
}

type scanDeps struct {
	interval time.Duration
	windows  *force.WindowStore
	engine   *fusion.Engine
	trader   *autotrader.Trader
	ctl      *riskctl.Controller
	store    *sqlitestore.Store
	buffered *redisstore.BufferedWriter
	prom     *metrics.Metrics
	slog     *slog.Logger
}

// runScanLoop runs one scan per interval: rank force, fuse candidates,
// publish hot state, then hand readings and signals to the trader.
func runScanLoop(ctx context.Context, d scanDeps) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now().UTC()
		cctx := logger.WithCycleID(ctx, logger.GenerateCycleID(start))
		cfg := d.ctl.Current()

		forceStart := time.Now()
		readings := force.Leaderboard(d.windows, cfg.AlertForceThreshold, start)
		d.prom.ForceComputeDur.Observe(time.Since(forceStart).Seconds())

		signals := make(map[string]*model.TradeSignal)
		for _, r := range readings {
			if d.buffered != nil {
				d.buffered.WriteReading(r)
			}
			// Fuse only entry candidates; weaker force never trades anyway.
			if r.HijackForce < cfg.EntryForceThreshold {
				continue
			}
			window := d.windows.Window(r.Ticker, start)
			if sig := d.engine.Fuse(cctx, r, window); sig != nil {
				signals[r.Ticker] = sig
				d.prom.FusedSignals.Inc()
				if d.buffered != nil {
					d.buffered.PublishSignal(*sig)
				}
			}
		}

		if d.buffered != nil {
			redisStart := time.Now()
			if err := d.buffered.Underlying().WriteLeaderboard(cctx, readings); err != nil {
				log.Printf("[scanner] leaderboard write failed: %v", err)
			}
			d.prom.RedisWriteDur.Observe(time.Since(redisStart).Seconds())
		}

		d.trader.Scan(cctx, readings, signals)

		if n, err := d.store.OpenCount(cctx); err == nil {
			d.prom.OpenPositions.Set(float64(n))
		}
		if cfg.KillSwitch {
			d.prom.KillSwitch.Set(1)
		} else {
			d.prom.KillSwitch.Set(0)
		}
		d.prom.ScanDur.Observe(time.Since(start).Seconds())

		d.slog.Info("scan cycle complete",
			append(logger.LogWithCycle(cctx),
				slog.Int("tickers", len(readings)),
				slog.Int("signals", len(signals)),
				slog.Duration("elapsed", time.Since(start)))...)
	}
}
