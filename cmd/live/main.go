// cmd/live runs the crossover trader against a live tick feed, or against
// stored ticks with -replay, on a paper position.
//
// Usage:
//
//	go run ./cmd/live
//	go run ./cmd/live -replay -speed 600 -window 72h
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"macross/config"
	"macross/internal/execution"
	"macross/internal/live"
	"macross/internal/logger"
	"macross/internal/marketdata/replay"
	"macross/internal/marketdata/wssim"
	"macross/internal/metrics"
	"macross/internal/model"
	"macross/internal/notification"
	redisstore "macross/internal/store/redis"
	sqlitestore "macross/internal/store/sqlite"
	"macross/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[live] starting...")

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[live] %v", err)
	}

	replayMode := flag.Bool("replay", false, "Drive the loop from stored sqlite ticks instead of the websocket feed")
	speed := flag.Float64("speed", 60, "Replay speed multiplier (0 = as fast as possible)")
	window := flag.Duration("window", 24*time.Hour, "Replay the stored ticks of this window before the newest one")
	feedURL := flag.String("feed", cfg.TickFeedURL, "Tick websocket URL")
	poll := flag.Duration("poll", cfg.PollInterval, "Poll interval")
	sar := flag.Bool("sar", cfg.SARFilter(), "Filter signals by the parabolic SAR trend of the live candles")
	flag.Parse()

	logger.Init("live", logger.ParseLevel(cfg.LogLevel))
	runID, err := logger.NewRunID()
	if err != nil {
		log.Fatalf("[live] %v", err)
	}

	res := cfg.ParseLiveResolution()
	pair := cfg.LivePair()
	if *replayMode && *speed <= 0 {
		// every poll releases a batch; do not wait between them
		*poll = time.Millisecond
	}

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.SetResolution(res.Label)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(logger.WithRunID(context.Background(), runID))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: ticks, candles, fill journal ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   cfg.SQLitePath,
		OnCommit: func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) },
	})
	if err != nil {
		log.Fatalf("[live] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[live] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Redis publisher (optional) ----
	var (
		redisWriter *redisstore.Writer
		publisher   *redisstore.BufferedWriter
	)
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[live] WARNING: redis init failed: %v (continuing without redis)", err)
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			redisWriter.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
			if prev, err := redisWriter.Latest(ctx, "fill"); err == nil && prev != "" {
				log.Printf("[live] last published fill: %s", prev)
			}

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[live] redis circuit %s -> %s", from, to)
			}
			publisher = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
			publisher.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
			log.Println("[live] redis publisher ready")
		}
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Notifier ----
	notifier := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.WebhookURL, time.Second, 3))
	}

	// ---- Trader + paper position ----
	trader, err := strategy.NewTrader(strategy.TraderConfig{
		Pair:         pair,
		Kind:         cfg.LiveKind(),
		Mode:         cfg.Mode(),
		Resolution:   res,
		GateFraction: cfg.GateFraction,
	})
	if err != nil {
		log.Fatalf("[live] %v", err)
	}
	paper := execution.NewPaperExecutor(cfg.Principal, cfg.Fee)

	deps := live.Deps{
		Trader:    trader,
		Executor:  paper,
		Journal:   journal,
		Notifier:  notifier,
		Publisher: &sinks{sql: sqlWriter, redis: publisher},
		Metrics:   prom,
		Health:    health,
	}
	if *sar {
		deps.Trend = strategy.SARTrend
		log.Printf("[live] parabolic SAR trend filter on")
	}

	// ---- Tick source ----
	var (
		backfill []model.Tick
		replayer *replay.Replayer
		source   string
	)
	if *replayMode {
		last, err := sqlWriter.LastTickTime(ctx)
		if err != nil || last == 0 {
			log.Fatalf("[live] replay needs stored ticks in %s (last=%d err=%v)", cfg.SQLitePath, last, err)
		}
		reader, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[live] %v", err)
		}
		replayer, err = replay.Load(ctx, reader, last-int64(window.Seconds()), last, *speed, 0)
		reader.Close()
		if err != nil {
			log.Fatalf("[live] %v", err)
		}
		deps.Source = replayer
		source = fmt.Sprintf("sqlite replay %.0fx", *speed)
		health.SetFeedConnected(true)
	} else {
		ingest, err := wssim.New(wssim.Config{URL: *feedURL})
		if err != nil {
			log.Fatalf("[live] feed init failed: %v", err)
		}
		ingest.OnReconnect = func() { prom.WSReconnects.Inc() }
		ingest.OnDrop = func(model.Tick) { prom.RingBufOverflow.Inc() }
		go func() {
			if err := ingest.Start(ctx); err != nil {
				log.Printf("[live] feed error: %v", err)
			}
		}()
		go watchFeed(ctx, ingest, health)

		deps.Source = ingest
		deps.Ticks = sqlWriter
		source = *feedURL
		backfill = loadBackfill(ctx, cfg.SQLitePath, res, pair.Slow)
	}

	loop, err := live.New(live.Config{
		RunID:        runID,
		Resolution:   res,
		PollInterval: *poll,
		MaxCandles:   max(10*pair.Slow, 500),
	}, deps)
	if err != nil {
		log.Fatalf("[live] %v", err)
	}
	if replayer != nil {
		loop.Now = replayer.Clock
	}
	loop.OnDecision = func(d strategy.Decision) {
		slog.Debug("decision", append(logger.LogWithRun(ctx),
			slog.Float64("price", d.Price),
			slog.Float64("fast", d.Fast),
			slog.Float64("slow", d.Slow),
			slog.String("signal", string(d.Signal)),
			slog.String("execute", string(d.Execute)))...)
	}
	if len(backfill) > 0 {
		loop.Backfill(backfill)
	}

	log.Println("[live] ╔═══════════════════════════════════════════════════════════════╗")
	log.Println("[live] ║  Moving Average Crossover Trader (paper)                      ║")
	log.Printf("[live] ║  Pair: %-3d/%-3d %-8s Resolution: %-6s Mode: %-10s ║", pair.Fast, pair.Slow, cfg.LiveKind(), res, cfg.Mode())
	log.Printf("[live] ║  Source: %-52s ║", source)
	log.Printf("[live] ║  Run: %-55s ║", runID)
	log.Println("[live] ╚═══════════════════════════════════════════════════════════════╝")

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// ---- Wait for shutdown signal or replay end ----
	select {
	case <-sigCh:
		log.Println("[live] shutdown signal received, cleaning up...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Printf("[live] loop stopped: %v", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if publisher != nil && publisher.PendingCount() > 0 {
		log.Printf("[live] dropping %d buffered redis records", publisher.PendingCount())
	}
	if redisWriter != nil {
		redisWriter.Close()
	}

	printSummary(shutdownCtx, runID, paper, journal)
	log.Println("[live] shutdown complete.")
}

// sinks fans live output to sqlite (closed candles) and, when configured,
// the redis publisher.
type sinks struct {
	sql   *sqlitestore.Writer
	redis *redisstore.BufferedWriter
}

func (s *sinks) WriteCandle(res string, c model.Candle) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sql.WriteCandles(ctx, []sqlitestore.CandleRow{{Resolution: res, Candle: c}}); err != nil {
		return fmt.Errorf("store candle: %w", err)
	}
	if s.redis == nil {
		return nil
	}
	return s.redis.WriteCandle(res, c)
}

func (s *sinks) WriteDecision(res string, d strategy.Decision) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.WriteDecision(res, d)
}

func (s *sinks) WriteFill(f execution.Fill) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.WriteFill(f)
}

// loadBackfill reads enough stored ticks to warm the slow average.
func loadBackfill(ctx context.Context, path string, res model.Resolution, slow int) []model.Tick {
	span := res.Seconds * int64(slow+1)
	if span == 0 {
		return nil
	}
	reader, err := sqlitestore.NewReader(path)
	if err != nil {
		log.Printf("[live] backfill skipped: %v", err)
		return nil
	}
	defer reader.Close()

	ticks, err := reader.ReadTicks(ctx, time.Now().Unix()-span, 0)
	if err != nil {
		log.Printf("[live] backfill skipped: %v", err)
		return nil
	}
	return ticks
}

func watchFeed(ctx context.Context, ingest *wssim.Ingest, health *metrics.HealthStatus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health.SetFeedConnected(ingest.Connected())
		}
	}
}

func printSummary(ctx context.Context, runID string, paper *execution.PaperExecutor, journal *execution.Journal) {
	pos := paper.Position()
	stats := paper.Stats()
	trades, err := journal.GetTrades(ctx, runID, 0)
	if err != nil {
		log.Printf("[live] read journal: %v", err)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║                 LIVE RUN SUMMARY                 ║")
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Printf("║  Balance A:    %-34.4f║\n", pos.A)
	fmt.Printf("║  Balance B:    %-34.8f║\n", pos.B)
	fmt.Printf("║  Trades:       %-34d║\n", pos.Trades)
	fmt.Printf("║  Journaled:    %-34d║\n", len(trades))
	fmt.Printf("║  Round trips:  %-34d║\n", stats.Sells())
	fmt.Printf("║  Won / Lost:   %-34s║\n", fmt.Sprintf("%d / %d", stats.WonCount, stats.LostCount))
	fmt.Println("╚══════════════════════════════════════════════════╝")
}
