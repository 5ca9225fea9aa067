// cmd/backtest sweeps every fast/slow moving average pair over historical
// trades at each configured resolution and reports the profit of each.
//
// Usage:
//
//	go run ./cmd/backtest -i data/btceUSD.csv -p 3m
//	go run ./cmd/backtest --source=sqlite -s 01.01.17 -e 01.03.17 -f 0.001
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"macross/config"
	"macross/internal/backtest"
	"macross/internal/indicator"
	"macross/internal/logger"
	"macross/internal/marketdata/csvfeed"
	"macross/internal/metrics"
	"macross/internal/model"
	"macross/internal/report"
	"macross/internal/store/postgres"
	sqlitestore "macross/internal/store/sqlite"
	"macross/internal/strategy"
)

const dateLayout = "02.01.06"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	input := flag.String("i", "", "CSV trades file (unix,price,amount)")
	source := flag.String("source", "", "Tick source: csv, sqlite or postgres (default csv when -i is set, else sqlite)")
	fee := flag.Float64("f", cfg.Fee, "Exchange fee per conversion")
	period := flag.String("p", "", "Analyse the last N{d|w|m|y}, e.g. 3m")
	startStr := flag.String("s", "", "Start date dd.mm.yy")
	endStr := flag.String("e", "", "End date dd.mm.yy")
	resStr := flag.String("res", cfg.Resolutions, "Comma-separated resolutions")
	periodsStr := flag.String("periods", cfg.AveragePeriods, "Average period range lo-hi (hi exclusive)")
	noArm := flag.Bool("no-arm", !cfg.ArmGate, "Allow buying before the first fast<slow sample")
	sar := flag.Bool("sar", cfg.SARFilter(), "Only sell on a parabolic SAR downtrend")
	workers := flag.Int("workers", 0, "Concurrent pair simulations (0 = GOMAXPROCS)")
	outDir := flag.String("out", "reports", "Directory for stats and matrix files")
	noReport := flag.Bool("no-report", false, "Only print the summary")
	quiet := flag.Bool("q", false, "Hide progress bars")
	flag.Parse()

	logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	resolutions, err := model.ParseResolutions(*resStr)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	periods, err := config.ParsePeriodRange(*periodsStr)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	start, end, err := window(time.Now(), *period, *startStr, *endStr)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	runID, err := logger.NewRunID()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	ctx, cancel := context.WithCancel(logger.WithRunID(context.Background(), runID))
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reader, err := openSource(ctx, *source, *input, cfg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	defer reader.Close()

	from := int64(0)
	if start > 0 {
		from = csvfeed.Lookback(start, maxSeconds(resolutions), periods[len(periods)-1])
	}
	slog.Info("importing ticks", append(logger.LogWithRun(ctx),
		slog.String("period", report.Period(start, end)),
		slog.Time("lookback", time.Unix(from, 0).UTC()))...)

	ticks, err := reader.ReadTicks(ctx, from, end)
	if err != nil {
		log.Fatalf("[backtest] read ticks: %v", err)
	}
	if len(ticks) == 0 {
		log.Fatalf("[backtest] no ticks between %s", report.Period(from, end))
	}
	if last := ticks[len(ticks)-1].Time; last < end {
		log.Printf("[backtest] last data point is at %s", time.Unix(last, 0).UTC())
	}

	prom := metrics.NewMetrics(nil)
	bcfg := backtest.Config{
		Resolutions: resolutions,
		Periods:     periods,
		Fee:         *fee,
		ArmGate:     !*noArm,
		SARFilter:   *sar,
		Principal:   cfg.Principal,
		Start:       start,
		Workers:     *workers,
		OnSeries: func(res model.Resolution, candles, gapFilled int) {
			prom.SeriesBuilt(res.Label, candles, gapFilled)
		},
		OnPair: func(res model.Resolution, kind indicator.Kind, r strategy.Result) {
			prom.PairDone(res.Label, string(kind), r.HasData)
		},
	}
	if !*quiet {
		bcfg.Progress = os.Stderr
	}

	began := time.Now()
	results, err := backtest.Run(ctx, ticks, bcfg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	fmt.Println()
	pairs := 0
	for _, rr := range results {
		for _, kind := range indicator.Kinds {
			if m, ok := rr.Matrices[kind]; ok {
				fmt.Println(report.SummaryLine(rr.Resolution, kind, m))
				pairs += len(m.Results())
			}
		}
	}

	var files []string
	if !*noReport {
		for _, rr := range results {
			paths, err := report.WriteFiles(*outDir, rr, periods)
			if err != nil {
				log.Fatalf("[backtest] report: %v", err)
			}
			files = append(files, paths...)
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║               BACKTEST COMPLETE                  ║")
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Printf("║  Run:          %-34s║\n", runID)
	fmt.Printf("║  Ticks:        %-34d║\n", len(ticks))
	fmt.Printf("║  Resolutions:  %-34s║\n", *resStr)
	fmt.Printf("║  Periods:      %-34s║\n", fmt.Sprintf("%d-%d", periods[0], periods[len(periods)-1]))
	fmt.Printf("║  Pairs:        %-34d║\n", pairs)
	fmt.Printf("║  Report files: %-34d║\n", len(files))
	fmt.Printf("║  Elapsed:      %-34s║\n", time.Since(began).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════════════════╝")
}

func openSource(ctx context.Context, source, input string, cfg *config.Config) (model.TickReader, error) {
	if source == "" {
		source = "sqlite"
		if input != "" {
			source = "csv"
		}
	}
	switch source {
	case "csv":
		if input == "" {
			return nil, fmt.Errorf("csv source needs -i")
		}
		r, err := csvfeed.Open(input)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "sqlite":
		r, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown source %q", source)
}

var periodUnits = map[byte]int64{
	'd': 24 * 3600,
	'w': 7 * 24 * 3600,
	'm': 30 * 24 * 3600,
	'y': 365 * 24 * 3600,
}

// window resolves the analysis interval. period wins over start; the end
// defaults to now. start == 0 means from the first trade.
func window(now time.Time, period, startStr, endStr string) (start, end int64, err error) {
	end = now.Unix()
	if endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			return 0, 0, fmt.Errorf("end date %q: %w", endStr, err)
		}
		end = t.Unix()
	}

	switch {
	case period != "":
		p := strings.ReplaceAll(strings.ToLower(period), " ", "")
		if len(p) < 2 {
			return 0, 0, fmt.Errorf("period %q: want N{d|w|m|y}", period)
		}
		unit, ok := periodUnits[p[len(p)-1]]
		n, perr := strconv.ParseInt(p[:len(p)-1], 10, 64)
		if !ok || perr != nil || n <= 0 {
			return 0, 0, fmt.Errorf("period %q: want N{d|w|m|y}", period)
		}
		start = now.Unix() - n*unit
	case startStr != "":
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			return 0, 0, fmt.Errorf("start date %q: %w", startStr, err)
		}
		start = t.Unix()
	}
	if start > 0 && start >= end {
		return 0, 0, fmt.Errorf("start %s is not before end %s", time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC())
	}
	return start, end, nil
}

func maxSeconds(res []model.Resolution) int64 {
	var m int64
	for _, r := range res {
		if r.Seconds > m {
			m = r.Seconds
		}
	}
	return m
}
