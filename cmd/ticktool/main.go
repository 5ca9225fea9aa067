// cmd/ticktool maintains the historical trade data used by the backtest
// and live commands.
//
//	ticktool check data/btceUSD.csv
//	ticktool import --store sqlite data/btceUSD.csv
//	ticktool fetch --store csv --file data/btceUSD.csv
//	ticktool trades --limit 20
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"macross/config"
	"macross/internal/execution"
	"macross/internal/marketdata/csvfeed"
	"macross/internal/model"
	"macross/internal/store/postgres"
	sqlitestore "macross/internal/store/sqlite"
)

var (
	cfg       *config.Config
	storeKind string
	csvPath   string
)

var storeFlag = &cli.StringFlag{
	Name:        "store",
	Value:       "sqlite",
	Usage:       "tick store: csv, sqlite or postgres",
	Destination: &storeKind,
}

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "reports trades whose time is earlier than the previous trade",
	ArgsUsage: "<file>",
	Action:    checkFile,
}

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "loads a trades CSV into sqlite or postgres",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{storeFlag},
	Action:    importFile,
}

var fetchCommand = &cli.Command{
	Name:  "fetch",
	Usage: "downloads trades newer than the last stored one and appends them",
	Flags: []cli.Flag{
		storeFlag,
		&cli.StringFlag{
			Name:        "file",
			Value:       "data/trades.csv",
			Usage:       "CSV file to append to with --store csv",
			Destination: &csvPath,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "trades endpoint (default TRADES_URL)",
		},
	},
	Action: fetchTrades,
}

var tradesCommand = &cli.Command{
	Name:  "trades",
	Usage: "lists journaled paper fills, newest first",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "run",
			Usage: "only fills of this run id",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: 50,
			Usage: "maximum fills to list (0 = all)",
		},
	},
	Action: listTrades,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var err error
	if cfg, err = config.Load(); err != nil {
		log.Fatal(err)
	}

	app := cli.NewApp()
	app.Name = "ticktool"
	app.Usage = "trade data maintenance for the crossover backtester"
	app.Commands = []*cli.Command{
		checkCommand,
		importCommand,
		fetchCommand,
		tradesCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func checkFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	disorders := 0
	n, err := csvfeed.CheckOrder(c.Context, f, func(d csvfeed.Disorder) {
		disorders++
		fmt.Println(d)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d trades, %d out of order\n", n, disorders)
	if disorders > 0 {
		return cli.Exit("file is not sorted by time", 1)
	}
	return nil
}

func importFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	r, err := csvfeed.Open(c.Args().First())
	if err != nil {
		return err
	}
	ticks, err := r.ReadTicks(c.Context, 0, 0)
	if err != nil {
		return err
	}

	start := time.Now()
	switch storeKind {
	case "sqlite":
		err = importSQLite(c.Context, ticks)
	case "postgres":
		err = importPostgres(c.Context, ticks)
	default:
		return fmt.Errorf("import: unsupported store %q", storeKind)
	}
	if err != nil {
		return err
	}
	fmt.Printf("imported %d trades into %s in %s\n", len(ticks), storeKind, time.Since(start).Round(time.Millisecond))
	return nil
}

// importSQLite streams ticks through the batching writer.
func importSQLite(ctx context.Context, ticks []model.Tick) error {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return err
	}
	defer w.Close()

	ch := make(chan model.Tick, 1024)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	for _, t := range ticks {
		select {
		case ch <- t:
		case <-ctx.Done():
			close(ch)
			<-done
			return ctx.Err()
		}
	}
	close(ch)
	<-done
	return nil
}

func importPostgres(ctx context.Context, ticks []model.Tick) error {
	s, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.WriteTicks(ctx, ticks)
}

func fetchTrades(c *cli.Context) error {
	url := c.String("url")
	if url == "" {
		url = cfg.TradesURL
	}
	if url == "" {
		return errors.New("fetch: no trades url")
	}

	var (
		w    model.TickWriter
		last int64
		err  error
	)
	switch storeKind {
	case "csv":
		last, err = csvfeed.LastTime(csvPath)
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, csvfeed.ErrEmptyFile) {
			last, err = 0, nil
		}
	case "sqlite":
		var sw *sqlitestore.Writer
		if sw, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}); err == nil {
			w = sw
		}
	case "postgres":
		var ps *postgres.Store
		if ps, err = postgres.Open(c.Context, cfg.PostgresDSN); err == nil {
			w = ps
		}
	default:
		return fmt.Errorf("fetch: unsupported store %q", storeKind)
	}
	if err != nil {
		return err
	}
	if w != nil {
		defer w.Close()
		if last, err = w.LastTickTime(c.Context); err != nil {
			return err
		}
	}

	log.Printf("[ticktool] fetching trades since %s", time.Unix(last, 0).UTC())
	ticks, err := csvfeed.NewFetcher(url).Since(c.Context, last)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		fmt.Println("no new trades")
		return nil
	}

	if w != nil {
		err = w.WriteTicks(c.Context, ticks)
	} else {
		err = appendCSV(csvPath, ticks)
	}
	if err != nil {
		return err
	}
	fmt.Printf("appended %d trades up to %s\n", len(ticks), time.Unix(ticks[len(ticks)-1].Time, 0).UTC())
	return nil
}

func appendCSV(path string, ticks []model.Tick) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := csvfeed.Write(f, ticks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func listTrades(c *cli.Context) error {
	j, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.GetTrades(c.Context, c.String("run"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, t := range trades {
		fmt.Printf("%s  %-4s %-10s price %-12.2f a %-12.4f b %-14.8f fee %.6f\n",
			time.Unix(t.Time, 0).UTC().Format("2006-01-02 15:04:05"), t.Action, t.OrderID, t.Price, t.A, t.B, t.Fee)
	}
	fmt.Printf("%d fills\n", len(trades))
	return nil
}
