// Package redis publishes live-loop output (candles, decisions, fills) to
// Redis so dashboards and other processes can follow the trader. Every
// record goes to a capped stream, a "latest" key and a pub/sub channel in a
// single pipeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"macross/internal/execution"
	"macross/internal/model"
	"macross/internal/strategy"
)

const (
	defaultPrefix    = "macross"
	defaultLatestTTL = 30 * time.Minute
	streamMaxLen     = 10000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key namespace, default "macross"
}

// Writer writes candles, decisions and fills to Redis.
type Writer struct {
	client *goredis.Client
	prefix string

	// OnWrite, if set, receives the duration of each pipeline.
	OnWrite func(time.Duration)
}

// record is one pipelined write: XADD to Stream, SET Latest, PUBLISH Channel.
type record struct {
	Stream  string `json:"stream"`
	Latest  string `json:"latest"`
	Channel string `json:"channel"`
	Data    string `json:"data"`
}

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newWriter(client, cfg.Prefix), nil
}

func newWriter(client *goredis.Client, prefix string) *Writer {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Writer{client: client, prefix: prefix}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// WriteCandle publishes a candle of the given resolution.
func (w *Writer) WriteCandle(ctx context.Context, res string, c model.Candle) error {
	rec, err := w.candleRecord(res, c)
	if err != nil {
		return err
	}
	return w.write(ctx, rec)
}

// WriteDecision publishes a trader decision.
func (w *Writer) WriteDecision(ctx context.Context, res string, d strategy.Decision) error {
	rec, err := w.decisionRecord(res, d)
	if err != nil {
		return err
	}
	return w.write(ctx, rec)
}

// WriteFill publishes a paper fill.
func (w *Writer) WriteFill(ctx context.Context, f execution.Fill) error {
	rec, err := w.fillRecord(f)
	if err != nil {
		return err
	}
	return w.write(ctx, rec)
}

func (w *Writer) candleRecord(res string, c model.Candle) (record, error) {
	return w.newRecord("candle:"+res, c)
}

func (w *Writer) decisionRecord(res string, d strategy.Decision) (record, error) {
	return w.newRecord("decision:"+res, d)
}

func (w *Writer) fillRecord(f execution.Fill) (record, error) {
	return w.newRecord("fill", f)
}

func (w *Writer) newRecord(kind string, v any) (record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return record{}, fmt.Errorf("redis marshal %s: %w", kind, err)
	}
	base := w.prefix + ":" + kind
	return record{
		Stream:  base,
		Latest:  base + ":latest",
		Channel: "pub:" + base,
		Data:    string(data),
	}, nil
}

func (w *Writer) write(ctx context.Context, rec record) error {
	start := time.Now()
	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: rec.Stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": rec.Data},
	})
	pipe.Set(ctx, rec.Latest, rec.Data, defaultLatestTTL)
	pipe.Publish(ctx, rec.Channel, rec.Data)

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("redis pipeline %s: %w", rec.Stream, err)
	}
	return nil
}

// Latest returns the JSON of the most recent record of kind
// ("decision:15m", "fill", ...), or "" when none is stored.
func (w *Writer) Latest(ctx context.Context, kind string) (string, error) {
	s, err := w.client.Get(ctx, w.prefix+":"+kind+":latest").Result()
	if err == goredis.Nil {
		return "", nil
	}
	return s, err
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
