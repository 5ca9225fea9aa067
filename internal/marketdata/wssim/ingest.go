// Package wssim is the WebSocket ingest client for the live loop. It
// connects to a tick server (e.g. cmd/tickserver), decodes messages of the
// form
//
//	{"time":1700000000,"price":37012.5}
//
// into a ring buffer, and exposes the buffer as a polled model.TickSource.
package wssim

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"macross/internal/model"
	"macross/internal/ringbuf"
)

// ErrNotConnected is returned by Fetch before the first connection succeeds.
var ErrNotConnected = errors.New("tick feed not connected")

// Config holds configuration for the WS ingest.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// BufferSize is the ring capacity in ticks. Defaults to 65536.
	BufferSize int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 1 << 16
	}
}

// Ingest reads ticks from the socket into a ring. Start is the single
// producer; Fetch is the single consumer.
type Ingest struct {
	cfg       Config
	ring      *ringbuf.Ring
	connected atomic.Bool
	seen      atomic.Bool

	// Optional hooks.
	OnReconnect func()
	OnTick      func()
	OnDrop      func(model.Tick)
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("tick feed url must be ws:// or wss://")
	}
	return &Ingest{cfg: cfg, ring: ringbuf.New(cfg.BufferSize)}, nil
}

// Connected reports whether the socket is currently open.
func (ing *Ingest) Connected() bool { return ing.connected.Load() }

// Overflow returns the number of ticks dropped because the ring was full.
func (ing *Ingest) Overflow() uint64 { return ing.ring.Overflow() }

// Fetch drains every tick received since the previous call. It fails until
// the feed has connected once, so the live loop skips instead of treating
// silence as an empty market.
func (ing *Ingest) Fetch(ctx context.Context) ([]model.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ing.seen.Load() {
		return nil, ErrNotConnected
	}
	return ing.ring.Drain(nil), nil
}

// Start connects and streams ticks into the ring. Blocks until ctx is
// cancelled. Reconnects with exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx)
		ing.connected.Store(false)
		if err == nil {
			return nil
		}

		log.Printf("[wssim] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

func (ing *Ingest) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ing.connected.Store(true)
	ing.seen.Store(true)
	log.Printf("[wssim] connected to %s", ing.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[wssim] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if tick.Time <= 0 || tick.Price <= 0 {
			log.Printf("[wssim] skipping malformed tick %s", raw)
			continue
		}

		if !ing.ring.Push(tick) {
			if ing.OnDrop != nil {
				ing.OnDrop(tick)
			}
			continue
		}
		if ing.OnTick != nil {
			ing.OnTick()
		}
	}
}
