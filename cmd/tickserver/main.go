// cmd/tickserver is a demo WebSocket trade feed for running cmd/live
// without an exchange connection.
//
// Each message is one trade:
//
//	{"time":1500000000,"price":2534.12}
//
// Prices follow a random walk, or replay a trades CSV when TICK_CSV is set.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_START_PRICE  first random-walk price (default "2500")
//	TICK_INTERVAL_MS  broadcast interval milliseconds (default "1000")
//	TICK_CSV          trades CSV to replay instead of the random walk
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"macross/internal/marketdata/csvfeed"
	"macross/internal/model"
)

type tickMsg struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generators ─────────────────────────────────────────────────────────

// walkPrice moves price by up to ±0.1%.
func walkPrice(rng *rand.Rand, price float64) float64 {
	next := price * (1 + (rng.Float64()*0.2-0.1)/100)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func send(h *hub, t model.Tick) {
	b, err := json.Marshal(tickMsg{Time: t.Time, Price: t.Price})
	if err != nil {
		return
	}
	h.broadcast(b)
}

func runRandomWalk(ctx context.Context, h *hub, price float64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			price = walkPrice(rng, price)
			send(h, model.Tick{Time: now.Unix(), Price: price})
		}
	}
}

// runReplay broadcasts the trades of a CSV file one per interval, keeping
// their original timestamps.
func runReplay(ctx context.Context, h *hub, path string, interval time.Duration) error {
	r, err := csvfeed.Open(path)
	if err != nil {
		return err
	}
	ticks, err := r.ReadTicks(ctx, 0, 0)
	if err != nil {
		return err
	}
	log.Printf("[tickserver] replaying %d trades from %s", len(ticks), path)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for _, t := range ticks {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			send(h, t)
		}
	}
	log.Println("[tickserver] replay finished")
	return nil
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	startPrice := envFloatOrDefault("TICK_START_PRICE", 2500)
	interval := time.Duration(envIntOrDefault("TICK_INTERVAL_MS", 1000)) * time.Millisecond
	csvPath := os.Getenv("TICK_CSV")
	log.Printf("[tickserver] broadcast interval: %s", interval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := newHub()
	if csvPath != "" {
		go func() {
			if err := runReplay(ctx, h, csvPath, interval); err != nil {
				log.Printf("[tickserver] replay: %v", err)
			}
		}()
	} else {
		go runRandomWalk(ctx, h, startPrice, interval)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}
