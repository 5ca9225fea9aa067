package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the crossover engine.
type Metrics struct {
	TicksTotal      prometheus.Counter
	DroppedTicks    prometheus.Counter
	WSReconnects    prometheus.Counter
	FetchFailures   prometheus.Counter
	RingBufOverflow prometheus.Counter

	CandlesTotal   *prometheus.CounterVec // labels: resolution
	GapFilledTotal *prometheus.CounterVec // labels: resolution
	CandleLag      prometheus.Gauge

	// Averages and decisions
	AverageComputeDur prometheus.Histogram
	DecisionsTotal    *prometheus.CounterVec // labels: signal
	GateTransitions   *prometheus.CounterVec // labels: action, change
	TradesTotal       *prometheus.CounterVec // labels: side
	PositionValue     prometheus.Gauge

	// Backtest sweep
	PairsSimulated *prometheus.CounterVec // labels: resolution, ma
	PairsNoData    *prometheus.CounterVec // labels: resolution, ma

	// Storage
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_ticks_total",
			Help: "Total ticks fed to the aggregators",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_dropped_ticks_total",
			Help: "Ticks dropped for predating the first recorded tick",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_ws_reconnects_total",
			Help: "Total tick feed WebSocket reconnection attempts",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_fetch_failures_total",
			Help: "Live iterations skipped because the tick fetch failed",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped ticks)",
		}),

		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_candles_total",
			Help: "Total candles written (by resolution)",
		}, []string{"resolution"}),
		GapFilledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_gap_filled_candles_total",
			Help: "Synthetic flat candles written for intervals without ticks",
		}, []string{"resolution"}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macross_candle_lag_seconds",
			Help: "Lag between the latest candle time and wall clock",
		}),

		AverageComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macross_average_compute_duration_seconds",
			Help:    "Live moving average evaluation latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.01},
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_decisions_total",
			Help: "Live decisions by instantaneous signal",
		}, []string{"signal"}),
		GateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_gate_transitions_total",
			Help: "Action gate arm/cancel transitions",
		}, []string{"action", "change"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_trades_total",
			Help: "Simulated live conversions by side",
		}, []string{"side"}),
		PositionValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macross_position_value",
			Help: "Live paper position marked to the latest price, in units of A",
		}),

		PairsSimulated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_backtest_pairs_total",
			Help: "Period pairs simulated by the backtest sweep",
		}, []string{"resolution", "ma"}),
		PairsNoData: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macross_backtest_pairs_no_data_total",
			Help: "Period pairs that never completed a sell",
		}, []string{"resolution", "ma"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macross_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macross_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "macross_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macross_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.WSReconnects,
		m.FetchFailures,
		m.RingBufOverflow,
		m.CandlesTotal,
		m.GapFilledTotal,
		m.CandleLag,
		m.AverageComputeDur,
		m.DecisionsTotal,
		m.GateTransitions,
		m.TradesTotal,
		m.PositionValue,
		m.PairsSimulated,
		m.PairsNoData,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	TraderReady    bool      `json:"trader_ready"`
	Resolution     string    `json:"resolution"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTraderReady(v bool) {
	h.mu.Lock()
	h.TraderReady = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetResolution(label string) {
	h.mu.Lock()
	h.Resolution = label
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisOK := !h.RedisEnabled || h.RedisConnected
	if !h.FeedConnected || !redisOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Tick age
	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		TraderReady     bool    `json:"trader_ready"`
		Resolution      string  `json:"resolution"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		TraderReady:     h.TraderReady,
		Resolution:      h.Resolution,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// PairDone counts one simulated backtest pair.
func (m *Metrics) PairDone(resolution, ma string, hasData bool) {
	m.PairsSimulated.WithLabelValues(resolution, ma).Inc()
	if !hasData {
		m.PairsNoData.WithLabelValues(resolution, ma).Inc()
	}
}

// SeriesBuilt counts the candles of one aggregated resolution.
func (m *Metrics) SeriesBuilt(resolution string, candles, gapFilled int) {
	m.CandlesTotal.WithLabelValues(resolution).Add(float64(candles))
	m.GapFilledTotal.WithLabelValues(resolution).Add(float64(gapFilled))
}
