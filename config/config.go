package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"macross/internal/indicator"
	"macross/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Backtest sweep
	Resolutions    string  `validate:"required"`
	AveragePeriods string  `validate:"required"`
	Fee            float64 `validate:"gte=0,lt=1"`
	ArmGate        bool

	// Live trader
	LiveFast       int           `validate:"gt=0,ltfield=LiveSlow"`
	LiveSlow       int           `validate:"gt=0"`
	LiveMAType     string        `validate:"oneof=simple exp sma ema"`
	LiveResolution string        `validate:"required"`
	MAMode         string        `validate:"oneof=recompute incremental"`
	GateFraction   float64       `validate:"gt=0,lte=1"`
	PollInterval   time.Duration `validate:"gt=0"`
	Principal      float64       `validate:"gt=0"`
	TrendFilter    string        `validate:"oneof=none sar"`

	// Tick sources
	TickFeedURL string `validate:"omitempty,url"`
	TradesURL   string `validate:"omitempty,url"`

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string `validate:"required"`
	PostgresDSN   string
	MetricsAddr   string `validate:"required"`
	WebhookURL    string `validate:"omitempty,url"`
	LogLevel      string `validate:"oneof=debug info warn error"`
}

// Load reads configuration from environment variables with sensible defaults
// and validates it.
func Load() (*Config, error) {
	c := &Config{
		Resolutions:    getEnv("RESOLUTIONS", "30m,1h,2h"),
		AveragePeriods: getEnv("AVERAGE_PERIODS", "2-40"),

		LiveMAType:     getEnv("LIVE_MA_TYPE", "exp"),
		LiveResolution: getEnv("LIVE_RESOLUTION", "15m"),
		MAMode:         getEnv("MA_MODE", "recompute"),
		TrendFilter:    strings.ToLower(getEnv("TREND_FILTER", "none")),

		TickFeedURL: getEnv("TICK_FEED_URL", "ws://localhost:9001/ws"),
		TradesURL:   getEnv("TRADES_URL", "http://api.bitcoincharts.com/v1/trades.csv?symbol=btceUSD"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ticks.db"),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	var err error
	if c.Fee, err = getFloat("FEE", 0.002); err != nil {
		return nil, err
	}
	if c.ArmGate, err = getBool("ARM_GATE", true); err != nil {
		return nil, err
	}
	if c.LiveFast, err = getInt("LIVE_FAST", 5); err != nil {
		return nil, err
	}
	if c.LiveSlow, err = getInt("LIVE_SLOW", 30); err != nil {
		return nil, err
	}
	if c.GateFraction, err = getFloat("GATE_FRACTION", 1.0/6); err != nil {
		return nil, err
	}
	if c.Principal, err = getFloat("PRINCIPAL", 100); err != nil {
		return nil, err
	}
	if c.PollInterval, err = getDuration("POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks field constraints and that the list settings parse.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.ParseResolutions(); err != nil {
		return err
	}
	if _, err := c.ParsePeriods(); err != nil {
		return err
	}
	if _, err := model.ParseResolution(c.LiveResolution); err != nil {
		return fmt.Errorf("config: LIVE_RESOLUTION: %w", err)
	}
	return nil
}

// ParseResolutions parses the Resolutions list, e.g. "30m,1h,2h".
func (c *Config) ParseResolutions() ([]model.Resolution, error) {
	res, err := model.ParseResolutions(c.Resolutions)
	if err != nil {
		return nil, fmt.Errorf("config: RESOLUTIONS: %w", err)
	}
	return res, nil
}

// ParsePeriods expands AveragePeriods "lo-hi" into lo..hi-1.
func (c *Config) ParsePeriods() ([]int, error) {
	return ParsePeriodRange(c.AveragePeriods)
}

// ParsePeriodRange expands "lo-hi" into the half-open range [lo, hi).
func ParsePeriodRange(s string) ([]int, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return nil, fmt.Errorf("config: period range %q: want lo-hi", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, fmt.Errorf("config: period range %q: %w", s, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return nil, fmt.Errorf("config: period range %q: %w", s, err)
	}
	if from < 1 || to-from < 2 {
		return nil, fmt.Errorf("config: period range %q: need at least two periods >= 1", s)
	}
	periods := make([]int, 0, to-from)
	for p := from; p < to; p++ {
		periods = append(periods, p)
	}
	return periods, nil
}

// LivePair returns the configured live fast/slow pair.
func (c *Config) LivePair() model.PeriodPair {
	return model.PeriodPair{Fast: c.LiveFast, Slow: c.LiveSlow}
}

// LiveKind returns the live moving average kind.
func (c *Config) LiveKind() indicator.Kind {
	k, err := indicator.ParseKind(c.LiveMAType)
	if err != nil {
		log.Printf("[config] %v, using exp", err)
		return indicator.Exponential
	}
	return k
}

// Mode returns the live average mode.
func (c *Config) Mode() indicator.Mode {
	m, err := indicator.ParseMode(c.MAMode)
	if err != nil {
		log.Printf("[config] %v, using recompute", err)
		return indicator.ModeRecompute
	}
	return m
}

// SARFilter reports whether signals are filtered by a parabolic SAR trend.
func (c *Config) SARFilter() bool { return c.TrendFilter == "sar" }

// ParseLiveResolution returns the live candle resolution.
func (c *Config) ParseLiveResolution() model.Resolution {
	r, err := model.ParseResolution(c.LiveResolution)
	if err != nil {
		log.Printf("[config] %v, using pass-through", err)
		return model.Resolution{Label: "tick"}
	}
	return r
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
