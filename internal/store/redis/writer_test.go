package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"macross/internal/model"
	"macross/internal/strategy"
)

// unreachable returns a writer whose every command fails fast.
func unreachable() *Writer {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return newWriter(client, "")
}

func TestWriter_RecordKeys(t *testing.T) {
	w := newWriter(nil, "bot")

	rec, err := w.decisionRecord("15m", strategy.Decision{Time: 900, Price: 10, Signal: strategy.ActionBuy})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Stream != "bot:decision:15m" || rec.Latest != "bot:decision:15m:latest" || rec.Channel != "pub:bot:decision:15m" {
		t.Errorf("unexpected keys %+v", rec)
	}
	var d strategy.Decision
	if err := json.Unmarshal([]byte(rec.Data), &d); err != nil || d.Signal != strategy.ActionBuy || d.Time != 900 {
		t.Errorf("payload did not round-trip: %s (%v)", rec.Data, err)
	}

	rec, _ = newWriter(nil, "").candleRecord("1h", model.Candle{Time: 3600, Close: 1})
	if rec.Stream != "macross:candle:1h" {
		t.Errorf("expected default prefix, got %s", rec.Stream)
	}
}

func TestBufferedWriter_BuffersWhileOpen(t *testing.T) {
	w := unreachable()
	defer w.Close()

	cb := NewCircuitBreaker(2, time.Hour)
	bw := NewBufferedWriter(context.Background(), w, cb, 2)
	buffered := 0
	bw.OnBuffer = func() { buffered++ }

	c := model.Candle{Time: 60, Close: 1, High: 1, Low: 1}
	for i := 0; i < 2; i++ {
		err := bw.WriteCandle("1m", c)
		if err == nil {
			t.Fatalf("write %d: expected connection error", i)
		}
		if want := fmt.Sprintf("%d consecutive failures:", i+1); !strings.Contains(err.Error(), want) {
			t.Errorf("write %d: expected %q in %q", i, want, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected breaker open, got %v", cb.CurrentState())
	}

	for i := 0; i < 3; i++ {
		if err := bw.WriteDecision("1m", strategy.Decision{Time: int64(i)}); err != nil {
			t.Fatalf("buffered write %d returned %v", i, err)
		}
	}
	if buffered != 3 {
		t.Errorf("expected 3 buffer callbacks, got %d", buffered)
	}
	if bw.PendingCount() != 2 {
		t.Errorf("expected buffer capped at 2, got %d", bw.PendingCount())
	}
}
