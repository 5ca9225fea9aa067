package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"macross/internal/model"
)

func openTemp(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.db")
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return w, r
}

func TestTicks_RoundTrip(t *testing.T) {
	w, r := openTemp(t)
	ctx := context.Background()

	if last, err := w.LastTickTime(ctx); err != nil || last != 0 {
		t.Fatalf("expected empty store, got %d %v", last, err)
	}

	in := []model.Tick{{Time: 100, Price: 1}, {Time: 100, Price: 2}, {Time: 160, Price: 3}, {Time: 400, Price: 4}}
	if err := w.WriteTicks(ctx, in); err != nil {
		t.Fatal(err)
	}

	last, err := w.LastTickTime(ctx)
	if err != nil || last != 400 {
		t.Fatalf("expected last tick 400, got %d %v", last, err)
	}

	all, err := r.ReadTicks(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].Price != 1 || all[1].Price != 2 {
		t.Fatalf("expected insertion order within a second, got %+v", all)
	}

	window, err := r.ReadTicks(ctx, 150, 399)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || window[0].Time != 160 {
		t.Errorf("expected only tick 160, got %+v", window)
	}
}

func TestCandles_UpsertOpenSlot(t *testing.T) {
	w, r := openTemp(t)
	ctx := context.Background()

	rows := []CandleRow{
		{Resolution: "1m", Candle: model.Candle{Time: 60, Close: 1, High: 1, Low: 1}},
		{Resolution: "1m", Candle: model.Candle{Time: 120, Close: 2, High: 2, Low: 2}},
	}
	if err := w.WriteCandles(ctx, rows); err != nil {
		t.Fatal(err)
	}
	// the open slot is restated
	if err := w.WriteCandles(ctx, []CandleRow{{Resolution: "1m", Candle: model.Candle{Time: 120, Close: 3, High: 3, Low: 2}}}); err != nil {
		t.Fatal(err)
	}

	got, err := r.ReadCandles(ctx, "1m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Close != 3 || got[1].Low != 2 {
		t.Fatalf("expected restated open slot, got %+v", got)
	}
	if other, _ := r.ReadCandles(ctx, "5m", 0); len(other) != 0 {
		t.Errorf("resolutions must not mix, got %+v", other)
	}
}

func TestRun_FlushesOnClose(t *testing.T) {
	w, r := openTemp(t)
	ch := make(chan model.Tick, 10)
	for i := int64(1); i <= 5; i++ {
		ch <- model.Tick{Time: i, Price: float64(i)}
	}
	close(ch)

	w.Run(context.Background(), ch)

	got, err := r.ReadTicks(context.Background(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 ticks flushed, got %d", len(got))
	}
}
