// Package replay drives the live loop from stored ticks. Ticks are released
// on a virtual clock that runs speed times faster than the wall clock.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"macross/internal/model"
)

// Replayer is a model.TickSource over historical ticks.
type Replayer struct {
	mu     sync.Mutex
	ticks  []model.Tick
	pos    int
	speed  float64
	batch  int
	origin time.Time // wall time of the first Fetch

	// Now defaults to time.Now; tests replace it.
	Now func() time.Time
}

// Load reads ticks from r in [from, to] and prepares a replayer.
// speed: 1.0 = real-time, 60 = one hour per minute, 0 = batch ticks per
// Fetch regardless of time.
func Load(ctx context.Context, r model.TickReader, from, to int64, speed float64, batch int) (*Replayer, error) {
	ticks, err := r.ReadTicks(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("replay load: %w", err)
	}
	if len(ticks) == 0 {
		return nil, errors.New("replay: no ticks in range")
	}
	log.Printf("[replay] loaded %d ticks, speed=%.1fx", len(ticks), speed)
	return New(ticks, speed, batch), nil
}

// New creates a replayer over ticks sorted by time.
func New(ticks []model.Tick, speed float64, batch int) *Replayer {
	if batch <= 0 {
		batch = 1000
	}
	return &Replayer{ticks: ticks, speed: speed, batch: batch, Now: time.Now}
}

// Remaining returns the number of ticks not yet released.
func (r *Replayer) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks) - r.pos
}

// Fetch releases the ticks whose time has been reached on the virtual clock.
// Returns io.EOF once everything has been replayed.
func (r *Replayer) Fetch(ctx context.Context) ([]model.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= len(r.ticks) {
		return nil, io.EOF
	}

	end := r.pos
	if r.speed <= 0 {
		end = min(r.pos+r.batch, len(r.ticks))
	} else {
		now := r.Now()
		if r.origin.IsZero() {
			r.origin = now
		}
		elapsed := now.Sub(r.origin).Seconds() * r.speed
		cutoff := r.ticks[0].Time + int64(elapsed)
		for end < len(r.ticks) && r.ticks[end].Time <= cutoff {
			end++
		}
	}

	out := r.ticks[r.pos:end:end]
	r.pos = end
	if r.pos == len(r.ticks) {
		log.Printf("[replay] completed: %d ticks replayed", len(r.ticks))
	}
	return out, nil
}

// Clock returns the replay's notion of now: the time of the newest released
// tick, or of the first tick before anything was released. Live gates
// driven by a replay time out against this instead of the wall clock.
func (r *Replayer) Clock() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ticks) == 0 {
		return time.Time{}
	}
	i := max(r.pos-1, 0)
	return time.Unix(r.ticks[i].Time, 0)
}
