package redis

import (
	"context"
	"fmt"
	"log"
	"sync"

	"macross/internal/execution"
	"macross/internal/model"
	"macross/internal/strategy"
)

// BufferedWriter wraps a Writer with a circuit breaker. While the circuit is
// open, records are buffered locally and replayed when it closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []record
	maxBuf int // oldest records are dropped beyond this (default 10000)

	// Callbacks
	OnBuffer func()          // a record was buffered
	OnFlush  func(count int) // buffered records were replayed
}

// NewBufferedWriter creates a BufferedWriter wrapping w.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]record, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteCandle publishes a candle through the circuit breaker.
func (bw *BufferedWriter) WriteCandle(res string, c model.Candle) error {
	rec, err := bw.writer.candleRecord(res, c)
	if err != nil {
		return err
	}
	return bw.execute(rec)
}

// WriteDecision publishes a decision through the circuit breaker.
func (bw *BufferedWriter) WriteDecision(res string, d strategy.Decision) error {
	rec, err := bw.writer.decisionRecord(res, d)
	if err != nil {
		return err
	}
	return bw.execute(rec)
}

// WriteFill publishes a fill through the circuit breaker.
func (bw *BufferedWriter) WriteFill(f execution.Fill) error {
	rec, err := bw.writer.fillRecord(f)
	if err != nil {
		return err
	}
	return bw.execute(rec)
}

func (bw *BufferedWriter) execute(rec record) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.write(bw.ctx, rec)
	})
	switch {
	case err == ErrCircuitOpen:
		bw.bufferWrite(rec)
		return nil
	case err != nil:
		return fmt.Errorf("%d consecutive failures: %w", bw.cb.Failures(), err)
	}
	return nil
}

func (bw *BufferedWriter) bufferWrite(rec record) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, rec)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]record, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, rec := range toFlush {
		if err := bw.writer.write(bw.ctx, rec); err != nil {
			log.Printf("[buffered-writer] replay %s: %v", rec.Stream, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d/%d buffered writes", flushed, len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered records.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
