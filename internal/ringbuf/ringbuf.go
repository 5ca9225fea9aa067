// Package ringbuf provides a lock-free, single-producer single-consumer (SPSC)
// ring buffer for model.Tick. The feed reader pushes, the live poll loop drains.
package ringbuf

import (
	"sync/atomic"

	"macross/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer of ticks.
// Size is always a power of two so the index wraps with a mask.
type Ring struct {
	buf  []model.Tick
	mask uint64

	_pad0 [cacheLine]byte
	head  atomic.Uint64 // producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // consumer
	_pad2 [cacheLine]byte

	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two,
// minimum 2.
func New(capacity int) *Ring {
	size := nextPow2(capacity)
	if size < 2 {
		size = 2
	}
	return &Ring{
		buf:  make([]model.Tick, size),
		mask: uint64(size - 1),
	}
}

// Push appends a tick. Returns false, and counts an overflow, when full.
func (r *Ring) Push(t model.Tick) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		r.overflow.Add(1)
		return false
	}

	r.buf[head&r.mask] = t
	r.head.Store(head + 1)
	return true
}

// Pop retrieves the oldest tick. Returns false if empty.
func (r *Ring) Pop() (model.Tick, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return model.Tick{}, false
	}

	t := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return t, true
}

// Drain appends every buffered tick to dst in push order and returns it.
// Consumer side only.
func (r *Ring) Drain(dst []model.Tick) []model.Tick {
	tail := r.tail.Load()
	head := r.head.Load()
	for i := tail; i < head; i++ {
		dst = append(dst, r.buf[i&r.mask])
	}
	r.tail.Store(head)
	return dst
}

// Len returns the current number of items in the buffer.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of dropped pushes.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
