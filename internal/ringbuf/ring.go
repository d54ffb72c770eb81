// Package ringbuf implements the fixed-capacity byte ring that sits
// between the TTY driver's reader/writer tasks and its uart_rx/uart_tx
// tasks (spec.md §3, §4.3). It is the single producer/consumer data
// structure the whole character-device pipeline is built on.
//
// Grounded on the size-bucketing discipline in the teacher's
// internal/queue/pool.go (fixed set of backing buffers, explicit
// head/free accounting instead of relying on slice append), adapted
// here from a buffer *pool* into a true ring.
package ringbuf

import "fmt"

// Ring is a fixed-capacity byte ring buffer. It is not safe for
// concurrent use; callers (the cmd/ttyd tasks) must serialize access
// themselves, since internal/task does not serialize task goroutines.
type Ring struct {
	buf      []byte
	head     int // next byte to dequeue
	freeHead int // next free slot to enqueue into
	size     int // number of bytes currently queued
	freeSize int // number of free slots currently available
}

// New creates a ring with the given fixed capacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring{
		buf:      make([]byte, capacity),
		freeSize: capacity,
	}
}

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of bytes currently queued.
func (r *Ring) Len() int { return r.size }

// Free returns the number of bytes that can still be enqueued.
func (r *Ring) Free() int { return r.freeSize }

// Enqueue copies as many bytes from p as fit and returns the count
// actually written. It never blocks and never returns an error: a full
// ring simply accepts fewer bytes, matching the source driver's
// non-blocking producer behavior (backpressure is the caller's job).
func (r *Ring) Enqueue(p []byte) int {
	n := len(p)
	if n > r.freeSize {
		n = r.freeSize
	}
	for i := 0; i < n; i++ {
		r.buf[r.freeHead] = p[i]
		r.freeHead = (r.freeHead + 1) % len(r.buf)
	}
	r.size += n
	r.freeSize -= n
	r.assertInvariants()
	return n
}

// Dequeue copies as many queued bytes into p as fit and returns the
// count actually read.
func (r *Ring) Dequeue(p []byte) int {
	n := len(p)
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		p[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
	}
	r.size -= n
	r.freeSize += n
	r.assertInvariants()
	return n
}

// Peek copies up to len(p) queued bytes into p without consuming
// them, returning the count copied. Used by consumers (cmd/ttyd's
// reader task) that must inspect queued bytes — e.g. to find a line
// terminator — before deciding how many to actually Dequeue.
func (r *Ring) Peek(p []byte) int {
	n := len(p)
	if n > r.size {
		n = r.size
	}
	idx := r.head
	for i := 0; i < n; i++ {
		p[i] = r.buf[idx]
		idx = (idx + 1) % len(r.buf)
	}
	return n
}

// PeekByte returns the byte that would be dequeued next without
// consuming it, and whether the ring was non-empty.
func (r *Ring) PeekByte() (byte, bool) {
	if r.size == 0 {
		return 0, false
	}
	return r.buf[r.head], true
}

// RemoveLast undoes the most recent Enqueue of a single byte, if any
// is still queued, and returns it. Used by the line discipline's erase
// processing, the Go analogue of the source driver's
// `rx_free_head--`/`rx_sz--` undo in line_discipline()'s VERASE case.
func (r *Ring) RemoveLast() (byte, bool) {
	if r.size == 0 {
		return 0, false
	}
	r.freeHead = (r.freeHead - 1 + len(r.buf)) % len(r.buf)
	b := r.buf[r.freeHead]
	r.size--
	r.freeSize++
	r.assertInvariants()
	return b, true
}

// Reset empties the ring, discarding all queued bytes.
func (r *Ring) Reset() {
	r.head = 0
	r.freeHead = 0
	r.size = 0
	r.freeSize = len(r.buf)
}

// assertInvariants enforces the spec.md §3 ring invariants: size and
// freeSize always sum to capacity, and both stay within bounds. Panics
// rather than silently corrupting state, the same "this should never
// happen" posture the teacher takes with its descriptor-offset
// constants.
func (r *Ring) assertInvariants() {
	cap := len(r.buf)
	if r.size < 0 || r.size > cap {
		panic(fmt.Sprintf("ringbuf: size %d out of bounds [0,%d]", r.size, cap))
	}
	if r.freeSize < 0 || r.freeSize > cap {
		panic(fmt.Sprintf("ringbuf: freeSize %d out of bounds [0,%d]", r.freeSize, cap))
	}
	if r.size+r.freeSize != cap {
		panic(fmt.Sprintf("ringbuf: size+freeSize=%d != capacity=%d", r.size+r.freeSize, cap))
	}
}
