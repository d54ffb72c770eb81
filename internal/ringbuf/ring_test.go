package ringbuf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	r := New(8)
	n := r.Enqueue([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 3, r.Free())

	out := make([]byte, 5)
	got := r.Dequeue(out)
	assert.Equal(t, 5, got)
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 8, r.Free())
}

func TestEnqueueSaturatesWithoutError(t *testing.T) {
	r := New(4)
	n := r.Enqueue([]byte("abcdef"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, r.Free())
}

func TestDequeueEmptyReturnsZero(t *testing.T) {
	r := New(4)
	out := make([]byte, 4)
	assert.Equal(t, 0, r.Dequeue(out))
}

func TestWraparound(t *testing.T) {
	r := New(4)
	require.Equal(t, 4, r.Enqueue([]byte("abcd")))
	out := make([]byte, 2)
	require.Equal(t, 2, r.Dequeue(out))
	require.Equal(t, "ab", string(out))

	// freeHead has wrapped; enqueue two more bytes into the freed slots.
	require.Equal(t, 2, r.Enqueue([]byte("ef")))
	out = make([]byte, 4)
	require.Equal(t, 4, r.Dequeue(out))
	assert.Equal(t, "cdef", string(out))
}

func TestPeekByteDoesNotConsume(t *testing.T) {
	r := New(4)
	r.Enqueue([]byte("x"))
	b, ok := r.PeekByte()
	require.True(t, ok)
	assert.Equal(t, byte('x'), b)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveLastUndoesEnqueue(t *testing.T) {
	r := New(4)
	r.Enqueue([]byte("ab"))
	b, ok := r.RemoveLast()
	require.True(t, ok)
	assert.Equal(t, byte('b'), b)
	assert.Equal(t, 1, r.Len())

	out := make([]byte, 1)
	r.Dequeue(out)
	assert.Equal(t, "a", string(out))
}

func TestRemoveLastOnEmptyRing(t *testing.T) {
	r := New(4)
	_, ok := r.RemoveLast()
	assert.False(t, ok)
}

func TestResetEmptiesRing(t *testing.T) {
	r := New(4)
	r.Enqueue([]byte("ab"))
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 4, r.Free())
}

// Property-based: random sequences of enqueue/dequeue never violate
// size+free==capacity and every byte dequeued matches what was pushed,
// in order (spec.md §8's ring-buffer property test).
func TestRingInvariantsUnderRandomOps(t *testing.T) {
	const capacity = 37
	r := New(capacity)
	var model []byte
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			n := rng.Intn(10) + 1
			p := make([]byte, n)
			rng.Read(p)
			written := r.Enqueue(p)
			model = append(model, p[:written]...)
		} else {
			n := rng.Intn(10) + 1
			out := make([]byte, n)
			got := r.Dequeue(out)
			require.True(t, got <= len(model))
			assert.Equal(t, model[:got], out[:got])
			model = model[got:]
		}
		assert.Equal(t, capacity, r.Len()+r.Free())
		assert.Equal(t, len(model), r.Len())
	}
}
