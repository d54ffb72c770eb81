package sdhost

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostInitIdentifiesCard(t *testing.T) {
	card := newFakeCard(4)
	h := New(card, nil)

	err := h.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xaaaa), h.cardRCA)
	assert.True(t, h.supportsSDHC)
	assert.EqualValues(t, 512, h.BlockSize())
}

func TestHostReadWriteRoundTrip(t *testing.T) {
	card := newFakeCard(4)
	h := New(card, nil)
	require.NoError(t, h.Init(context.Background()))

	want := bytes.Repeat([]byte{0x5a}, 512)
	require.NoError(t, h.WriteBlocks(context.Background(), 1, want))

	got := make([]byte, 512)
	require.NoError(t, h.ReadBlocks(context.Background(), 1, got))
	assert.Equal(t, want, got)
}

func TestHostReadAtWriteAtRequireBlockAlignment(t *testing.T) {
	card := newFakeCard(4)
	h := New(card, nil)
	require.NoError(t, h.Init(context.Background()))

	_, err := h.ReadAt(make([]byte, 100), 0)
	assert.Error(t, err)

	_, err = h.WriteAt(make([]byte, 512), 37)
	assert.Error(t, err)
}

func TestDoDataCommandRejectsNonMultipleLength(t *testing.T) {
	card := newFakeCard(4)
	h := New(card, nil)
	require.NoError(t, h.Init(context.Background()))

	err := h.doDataCommand(context.Background(), 0, make([]byte, 100), false)
	assert.Error(t, err)
}
