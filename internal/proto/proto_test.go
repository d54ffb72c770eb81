package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Cmd: CmdWrite, Unit: 2, RequestID: 0xdeadbeef, PayloadLen: 512}
	buf := MarshalHeader(h)
	require.Len(t, buf, HeaderSize)

	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestUnmarshalHeaderTooShort(t *testing.T) {
	_, err := UnmarshalHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestCmdString(t *testing.T) {
	assert.Equal(t, "READ", CmdRead.String())
	assert.Equal(t, "BLOCK_DISCARD", CmdBlockDiscard.String())
	assert.Contains(t, Cmd(9999).String(), "CMD(")
}

type fixedLayout struct {
	A uint32
	B uint16
	C uint8
	D [3]byte
}

func TestDirectMarshalFixedLayout(t *testing.T) {
	v := fixedLayout{A: 1, B: 2, C: 3, D: [3]byte{4, 5, 6}}
	buf, err := directMarshal(&v)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 3, 4, 5, 6}, buf)
}

func TestDirectMarshalRejectsUnsupportedKind(t *testing.T) {
	type bad struct{ S string }
	_, err := directMarshal(&bad{S: "x"})
	assert.Error(t, err)
}
