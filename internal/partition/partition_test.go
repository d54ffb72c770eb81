package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is a trivial in-memory interfaces.Backend for exercising
// Discover/ReadAt/WriteAt without a real SD card.
type memBackend struct {
	data []byte
}

func newMemBackend(size int) *memBackend { return &memBackend{data: make([]byte, size)} }

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *memBackend) Size() int64 { return int64(len(m.data)) }
func (m *memBackend) Close() error { return nil }
func (m *memBackend) Flush() error { return nil }

func writeMBR(t *testing.T, m *memBackend, entries [][4]uint32) {
	t.Helper()
	sector := make([]byte, 512)
	for i, e := range entries {
		off := 446 + i*16
		sector[off+4] = byte(e[0]) // type
		putLE32(sector[off+8:], e[1])
		putLE32(sector[off+12:], e[2])
		_ = e[3]
	}
	sector[510] = 0x55
	sector[511] = 0xAA
	copy(m.data, sector)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func TestDiscoverTwoPartitionsPlusWholeDevice(t *testing.T) {
	backend := newMemBackend(16 * 1024 * 1024)
	writeMBR(t, backend, [][4]uint32{
		{0x83, 2048, 4096, 0},
		{0x0C, 8192, 8192, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})

	units, err := Discover(context.Background(), backend, "/dev/sdblk", 32768)
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "/dev/sdblk", units[0].Path)
	assert.EqualValues(t, 0, units[0].StartLBA)

	assert.Equal(t, "/dev/sdblk1", units[1].Path)
	assert.EqualValues(t, 2048, units[1].StartLBA)
	assert.EqualValues(t, 4096, units[1].SizeBlocks)

	assert.Equal(t, "/dev/sdblk2", units[2].Path)
	assert.EqualValues(t, 8192, units[2].StartLBA)
	assert.EqualValues(t, 8192, units[2].SizeBlocks)
}

func TestDiscoverNoPartitionTableYieldsWholeDeviceOnly(t *testing.T) {
	backend := newMemBackend(1024 * 1024)
	units, err := Discover(context.Background(), backend, "/dev/sdblk", 2048)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "/dev/sdblk", units[0].Path)
}

func TestUnitReadWriteRoundTripAtOffset(t *testing.T) {
	backend := newMemBackend(16 * 1024 * 1024)
	units, err := Discover(context.Background(), backend, "/dev/sdblk", 32768)
	require.NoError(t, err)
	whole := units[0]

	pattern := make([]byte, 1024)
	for i := range pattern {
		pattern[i] = byte(i)
	}

	require.NoError(t, whole.WriteAt(0, pattern))
	got, err := whole.ReadAt(0, 512)
	require.NoError(t, err)
	assert.Equal(t, pattern[:512], got)
}

func TestUnitWriteAtPartialBlockPreservesSurroundingBytes(t *testing.T) {
	backend := newMemBackend(1 << 20)
	units, err := Discover(context.Background(), backend, "/dev/sdblk", 2048)
	require.NoError(t, err)
	whole := units[0]

	full := make([]byte, 512)
	for i := range full {
		full[i] = 0xAA
	}
	require.NoError(t, whole.WriteAt(0, full))

	require.NoError(t, whole.WriteAt(100, []byte{0x01, 0x02, 0x03}))

	got, err := whole.ReadAt(0, 512)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), got[99])
	assert.Equal(t, byte(0x01), got[100])
	assert.Equal(t, byte(0x02), got[101])
	assert.Equal(t, byte(0x03), got[102])
	assert.Equal(t, byte(0xAA), got[103])
}

func TestUnitReadAtSpansMultipleCacheLines(t *testing.T) {
	backend := newMemBackend(16 * 1024)
	units, err := Discover(context.Background(), backend, "/dev/sdblk", 32)
	require.NoError(t, err)
	whole := units[0]

	pattern := make([]byte, 8192)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}
	require.NoError(t, whole.WriteAt(0, pattern))

	got, err := whole.ReadAt(0, 8192)
	require.NoError(t, err)
	assert.Equal(t, pattern, got)
}
