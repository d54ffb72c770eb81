package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSector(entries [4]MBREntry) []byte {
	sector := make([]byte, 512)
	for i, e := range entries {
		off := mbrEntryTableOffset + i*mbrEntrySize
		sector[off] = e.State
		sector[off+1] = e.StartHead
		sector[off+2] = byte(e.StartCylSec)
		sector[off+3] = byte(e.StartCylSec >> 8)
		sector[off+4] = e.Type
		sector[off+5] = e.EndHead
		sector[off+6] = byte(e.EndCylSec)
		sector[off+7] = byte(e.EndCylSec >> 8)
		for b := 0; b < 4; b++ {
			sector[off+8+b] = byte(e.StartLBA >> (8 * b))
		}
		for b := 0; b < 4; b++ {
			sector[off+12+b] = byte(e.SizeLBA >> (8 * b))
		}
	}
	sector[mbrSignatureOffset] = 0x55
	sector[mbrSignatureOffset+1] = 0xAA
	return sector
}

func TestParseMBRTwoPartitions(t *testing.T) {
	var entries [4]MBREntry
	entries[0] = MBREntry{Type: 0x83, StartLBA: 2048, SizeLBA: 4096}
	entries[1] = MBREntry{Type: 0x0C, StartLBA: 8192, SizeLBA: 8192}
	sector := buildSector(entries)

	m, err := ParseMBR(sector)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x83), m.Entries[0].Type)
	assert.Equal(t, uint32(2048), m.Entries[0].StartLBA)
	assert.Equal(t, uint32(4096), m.Entries[0].SizeLBA)
	assert.Equal(t, uint8(0x0C), m.Entries[1].Type)
	assert.Equal(t, uint32(8192), m.Entries[1].StartLBA)
	assert.Equal(t, uint8(0), m.Entries[2].Type)
	assert.Equal(t, uint8(0), m.Entries[3].Type)
}

func TestParseMBRMissingSignature(t *testing.T) {
	sector := make([]byte, 512)
	_, err := ParseMBR(sector)
	assert.ErrorIs(t, err, ErrNoBootSignature)
}

func TestParseMBRShortSector(t *testing.T) {
	_, err := ParseMBR(make([]byte, 100))
	assert.ErrorIs(t, err, ErrShortMessage)
}
