package proto

import "encoding/binary"

// MBREntry is one on-disk partition table entry in the Master Boot
// Record, laid out exactly as original_source/sdcard/sdcard.h's
// `struct mbr_partition_table_entry` (packed, 16 bytes).
type MBREntry struct {
	State     uint8
	StartHead uint8
	StartCylSec uint16
	Type      uint8
	EndHead   uint8
	EndCylSec uint16
	StartLBA  uint32
	SizeLBA   uint32
}

// mbrEntrySize is sizeof(struct mbr_partition_table_entry).
const mbrEntrySize = 16

// mbrEntryTableOffset is the byte offset of the four-entry partition
// table within sector 0.
const mbrEntryTableOffset = 446

// mbrSignatureOffset is the offset of the 0x55AA boot signature.
const mbrSignatureOffset = 510

// MBR is the parsed contents of a disk's sector 0: up to four primary
// partition entries (spec.md §4.6).
type MBR struct {
	Entries [4]MBREntry
}

// ParseMBR decodes sector into an MBR. sector must be at least 512
// bytes; entries whose Type is 0 are considered unused slots and are
// still returned (callers filter on Type == 0).
func ParseMBR(sector []byte) (MBR, error) {
	if len(sector) < 512 {
		return MBR{}, ErrShortMessage
	}
	if sector[mbrSignatureOffset] != 0x55 || sector[mbrSignatureOffset+1] != 0xAA {
		return MBR{}, ErrNoBootSignature
	}

	var m MBR
	for i := 0; i < 4; i++ {
		off := mbrEntryTableOffset + i*mbrEntrySize
		e := sector[off : off+mbrEntrySize]
		m.Entries[i] = MBREntry{
			State:       e[0],
			StartHead:   e[1],
			StartCylSec: binary.LittleEndian.Uint16(e[2:4]),
			Type:        e[4],
			EndHead:     e[5],
			EndCylSec:   binary.LittleEndian.Uint16(e[6:8]),
			StartLBA:    binary.LittleEndian.Uint32(e[8:12]),
			SizeLBA:     binary.LittleEndian.Uint32(e[12:16]),
		}
	}
	return m, nil
}

// ErrNoBootSignature is returned when sector 0 does not end in the
// 0x55AA boot signature.
var ErrNoBootSignature = &mbrError{"proto: missing 0x55AA boot signature"}

type mbrError struct{ msg string }

func (e *mbrError) Error() string { return e.msg }
