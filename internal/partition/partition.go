// Package partition implements MBR discovery and request-to-LBA
// translation for the block driver: a 512-byte read of sector 0, up to
// four published partition mounts alongside the whole-device mount,
// and the 4 KiB read-cache / per-512-byte write-back policy spec.md
// §4.6 requires of the host controller.
//
// Grounded on the teacher's backend.go CreateAndServe/AddDevice
// fan-out (one queue.Runner per hardware queue), generalized here
// from "one runner per queue" to "one Unit per discovered partition".
package partition

import (
	"context"
	"fmt"

	"github.com/coriolis-os/drivers/internal/interfaces"
	"github.com/coriolis-os/drivers/internal/proto"
)

const (
	sectorSize = 512
	cacheSize  = 4096
)

// Unit is a single published mount: the whole device, or one primary
// partition, matching spec.md's "Partition unit" type
// {path, port_id, start_lba, size_bytes, block_count, stat_snapshot}.
type Unit struct {
	Path       string
	Index      int // 0 for the whole device, 1-4 for primary partitions
	StartLBA   uint32
	SizeBlocks uint32

	backend interfaces.Backend

	cacheValid bool
	cacheBlock uint32 // LBA of the first block in cache, cache-line aligned
	cache      [cacheSize]byte
}

// SizeBytes is the unit's addressable size.
func (u *Unit) SizeBytes() int64 { return int64(u.SizeBlocks) * sectorSize }

// Discover reads sector 0 from backend and builds the whole-device
// unit plus up to four primary-partition units, per spec.md §4.6 steps
// 1-4. basePath is the configured device path; partition mounts are
// named "<basePath><index>" for 1-based index.
func Discover(ctx context.Context, backend interfaces.Backend, basePath string, capacityBlocks uint32) ([]*Unit, error) {
	sector := make([]byte, sectorSize)
	if _, err := backend.ReadAt(sector, 0); err != nil {
		return nil, fmt.Errorf("partition: reading sector 0: %w", err)
	}

	units := []*Unit{{
		Path:       basePath,
		Index:      0,
		StartLBA:   0,
		SizeBlocks: capacityBlocks,
		backend:    backend,
	}}

	mbr, err := proto.ParseMBR(sector)
	if err != nil {
		// Not every card ships a partition table; the whole-device mount
		// alone is still valid (spec.md §4.6 step 4: "No entry → no
		// extra mount").
		return units, nil
	}

	for i, e := range mbr.Entries {
		if e.Type == 0 {
			continue
		}
		units = append(units, &Unit{
			Path:       fmt.Sprintf("%s%d", basePath, i+1),
			Index:      i + 1,
			StartLBA:   e.StartLBA,
			SizeBlocks: e.SizeLBA,
			backend:    backend,
		})
	}
	return units, nil
}

// ReadAt serves a read of length bytes at offset within the partition,
// following spec.md §4.6's block-I/O translation: repeatedly fill a
// 4 KiB cache line from the backing store and copy out the requested
// slice, reusing the cache across calls that land on the same line.
func (u *Unit) ReadAt(offset, length int64) ([]byte, error) {
	out := make([]byte, 0, length)
	for length > 0 {
		block := u.StartLBA + uint32(offset/sectorSize)
		lineBlock := block - block%(cacheSize/sectorSize)
		chunkStart := int64(block-lineBlock)*sectorSize + offset%sectorSize
		chunkSize := cacheSize - chunkStart
		if chunkSize > length {
			chunkSize = length
		}

		if !u.cacheValid || u.cacheBlock != lineBlock {
			n, err := u.backend.ReadAt(u.cache[:], int64(lineBlock)*sectorSize)
			if err != nil {
				return nil, fmt.Errorf("partition: cache fill at LBA %d: %w", lineBlock, err)
			}
			if n < cacheSize {
				return nil, fmt.Errorf("partition: short cache fill at LBA %d: got %d bytes", lineBlock, n)
			}
			u.cacheValid = true
			u.cacheBlock = lineBlock
		}

		out = append(out, u.cache[chunkStart:chunkStart+chunkSize]...)
		offset += chunkSize
		length -= chunkSize
	}
	return out, nil
}

// WriteAt serves a write of payload at offset within the partition.
// The cache is invalidated up front; partial-block writes pre-read the
// affected 512-byte blocks, overlay payload, and write each block back
// individually — the controller this driver targets has historically
// misbehaved on multi-sector PIO writes, so writes never batch more
// than one sector per backend.WriteAt call.
func (u *Unit) WriteAt(offset int64, payload []byte) error {
	u.cacheValid = false

	for len(payload) > 0 {
		block := u.StartLBA + uint32(offset/sectorSize)
		blockOffset := offset % sectorSize
		n := int64(sectorSize) - blockOffset
		if n > int64(len(payload)) {
			n = int64(len(payload))
		}

		var sector [sectorSize]byte
		if blockOffset != 0 || n < sectorSize {
			if _, err := u.backend.ReadAt(sector[:], int64(block)*sectorSize); err != nil {
				return fmt.Errorf("partition: pre-read at LBA %d: %w", block, err)
			}
		}
		copy(sector[blockOffset:blockOffset+n], payload[:n])

		if _, err := u.backend.WriteAt(sector[:], int64(block)*sectorSize); err != nil {
			return fmt.Errorf("partition: write-back at LBA %d: %w", block, err)
		}

		payload = payload[n:]
		offset += n
	}
	return nil
}
