// Package interfaces provides internal interface definitions shared across
// the driver runtime. Kept separate from the root package to avoid
// circular imports between it and the internal packages that implement
// these contracts.
package interfaces

// Backend is the block-storage collaborator for the SD/block driver.
// It is the Go analogue of the host-controller's PIO block transfer
// target: everything above this interface works in block-sized reads
// and writes and never touches registers directly.
type Backend interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Size() int64
	Close() error
	Flush() error
}

// DiscardBackend is an optional interface for TRIM/DISCARD support.
type DiscardBackend interface {
	Backend
	Discard(offset, length int64) error
}

// CharAdapter is the board-specific MMIO collaborator for character
// devices (spec.md §2.4 "Device adapter"): configure the UART, report
// FIFO readiness, move one byte at a time, and service the bottom half
// of an interrupt.
type CharAdapter interface {
	Configure(baud int, stopBits int, parity bool, rtsCts bool) error
	ReadReady() bool
	WriteReady() bool
	ReadByte() byte
	WriteByte(b byte)
	MaskInterrupt()
	UnmaskInterrupt()
	HandleInterrupt(mask uint32)
}

// Logger is the optional structured-logging collaborator.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer is the metrics-collection collaborator. Implementations must
// be safe for concurrent use: methods may be invoked from more than one
// goroutine.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveDiscard(bytes uint64, latencyNs uint64, success bool)
	ObserveFlush(latencyNs uint64, success bool)
	ObserveIOCtl(latencyNs uint64, success bool)
	ObserveAbort()
	ObserveQueueDepth(depth uint32)
}
