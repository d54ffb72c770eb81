// Package adapter provides internal/interfaces.CharAdapter
// implementations: a software loopback adapter for tests, and (under
// internal/adapter/rpi4) the real PL011 UART register adapter for the
// Raspberry Pi 4 target board.
package adapter

import "sync"

// Loopback is an in-memory CharAdapter: bytes written are immediately
// available to read back, MaskInterrupt/UnmaskInterrupt only set and
// clear a masked flag (see Masked), and HandleInterrupt does nothing.
// Used by internal/loop's tests in place of real PL011 hardware.
type Loopback struct {
	mu       sync.Mutex
	rx       []byte
	masked   bool
	baud     int
	stopBits int
	parity   bool
	rtsCts   bool
}

// NewLoopback creates an empty loopback adapter.
func NewLoopback() *Loopback { return &Loopback{} }

// Configure implements CharAdapter.
func (a *Loopback) Configure(baud, stopBits int, parity, rtsCts bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baud, a.stopBits, a.parity, a.rtsCts = baud, stopBits, parity, rtsCts
	return nil
}

// ReadReady implements CharAdapter.
func (a *Loopback) ReadReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rx) > 0
}

// WriteReady implements CharAdapter: the loopback FIFO never backs up.
func (a *Loopback) WriteReady() bool { return true }

// ReadByte implements CharAdapter.
func (a *Loopback) ReadByte() byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rx) == 0 {
		return 0
	}
	b := a.rx[0]
	a.rx = a.rx[1:]
	return b
}

// WriteByte implements CharAdapter by looping the byte straight back
// into the read queue, the way a null-modem cable would.
func (a *Loopback) WriteByte(b byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rx = append(a.rx, b)
}

// MaskInterrupt implements CharAdapter.
func (a *Loopback) MaskInterrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.masked = true
}

// UnmaskInterrupt implements CharAdapter.
func (a *Loopback) UnmaskInterrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.masked = false
}

// HandleInterrupt implements CharAdapter; the loopback adapter has no
// real interrupt source, so this is a no-op kept for interface parity.
func (a *Loopback) HandleInterrupt(mask uint32) {}

// InjectByte feeds a byte into the adapter's read queue as if it
// arrived over the wire, for driving tests without a real board.
func (a *Loopback) InjectByte(b byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rx = append(a.rx, b)
}

// Masked reports whether the adapter's interrupt is currently masked,
// for test assertions on the mask/unmask-after-drain ordering
// (spec.md §9 REDESIGN FLAG).
func (a *Loopback) Masked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.masked
}
