//go:build linux

// Package rpi4 implements internal/interfaces.CharAdapter and the
// SD/eMMC host register window for the Raspberry Pi 4's BCM2711 SoC,
// mapped over /dev/mem via golang.org/x/sys/unix.Mmap — the Go
// analogue of original_source's hal_set_pl011_base/hal_get_pl011_base
// pointer-cast register access.
//
// Register layout and bit definitions are grounded verbatim on
// original_source/serial/boards/raspberry_pi_4/pl011_uart.h's
// `struct bcm2835_pl011_registers` and `enum PL011_Register_Defs`.
package rpi4

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// PL011 register byte offsets, in declaration order from
// bcm2835_pl011_registers.
const (
	regData   = 0x00
	regRSRECR = 0x04
	regFlags  = 0x18
	regIBRD   = 0x24
	regFBRD   = 0x28
	regLCRH   = 0x2C
	regCTRL   = 0x30
	regIFLS   = 0x34
	regIMSC   = 0x38
	regRIS    = 0x3C
	regMIS    = 0x40
	regICR    = 0x44
)

// Flag register bits.
const (
	frTXFE = 1 << 7
	frRXFF = 1 << 6
	frTXFF = 1 << 5
	frRXFE = 1 << 4
	frBUSY = 1 << 3
)

// Line control register bits.
const (
	lcrhWLEN8 = 3 << 5
	lcrhFEN   = 1 << 4
	lcrhSTP2  = 1 << 3
	lcrhEPS   = 1 << 2
	lcrhPEN   = 1 << 1
)

// Control register bits.
const (
	crCTSEN  = 1 << 15
	crRTSEN  = 1 << 14
	crRXE    = 1 << 9
	crTXW    = 1 << 8
	crUARTEN = 1 << 0
)

// Interrupt bits (IMSC/RIS/MIS/ICR).
const (
	intRTR = 1 << 6 // receive timeout
	intTXR = 1 << 5 // transmit
	intRXR = 1 << 4 // receive
	intAll = 0x7F2
)

// uartClock is UART_CLK from the original header: a fixed 48MHz
// reference clock on the BCM2711, 3MHz * 16.
const uartClock = 3_000_000 * 16

// PL011 is the board-specific UART CharAdapter, reading/writing the
// real hardware register window.
type PL011 struct {
	mu   sync.Mutex
	regs []byte // mmap'd register window, PL011RegisterWindowSize bytes
}

// PL011RegisterWindowSize is large enough to cover every register the
// driver touches (DMACR at 0x48 plus headroom).
const PL011RegisterWindowSize = 0x1000

// physBaseDefault is the BCM2711 mini-UART/PL011 peripheral base on a
// Raspberry Pi 4 when accessed through the legacy 0x7E000000 bus
// window remapped to ARM physical address 0xFE201000.
const physBaseDefault = 0xFE201000

// DefaultPL011PhysBase is physBaseDefault exported for cmd/ttyd's board
// wiring, the physical address to pass to Open on an unmodified
// Raspberry Pi 4 device tree.
const DefaultPL011PhysBase = physBaseDefault

// Open maps the PL011 register window from /dev/mem at physBase (use
// physBaseDefault unless the board's device tree says otherwise).
func Open(physBase int64) (*PL011, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("rpi4: open /dev/mem: %w", err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), physBase, PL011RegisterWindowSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("rpi4: mmap PL011 registers: %w", err)
	}
	return &PL011{regs: mem}, nil
}

// Close unmaps the register window.
func (p *PL011) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return unix.Munmap(p.regs)
}

func (p *PL011) read32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.regs[off : off+4])
}

func (p *PL011) write32(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.regs[off:off+4], v)
}

// Configure implements internal/interfaces.CharAdapter, mirroring
// hal_pl011_uart_init's disable/program-divisor/program-LCRH/
// re-enable sequence.
func (p *PL011) Configure(baud, stopBits int, parity, rtsCts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Disable the UART while reprogramming, per the PL011 TRM.
	p.write32(regCTRL, 0)

	ibrd, fbrd := baudDivisors(baud)
	p.write32(regIBRD, ibrd)
	p.write32(regFBRD, fbrd)
	p.write32(regLCRH, lineControlBits(stopBits, parity))

	ctrl := uint32(crUARTEN | crRXE | crTXW)
	if rtsCts {
		ctrl |= crCTSEN | crRTSEN
	}
	p.write32(regCTRL, ctrl)
	return nil
}

// baudDivisors computes the PL011 IBRD/FBRD integer/fractional baud
// divisor pair for the fixed UART_CLK reference clock, per the PL011
// TRM's BAUDDIV = UART_CLK / (16 * baud) formula expressed in 1/64ths
// to keep the fractional part exact in integer arithmetic.
func baudDivisors(baud int) (ibrd, fbrd uint32) {
	divisorX64 := (uartClock * 4) / uint32(baud)
	return divisorX64 / 64, divisorX64 % 64
}

// lineControlBits builds the LCRH value for 8N1/8N2/8E1-style framing;
// this driver always runs 8 data bits, varying only stop bits and
// parity (spec.md never calls for 5/6/7-bit frames).
func lineControlBits(stopBits int, parity bool) uint32 {
	lcrh := uint32(lcrhWLEN8 | lcrhFEN)
	if stopBits == 2 {
		lcrh |= lcrhSTP2
	}
	if parity {
		lcrh |= lcrhPEN | lcrhEPS
	}
	return lcrh
}

// ReadReady implements CharAdapter: RXFE clear means data is present.
func (p *PL011) ReadReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read32(regFlags)&frRXFE == 0
}

// WriteReady implements CharAdapter: TXFF clear means room remains.
func (p *PL011) WriteReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read32(regFlags)&frTXFF == 0
}

// ReadByte implements CharAdapter.
func (p *PL011) ReadByte() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return byte(p.read32(regData))
}

// WriteByte implements CharAdapter.
func (p *PL011) WriteByte(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write32(regData, uint32(b))
}

// MaskInterrupt implements CharAdapter.
func (p *PL011) MaskInterrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write32(regIMSC, 0)
}

// UnmaskInterrupt implements CharAdapter: re-enable RX, RX-timeout and
// TX interrupts — the set the reader/writer tasks actually wait on.
func (p *PL011) UnmaskInterrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write32(regIMSC, intRXR|intRTR|intTXR)
}

// HandleInterrupt implements CharAdapter: acknowledges only the bits
// the caller reports handling, never blind-clearing bits it didn't
// understand (spec.md §4.5.7's "never clear unknown interrupt bits"
// generalized here to the character device).
func (p *PL011) HandleInterrupt(mask uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write32(regICR, mask&intAll)
}

// RawStatus returns the masked interrupt status register (MIS), the
// value the event loop reads to decide which bits to hand to
// HandleInterrupt.
func (p *PL011) RawStatus() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read32(regMIS)
}
