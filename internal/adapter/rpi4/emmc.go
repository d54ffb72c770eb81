//go:build linux

// EMMCRegs implements internal/sdhost.RegisterIO over the BCM2711's
// real EMMC/SD host-controller register window, mapped from /dev/mem
// the same way PL011.Open maps the UART window.
//
// Base address and window size are grounded on
// original_source/sdcard/emmc.c's EMMC_BASE and the register offsets
// internal/sdhost/registers.go already reproduces from the same file.
package rpi4

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// emmcPhysBaseDefault is the BCM2711 EMMC2 peripheral's ARM physical
// address, the Raspberry Pi 4's SD-card host controller.
const emmcPhysBaseDefault = 0xFE340000

// DefaultEMMCPhysBase is emmcPhysBaseDefault exported for cmd/sdblockd's
// board wiring, the physical address to pass to OpenEMMC on an
// unmodified Raspberry Pi 4 device tree.
const DefaultEMMCPhysBase = emmcPhysBaseDefault

// EMMCRegisterWindowSize covers every offset internal/sdhost touches
// (the highest named register plus headroom for controller versions
// that add vendor-specific tail registers).
const EMMCRegisterWindowSize = 0x1000

// EMMCRegs is an mmap'd EMMC register window implementing
// internal/sdhost.RegisterIO.
type EMMCRegs struct {
	mu   sync.Mutex
	regs []byte
}

// OpenEMMC maps the EMMC register window from /dev/mem at physBase
// (use emmcPhysBaseDefault unless the board's device tree says
// otherwise).
func OpenEMMC(physBase int64) (*EMMCRegs, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("rpi4: open /dev/mem: %w", err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), physBase, EMMCRegisterWindowSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("rpi4: mmap EMMC registers: %w", err)
	}
	return &EMMCRegs{regs: mem}, nil
}

// Close unmaps the register window.
func (e *EMMCRegs) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return unix.Munmap(e.regs)
}

// Read32 implements internal/sdhost.RegisterIO.
func (e *EMMCRegs) Read32(offset uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return binary.LittleEndian.Uint32(e.regs[offset : offset+4])
}

// Write32 implements internal/sdhost.RegisterIO.
func (e *EMMCRegs) Write32(offset uint32, value uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	binary.LittleEndian.PutUint32(e.regs[offset:offset+4], value)
}
