//go:build linux

package adapter

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

// ioctl request codes for the Unix98 pty master/slave handshake,
// ported verbatim from Daedaluz/goserial's ioctl_linux.go (tiocgptn/
// tiocsptlck), the same IOR/IOW builder this repo's PL011/eMMC
// adapters have no use for since those are plain MMIO, not a
// character-special file.
var (
	tiocgptn   = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
)

// PTY is a CharAdapter backed by a real Unix98 pseudo-terminal master,
// letting an ordinary process (anything that can open the slave path)
// exchange bytes with it instead of simulated register pokes; its own
// pty_linux_test.go is its only user in this repository. Grounded on Daedaluz/goserial's
// ioctl-based port open sequence, retargeted from "open one real
// serial device node" to "allocate and unlock a pty pair".
type PTY struct {
	mu        sync.Mutex
	masterFd  int
	slavePath string
	masked    bool
}

// OpenPTY allocates a new pty pair via /dev/ptmx, unlocks the slave,
// and returns a PTY adapter over the master plus the slave's path for
// the test harness to open.
func OpenPTY() (*PTY, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("adapter: open /dev/ptmx: %w", err)
	}

	var lock int32 = 0
	if err := ioctl.Ioctl(uintptr(fd), tiocsptlck, uintptr(unsafe.Pointer(&lock))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("adapter: TIOCSPTLCK: %w", err)
	}

	var ptyNum uint32
	if err := ioctl.Ioctl(uintptr(fd), tiocgptn, uintptr(unsafe.Pointer(&ptyNum))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("adapter: TIOCGPTN: %w", err)
	}

	return &PTY{
		masterFd:  fd,
		slavePath: fmt.Sprintf("/dev/pts/%d", ptyNum),
	}, nil
}

// SlavePath is the path a test harness opens to talk to this adapter
// as if it were a terminal.
func (p *PTY) SlavePath() string { return p.slavePath }

// Configure implements CharAdapter as a no-op: baud, stop bits, parity
// and flow control are ignored, and the pty's own line discipline keeps
// the settings the kernel gave the new pair (it is not switched to raw
// mode).
func (p *PTY) Configure(baud, stopBits int, parity, rtsCts bool) error { return nil }

// ReadReady implements CharAdapter by polling the master fd.
func (p *PTY) ReadReady() bool {
	return p.poll(unix.POLLIN)
}

// WriteReady implements CharAdapter by polling the master fd.
func (p *PTY) WriteReady() bool {
	return p.poll(unix.POLLOUT)
}

func (p *PTY) poll(events int16) bool {
	p.mu.Lock()
	fd := p.masterFd
	p.mu.Unlock()
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 {
		return false
	}
	return fds[0].Revents&events != 0
}

// ReadByte implements CharAdapter; callers must only call it after
// ReadReady reports true.
func (p *PTY) ReadByte() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b [1]byte
	n, err := unix.Read(p.masterFd, b[:])
	if err != nil || n == 0 {
		return 0
	}
	return b[0]
}

// WriteByte implements CharAdapter; callers must only call it after
// WriteReady reports true.
func (p *PTY) WriteByte(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := [1]byte{b}
	for {
		_, err := unix.Write(p.masterFd, buf[:])
		if err == syscall.EAGAIN || err == syscall.EINTR {
			continue
		}
		return
	}
}

// MaskInterrupt implements CharAdapter; a pty has no real interrupt
// line, so this only tracks state for test assertions.
func (p *PTY) MaskInterrupt() {
	p.mu.Lock()
	p.masked = true
	p.mu.Unlock()
}

// UnmaskInterrupt implements CharAdapter.
func (p *PTY) UnmaskInterrupt() {
	p.mu.Lock()
	p.masked = false
	p.mu.Unlock()
}

// HandleInterrupt implements CharAdapter; never invoked since
// cmd/ttyd's uart_rx/uart_tx tasks poll ReadReady/WriteReady directly
// rather than going through the loop's interrupt path (no real
// interrupt delivery exists into a pty either).
func (p *PTY) HandleInterrupt(mask uint32) {}

// Close releases the master fd.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return unix.Close(p.masterFd)
}
