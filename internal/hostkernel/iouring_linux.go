//go:build linux && iouring

// Package hostkernel's iouring-backed Port submits each reply frame as
// an IORING_OP_WRITE against the connection's file descriptor instead
// of a blocking sendmsg per reply, for deployments that want io_uring's
// submission path for replies; Recv stays on the UnixPort read loop.
//
// This fixes a latent bug in the teacher: its own
// internal/uring/iouring.go is gated behind the same kind of build tag
// but imports github.com/iceber/iouring-go, a package go.mod never
// requires. go.mod requires github.com/pawelgaczynski/giouring and
// nothing in the teacher ever imports it. This file wires the
// dependency the module actually declares.
package hostkernel

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pawelgaczynski/giouring"
)

// IOURingPort wraps a UnixPort's file descriptor, submitting reply
// writes through an io_uring submission queue rather than a blocking
// syscall per reply. Recv/Events still go through the UnixPort's
// regular read loop — only the reply fast path changes, mirroring the
// teacher's queue runner, which only used io_uring for the
// fetch/commit completion path and left control-plane setup on plain
// syscalls.
type IOURingPort struct {
	*UnixPort
	ring *giouring.Ring
}

// NewIOURingPort wraps an existing UnixPort with an io_uring
// submission queue of the given depth.
func NewIOURingPort(base *UnixPort, entries uint32) (*IOURingPort, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("hostkernel: giouring.CreateRing: %w", err)
	}
	return &IOURingPort{UnixPort: base, ring: ring}, nil
}

// Reply submits the reply write as an IORING_OP_WRITE against the
// connection file descriptor via the ring, falling back to the base
// UnixPort's blocking Reply if no submission queue entry is
// available (the ring is saturated).
func (p *IOURingPort) Reply(ctx context.Context, requestID uint64, errno int32, payload []byte) error {
	p.mu.Lock()
	conn, ok := p.conns[requestID]
	if ok {
		delete(p.conns, requestID)
	}
	p.mu.Unlock()
	if !ok {
		return os.ErrInvalid
	}

	buf := buildReplyFrame(requestID, errno, payload)

	// conn was taken out of p.conns above; put it back before handing
	// the reply to the base UnixPort, which looks it up there.
	fallback := func() error {
		p.mu.Lock()
		p.conns[requestID] = conn
		p.mu.Unlock()
		return p.UnixPort.Reply(ctx, requestID, errno, payload)
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fallback()
	}

	var submitErr error
	err = rawConn.Control(func(fd uintptr) {
		sqe := p.ring.GetSQE()
		if sqe == nil {
			submitErr = fmt.Errorf("hostkernel: io_uring submission queue full")
			return
		}
		sqe.PrepareWrite(int(fd), buf, uint32(len(buf)), 0)
		sqe.UserData = requestID
		if _, err := p.ring.Submit(); err != nil {
			submitErr = err
			return
		}
		cqe, err := p.ring.WaitCQE()
		if err != nil {
			submitErr = err
			return
		}
		if cqe.Res < 0 {
			submitErr = fmt.Errorf("hostkernel: io_uring write completion res=%d", cqe.Res)
		}
		p.ring.CQESeen(cqe)
	})
	if err != nil {
		return err
	}
	if submitErr != nil {
		return fallback()
	}
	return nil
}

// Close releases both the io_uring instance and the wrapped UnixPort.
func (p *IOURingPort) Close() error {
	p.ring.QueueExit()
	return p.UnixPort.Close()
}

func buildReplyFrame(requestID uint64, errno int32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(errno))
	binary.LittleEndian.PutUint64(buf[8:16], requestID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}
