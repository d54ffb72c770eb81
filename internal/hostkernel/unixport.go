//go:build linux

package hostkernel

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// UnixPort is the real Port implementation: a SOCK_SEQPACKET
// Unix-domain socket listener, one connection per client task. Each
// inbound datagram is [Header as 20 little-endian bytes][payload].
//
// Grounded on the teacher's direct golang.org/x/sys/unix use in
// internal/queue/runner.go (SchedSetaffinity, raw syscall plumbing
// around the ublk character device) — here retargeted at socket
// creation/option-tuning instead of ioctl/mmap calls, since this
// repo's message transport is a Unix socket rather than a kernel
// character device.
type UnixPort struct {
	ln *net.UnixListener

	mu      sync.Mutex
	conns   map[uint64]*net.UnixConn // requestID -> connection awaiting reply
	pending []Message
	events  chan Event
	closeCh chan struct{}
}

// NewUnixPort creates a SOCK_SEQPACKET listener at path with the
// given socket-file permission bits, accepting a new connection per
// client task the way createmsgport's callers each open their own
// descriptor.
func NewUnixPort(path string, perm os.FileMode) (*UnixPort, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, perm); err != nil {
		ln.Close()
		return nil, err
	}
	// Best-effort: a larger receive buffer absorbs bursts of requests
	// (e.g. the block driver's read-ahead) without the kernel dropping
	// seqpacket datagrams. Not fatal if the platform refuses it.
	_ = setRecvBufferSize(ln, 1<<20)

	p := &UnixPort{
		ln:      ln,
		conns:   make(map[uint64]*net.UnixConn),
		events:  make(chan Event, 64),
		closeCh: make(chan struct{}),
	}
	go p.acceptLoop()
	return p, nil
}

func (p *UnixPort) acceptLoop() {
	for {
		select {
		case <-p.closeCh:
			return
		default:
		}

		// Bound the wait so a listener with no pending connection
		// still notices Close promptly, the fallback-polling role
		// waitReadable plays for platforms where AcceptUnix alone
		// doesn't wake up on socket teardown.
		if rc, err := p.ln.SyscallConn(); err == nil {
			var waitErr error
			_ = rc.Control(func(fd uintptr) {
				waitErr = waitReadable(int(fd), 200*time.Millisecond)
			})
			if waitErr != nil {
				continue
			}
		}

		conn, err := p.ln.AcceptUnix()
		if err != nil {
			select {
			case <-p.closeCh:
				return
			default:
			}
			continue
		}
		go p.readLoop(conn)
	}
}

func (p *UnixPort) readLoop(conn *net.UnixConn) {
	buf := make([]byte, 64*1024)
	for {
		n, _, _, _, err := conn.ReadMsgUnix(buf, nil)
		if err != nil {
			return
		}
		if n < HeaderSize {
			continue
		}
		h := Header{
			Cmd:        binary.LittleEndian.Uint32(buf[0:4]),
			Unit:       binary.LittleEndian.Uint32(buf[4:8]),
			RequestID:  binary.LittleEndian.Uint64(buf[8:16]),
			PayloadLen: binary.LittleEndian.Uint32(buf[16:20]),
		}
		payload := make([]byte, n-HeaderSize)
		copy(payload, buf[HeaderSize:n])

		p.mu.Lock()
		p.conns[h.RequestID] = conn
		p.pending = append(p.pending, Message{Header: h, Payload: payload})
		p.mu.Unlock()

		select {
		case p.events <- Event{Kind: EventMessage}:
		default:
		}
	}
}

// HeaderSize matches proto.HeaderSize; duplicated here as an untyped
// constant to avoid hostkernel importing proto (proto is the
// higher-level package; the dependency only goes one way).
const HeaderSize = 4 + 4 + 8 + 4

// Events implements Port.
func (p *UnixPort) Events() <-chan Event { return p.events }

// Recv implements Port.
func (p *UnixPort) Recv() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return Message{}, false
	}
	m := p.pending[0]
	p.pending = p.pending[1:]
	return m, true
}

// Reply implements Port.
func (p *UnixPort) Reply(ctx context.Context, requestID uint64, errno int32, payload []byte) error {
	p.mu.Lock()
	conn, ok := p.conns[requestID]
	if ok {
		delete(p.conns, requestID)
	}
	p.mu.Unlock()
	if !ok {
		return os.ErrInvalid
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(errno))
	binary.LittleEndian.PutUint64(buf[8:16], requestID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	done := make(chan error, 1)
	go func() {
		_, _, err := conn.WriteMsgUnix(buf, nil, nil)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Port.
func (p *UnixPort) Close() error {
	select {
	case <-p.closeCh:
		return nil
	default:
		close(p.closeCh)
	}
	close(p.events)
	return p.ln.Close()
}

// setRecvBufferSize tunes SO_RCVBUF on the listener's underlying file
// descriptor, matching the teacher's pattern of reaching for
// golang.org/x/sys/unix directly for socket-option tuning that the
// net package doesn't expose.
func setRecvBufferSize(ln *net.UnixListener, bytes int) error {
	rc, err := ln.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = rc.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	})
	if err != nil {
		return err
	}
	return setErr
}
