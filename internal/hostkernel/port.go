// Package hostkernel stands in for the microkernel syscalls spec.md
// explicitly puts out of scope (createmsgport, getmsg, replymsg,
// readmsg, writemsg, kevent — §1, §6.1): it defines a Port interface
// any driver task blocks on to receive requests and send replies, and
// provides two concrete implementations — a real one backed by a
// SOCK_SEQPACKET Unix-domain socket, and an in-memory one for tests.
//
// This mirrors the teacher's internal/uring.Ring abstraction: Ring
// hides whether commands flow through raw io_uring syscalls or a stub
// used in tests, exactly the seam Port provides here for message
// ports instead of io_uring submission queues.
package hostkernel

import "context"

// EventKind distinguishes what woke a Port's Events channel, the Go
// analogue of kevent's filter field.
type EventKind int

const (
	// EventMessage indicates a new request is available via Recv.
	EventMessage EventKind = iota
	// EventInterrupt indicates a hardware interrupt the adapter should
	// service via CharAdapter.HandleInterrupt.
	EventInterrupt
	// EventTimer indicates the poll timeout elapsed with nothing else
	// to report.
	EventTimer
	// EventClosed indicates the port has been closed and no further
	// events will arrive.
	EventClosed
)

// Event is a single item delivered on a Port's event channel.
type Event struct {
	Kind EventKind
	// InterruptMask carries the adapter's raw interrupt-status bits
	// when Kind == EventInterrupt.
	InterruptMask uint32
}

// Message is one request read off a Port.
type Message struct {
	Header  Header
	Payload []byte
}

// Header mirrors proto.Header's shape without importing internal/proto,
// avoiding a dependency cycle between the two leaf packages; loop.go
// is responsible for converting between them.
type Header struct {
	Cmd        uint32
	Unit       uint32
	RequestID  uint64
	PayloadLen uint32
}

// Port is the message-passing collaborator every driver task blocks
// on. Implementations must be safe for one reader and one writer
// goroutine to use concurrently (Recv from one, Reply from another),
// matching the source kernel's message-port semantics.
type Port interface {
	// Events returns a channel the event loop selects on alongside
	// interrupts and timers. Closed when the port is closed.
	Events() <-chan Event

	// Recv returns the next queued message without blocking; ok is
	// false if none is queued. Callers wait on Events() for
	// EventMessage before calling Recv.
	Recv() (Message, bool)

	// Reply sends errno and payload back to the peer that sent
	// requestID.
	Reply(ctx context.Context, requestID uint64, errno int32, payload []byte) error

	// Close releases the underlying transport. Safe to call more than
	// once.
	Close() error
}
