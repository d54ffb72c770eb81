package hostkernel

import (
	"context"
	"errors"
	"sync"
)

// MemPort is an in-process Port backed by channels, used by the tests
// of internal/loop, internal/hostkernel and cmd/ttyd in place of a real
// socket. Grounded on the teacher's NewStubRunner/stubLoop
// pattern of swapping a real transport for an in-memory one behind the
// same interface.
type MemPort struct {
	mu       sync.Mutex
	events   chan Event
	inbox    []Message
	replies  map[uint64]chan ReplyResult
	closed   bool
}

// ReplyResult is what Inject's returned channel delivers once the
// driver under test calls Reply for the injected message.
type ReplyResult struct {
	Errno   int32
	Payload []byte
}

// NewMemPort creates an empty in-memory port.
func NewMemPort() *MemPort {
	return &MemPort{
		events:  make(chan Event, 16),
		replies: make(map[uint64]chan ReplyResult),
	}
}

// Events implements Port.
func (p *MemPort) Events() <-chan Event { return p.events }

// Recv implements Port.
func (p *MemPort) Recv() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inbox) == 0 {
		return Message{}, false
	}
	m := p.inbox[0]
	p.inbox = p.inbox[1:]
	return m, true
}

// Reply implements Port.
func (p *MemPort) Reply(ctx context.Context, requestID uint64, errno int32, payload []byte) error {
	p.mu.Lock()
	ch, ok := p.replies[requestID]
	if ok {
		delete(p.replies, requestID)
	}
	p.mu.Unlock()
	if !ok {
		return errors.New("hostkernel: reply to unknown request id")
	}
	select {
	case ch <- ReplyResult{Errno: errno, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Port.
func (p *MemPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

// Inject delivers a request to the port as if it arrived from a
// peer, and returns a channel that receives the corresponding Reply
// call's result. Test-only API, the Go analogue of driving the
// teacher's stub ring directly instead of through a real device node.
func (p *MemPort) Inject(msg Message) <-chan ReplyResult {
	ch := make(chan ReplyResult, 1)
	p.mu.Lock()
	p.inbox = append(p.inbox, msg)
	p.replies[msg.Header.RequestID] = ch
	p.mu.Unlock()

	select {
	case p.events <- Event{Kind: EventMessage}:
	default:
	}
	return ch
}
