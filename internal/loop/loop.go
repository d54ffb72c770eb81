// Package loop implements the driver event loop (spec.md §4.2's
// "secretary"): the single goroutine that waits on a port's events,
// services interrupts, dispatches requests to handlers by command
// code, and drains the cooperative task scheduler once per iteration.
//
// Grounded on the teacher's internal/ctrl.Controller /
// internal/queue.Runner ioLoop/processRequests pair: a blocking wait
// for work, a per-command dispatch, and a shutdown flag checked once
// per pass. Where the teacher's ioLoop is permanently one-goroutine-
// per-hardware-queue, Loop generalizes that to "one goroutine per
// Port", which both cmd/ttyd and cmd/sdblockd run under.
package loop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/interfaces"
	"github.com/coriolis-os/drivers/internal/logging"
	"github.com/coriolis-os/drivers/internal/obs"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/task"
)

// Handler services one request and returns the errno/payload to reply
// with. Handlers run on the loop's own goroutine before the scheduler
// is drained, so a Handler that needs to block belongs in a task
// spawned via Scheduler, not in the handler body itself: a Handler
// must always return promptly (spec.md §4.2's "stash state, wake
// task, return immediately" contract), either with its result or with
// Deferred.
type Handler func(ctx context.Context, msg hostkernel.Message) (errno int32, payload []byte)

// Deferred is the sentinel errno a Handler returns to tell dispatch
// "I've registered this request for a task to service; do not reply
// on my behalf, the task will call Port.Reply directly once it has a
// result." Returning it with a blocking wait inside the handler body
// instead would stall the loop's single goroutine, preventing it from
// ever dispatching a subsequent CmdAbort for the very request the
// handler is blocked on.
const Deferred int32 = 1<<31 - 1

// Loop is the event-loop driver shared by cmd/ttyd and cmd/sdblockd.
type Loop struct {
	port     hostkernel.Port
	sched    *task.Scheduler
	adapter  interfaces.CharAdapter // nil for drivers with no character device (block driver)
	handlers map[proto.Cmd]Handler
	log      *logging.Logger
	observer interfaces.Observer

	pollTimeout time.Duration
	shutdown    atomic.Bool
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithAdapter attaches a board CharAdapter whose interrupts the loop
// services each iteration. Omit for drivers with no character device.
func WithAdapter(a interfaces.CharAdapter) Option {
	return func(l *Loop) { l.adapter = a }
}

// WithLogger overrides the default logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Loop) { l.log = lg }
}

// WithObserver attaches a metrics Observer; defaults to obs.NoOpObserver{}.
func WithObserver(o interfaces.Observer) Option {
	return func(l *Loop) { l.observer = o }
}

// WithPollTimeout overrides how long Run waits for a Port event before
// looping back to check the shutdown flag. spec.md §4.2 calls for
// 200ms on TTY drivers and an effectively unbounded wait on the block
// driver; pass 0 for "block until an event arrives".
func WithPollTimeout(d time.Duration) Option {
	return func(l *Loop) { l.pollTimeout = d }
}

// New builds a Loop over port and sched, dispatching through handlers.
func New(port hostkernel.Port, sched *task.Scheduler, handlers map[proto.Cmd]Handler, opts ...Option) *Loop {
	l := &Loop{
		port:        port,
		sched:       sched,
		handlers:    handlers,
		log:         logging.Default(),
		observer:    obs.NoOpObserver{},
		pollTimeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Shutdown requests that Run return after its current iteration
// completes. Safe to call from any goroutine, including a signal
// handler (the Go analogue of the teacher's StopAndDelete cancel
// plumbing).
func (l *Loop) Shutdown() {
	l.shutdown.Store(true)
}

// Run executes the event loop until Shutdown is called or ctx is
// cancelled, implementing spec.md §4.2's six-step iteration.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.shutdown.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Step 1: wait on events with the configured timeout.
		ev, ok := l.waitEvent(ctx)
		if ok {
			switch ev.Kind {
			case hostkernel.EventInterrupt:
				// Step 2: dispatch the interrupt to the adapter.
				if l.adapter != nil {
					l.adapter.HandleInterrupt(ev.InterruptMask)
				}
			case hostkernel.EventClosed:
				return nil
			case hostkernel.EventMessage, hostkernel.EventTimer:
				// handled by the drain loop below.
			}
		}

		// Step 3: drain the port, dispatching every queued message.
		l.drainMessages(ctx)

		// Step 4: re-check the shutdown flag before running tasks.
		if l.shutdown.Load() {
			return nil
		}

		// Step 5: give every cooperative task its turn.
		l.sched.Drain()

		// Step 6: re-arm the interrupt strictly after the drain, per
		// the REDESIGN FLAG resolving the teacher's ambiguous
		// mask/unmask ordering.
		if l.adapter != nil {
			l.adapter.UnmaskInterrupt()
		}
	}
}

func (l *Loop) waitEvent(ctx context.Context) (hostkernel.Event, bool) {
	events := l.port.Events()
	if l.pollTimeout <= 0 {
		select {
		case ev, ok := <-events:
			return ev, ok
		case <-ctx.Done():
			return hostkernel.Event{}, false
		}
	}
	timer := time.NewTimer(l.pollTimeout)
	defer timer.Stop()
	select {
	case ev, ok := <-events:
		return ev, ok
	case <-timer.C:
		return hostkernel.Event{Kind: hostkernel.EventTimer}, true
	case <-ctx.Done():
		return hostkernel.Event{}, false
	}
}

func (l *Loop) drainMessages(ctx context.Context) {
	for {
		msg, ok := l.port.Recv()
		if !ok {
			return
		}
		l.dispatch(ctx, msg)
	}
}

// errnoNotSupported is the wire errno for proto.ErrNotSupported,
// POSIX's ENOTSUP, returned for any command code with no registered
// Handler (spec.md §4.2 step 3).
const errnoNotSupported = -38

func (l *Loop) dispatch(ctx context.Context, msg hostkernel.Message) {
	cmd := proto.Cmd(msg.Header.Cmd)
	handler, ok := l.handlers[cmd]
	if !ok {
		l.log.Debugf("loop: %s: %v", cmd, proto.ErrNotSupported)
		if err := l.port.Reply(ctx, msg.Header.RequestID, errnoNotSupported, nil); err != nil {
			l.log.Errorf("loop: reply for unsupported command %s failed: %v", cmd, err)
		}
		return
	}

	start := time.Now()
	errno, payload := handler(ctx, msg)
	if errno == Deferred {
		// The handler has stashed this request for a task to finish;
		// that task owns the reply (and, since it runs outside this
		// dispatch call, the latency/success observation too).
		return
	}
	l.observeLatency(cmd, time.Since(start), errno == 0, len(payload))

	if err := l.port.Reply(ctx, msg.Header.RequestID, errno, payload); err != nil {
		l.log.Errorf("loop: reply for %s request %d failed: %v", cmd, msg.Header.RequestID, err)
	}
}

func (l *Loop) observeLatency(cmd proto.Cmd, elapsed time.Duration, success bool, n int) {
	ns := uint64(elapsed.Nanoseconds())
	switch cmd {
	case proto.CmdRead, proto.CmdBlockRead:
		l.observer.ObserveRead(uint64(n), ns, success)
	case proto.CmdWrite, proto.CmdBlockWrite:
		l.observer.ObserveWrite(uint64(n), ns, success)
	case proto.CmdBlockDiscard:
		l.observer.ObserveDiscard(uint64(n), ns, success)
	case proto.CmdBlockFlush:
		l.observer.ObserveFlush(ns, success)
	case proto.CmdTCGetAttr, proto.CmdTCSetAttr, proto.CmdIsatty:
		l.observer.ObserveIOCtl(ns, success)
	case proto.CmdAbort:
		l.observer.ObserveAbort()
	}
}
