package main

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	driver "github.com/coriolis-os/drivers"
	"github.com/coriolis-os/drivers/internal/adapter/rpi4"
	"github.com/coriolis-os/drivers/internal/constants"
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/logging"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/ringbuf"
	"github.com/coriolis-os/drivers/internal/task"
	"github.com/coriolis-os/drivers/internal/termios"
)

// sleepOrDone waits for d or ctx cancellation, reporting which.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// POSIX errno values this driver's handlers reply with, negated per
// the wire convention (spec.md §7).
const (
	errEINTR   = -4
	errEBUSY   = -16
	errEINVAL  = -22
	errENOTSUP = -38
)

// ttyState is the shared state the four tasks and the command
// handlers operate on: the RX/TX rings, the line discipline sitting
// between them, and the single pending read and pending write slots
// original_source/aux/main.c's read_pending/write_pending globals
// occupy ("only 1 reader and only 1 writer... at a time").
//
// handleRead/handleWrite never block: they stash the request and
// return loop.Deferred immediately (spec.md §4.2's "stash state, wake
// task, return" contract), so the event loop's single goroutine stays
// free to dispatch a subsequent CmdAbort for the very request it just
// queued. readerTask/writerTask reply directly through port once they
// have a result; handleAbort replies directly too when it wins the
// race to cancel a pending request.
type ttyState struct {
	uart *rpi4.PL011
	port hostkernel.Port

	// mu guards the line discipline (including its embedded Termios)
	// and the RX/TX rings, all of which uartRXTask, uartTXTask,
	// readerTask and writerTask touch from their own goroutines.
	mu sync.Mutex
	ld *termios.LineDiscipline
	rx *ringbuf.Ring
	tx *ringbuf.Ring

	readCmdRendez  *task.Rendezvous
	writeCmdRendez *task.Rendezvous
	rxDataRendez   *task.Rendezvous
	txFreeRendez   *task.Rendezvous
	txRendez       *task.Rendezvous

	// readMu/writeMu guard the pending-request slots below, separately
	// from mu since handleAbort must be able to cancel a pending
	// request without contending with the data path.
	readMu      sync.Mutex
	readPending bool
	readReqID   uint64
	readReqLen  int

	writeMu      sync.Mutex
	writePending bool
	writeReqID   uint64
	writeData    []byte
}

func newTTYState(uart *rpi4.PL011, port hostkernel.Port) *ttyState {
	st := &ttyState{
		uart:           uart,
		port:           port,
		rx:             ringbuf.New(constants.RingCapacity),
		tx:             ringbuf.New(constants.RingCapacity),
		readCmdRendez:  task.NewRendezvous("read_cmd"),
		writeCmdRendez: task.NewRendezvous("write_cmd"),
		rxDataRendez:   task.NewRendezvous("rx_data"),
		txFreeRendez:   task.NewRendezvous("tx_free"),
		txRendez:       task.NewRendezvous("tx"),
	}
	onSignal := func(sig termios.Signal) {
		// No job-control process group exists in this driver
		// (spec.md Non-goals); logging is the full extent of signal
		// handling original_source/aux/main.c's line_discipline never
		// implemented either.
		logging.Default().Infof("ttyd: control character raised %s", sig)
	}
	// waitTXSpace releases mu while parking on txFreeRendez so
	// uartTXTask can re-acquire mu, drain a byte, and wake this
	// waiter; it re-acquires mu before returning to the line
	// discipline, which always calls echoRaw with mu held.
	waitTXSpace := func(ctx context.Context) bool {
		st.mu.Unlock()
		err := st.txFreeRendez.Sleep(ctx)
		st.mu.Lock()
		return err == nil
	}
	st.ld = termios.New(termios.Default(), st.rx, st.tx, onSignal,
		func() { st.rxDataRendez.WakeupAll() },
		func() { st.txRendez.WakeupAll() },
		waitTXSpace,
	)
	return st
}

// handleRead implements CmdRead: it registers the request and wakes
// readerTask, then returns immediately — the Go rendezvous analogue
// of cmd_read's taskwakeup(&read_cmd_rendez), minus the blocking wait
// the original driver's single-threaded event loop didn't need and
// this driver's deadlock-prone first draft wrongly added back.
// Header.PayloadLen carries the requested byte count; CmdRead carries
// no payload of its own.
func (st *ttyState) handleRead(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	if msg.Header.PayloadLen == 0 {
		return 0, nil
	}

	st.readMu.Lock()
	if st.readPending {
		st.readMu.Unlock()
		return errEBUSY, nil
	}
	st.readReqID = msg.Header.RequestID
	st.readReqLen = int(msg.Header.PayloadLen)
	st.readPending = true
	st.readMu.Unlock()

	st.readCmdRendez.WakeupAll()
	return driver.Deferred, nil
}

// handleWrite implements CmdWrite: msg.Payload is the data to write,
// already fully delivered by the Port (unlike the source driver's
// two-phase readmsg, the Port hands the whole request over at once).
func (st *ttyState) handleWrite(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	if len(msg.Payload) == 0 {
		return 0, encodeCount(0)
	}

	st.writeMu.Lock()
	if st.writePending {
		st.writeMu.Unlock()
		return errEBUSY, nil
	}
	st.writeReqID = msg.Header.RequestID
	st.writeData = msg.Payload
	st.writePending = true
	st.writeMu.Unlock()

	st.writeCmdRendez.WakeupAll()
	return driver.Deferred, nil
}

// handleIsatty implements CmdIsatty: always true, this driver only
// ever publishes character-device mounts (cmd_isatty's replymsg(...,
// 1, ...)).
func (st *ttyState) handleIsatty(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	return 1, nil
}

// handleTCGetAttr implements CmdTCGetAttr, marshaling the live
// Termios the same layout cmd_tcgetattr replies with.
func (st *ttyState) handleTCGetAttr(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	st.mu.Lock()
	t := st.ld.T
	st.mu.Unlock()

	payload, err := proto.Marshal(&t)
	if err != nil {
		return errEINVAL, nil
	}
	return 0, payload
}

// handleTCSetAttr implements CmdTCSetAttr. Per cmd_tcsetattr's own
// TODO, no buffers are flushed or stream mode otherwise adjusted on a
// settings change beyond swapping the Termios itself.
func (st *ttyState) handleTCSetAttr(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	var t termios.Termios
	if err := proto.Unmarshal(msg.Payload, &t); err != nil {
		return errEINVAL, nil
	}
	st.mu.Lock()
	st.ld.T = t
	st.mu.Unlock()
	return 0, nil
}

// handleAbort implements CmdAbort, unblocking whichever read or write
// is currently pending with EINTR, replying directly to that
// request's own RequestID from this handler — which runs synchronously
// on the loop's goroutine — so the abort resolves within the same
// event-loop iteration it arrived in (spec.md §8). Safe against a race
// with the owning task completing first: Port.Reply only ever honors
// the first caller for a given RequestID, and the pending flag this
// handler clears under readMu/writeMu stops the task from trying to
// reply a second time for a request already resolved here.
func (st *ttyState) handleAbort(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	st.readMu.Lock()
	if st.readPending {
		reqID := st.readReqID
		st.readPending = false
		st.readMu.Unlock()
		if err := st.port.Reply(ctx, reqID, errEINTR, nil); err != nil {
			logging.Default().Errorf("ttyd: abort reply for read request %d failed: %v", reqID, err)
		}
	} else {
		st.readMu.Unlock()
	}

	st.writeMu.Lock()
	if st.writePending {
		reqID := st.writeReqID
		st.writePending = false
		st.writeMu.Unlock()
		if err := st.port.Reply(ctx, reqID, errEINTR, nil); err != nil {
			logging.Default().Errorf("ttyd: abort reply for write request %d failed: %v", reqID, err)
		}
	} else {
		st.writeMu.Unlock()
	}
	return 0, nil
}

// handleSendMsg implements CmdSendMsg's text subclass (spec.md §6.2);
// GPIO/mailbox subclasses have no backing hardware adapter in this
// driver and report ENOTSUP.
func (st *ttyState) handleSendMsg(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
	if len(msg.Payload) < 4 {
		return errEINVAL, nil
	}
	class := proto.SendMsgClass(binary.LittleEndian.Uint32(msg.Payload[0:4]))
	switch class {
	case proto.SendMsgText:
		logging.Default().Infof("ttyd: sendmsg: %s", string(msg.Payload[4:]))
		return 0, nil
	default:
		return errENOTSUP, nil
	}
}

func encodeCount(n int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

// readerTask is the Go port of original_source/aux/main.c's
// reader_task: wait for a pending read, wait for either a full
// canonical line or any data in raw mode, hand back min(line or
// buffer length, requested) bytes, and reply directly to the
// request's own RequestID via port.Reply — handleRead having already
// returned to the loop long before this data is ready.
func (st *ttyState) readerTask(ctx context.Context, t *task.Task) {
	for {
		for !st.isReadPending() {
			if err := st.readCmdRendez.Sleep(ctx); err != nil {
				return
			}
		}

		st.readMu.Lock()
		reqID := st.readReqID
		requested := st.readReqLen
		st.readMu.Unlock()

		for {
			if !st.readStillPending(reqID) {
				break // handleAbort already replied -EINTR for this request
			}
			st.mu.Lock()
			canonical := st.ld.T.Lflag&termios.ICANON != 0
			ready := (canonical && st.ld.LineCount() > 0) || (!canonical && st.rx.Len() > 0)
			st.mu.Unlock()
			if ready {
				break
			}
			if err := st.rxDataRendez.Sleep(ctx); err != nil {
				return
			}
		}

		if !st.readStillPending(reqID) {
			continue
		}

		st.mu.Lock()
		canonical := st.ld.T.Lflag&termios.ICANON != 0
		var data []byte
		if canonical {
			n := st.rx.Len()
			peek := make([]byte, n)
			st.rx.Peek(peek)
			lineLen := n
			for i, b := range peek {
				if b == '\n' {
					lineLen = i + 1
					break
				}
			}
			remaining := lineLen
			if requested < remaining {
				remaining = requested
			}
			data = make([]byte, remaining)
			got := st.rx.Dequeue(data)
			data = data[:got]
			if got == lineLen {
				st.ld.ConsumeLine()
			}
		} else {
			remaining := st.rx.Len()
			if requested < remaining {
				remaining = requested
			}
			data = make([]byte, remaining)
			got := st.rx.Dequeue(data)
			data = data[:got]
		}
		st.mu.Unlock()

		st.completeRead(ctx, reqID, data)
	}
}

func (st *ttyState) isReadPending() bool {
	st.readMu.Lock()
	defer st.readMu.Unlock()
	return st.readPending
}

// readStillPending reports whether reqID is still the live pending
// read, i.e. neither delivered nor aborted out from under the caller.
func (st *ttyState) readStillPending(reqID uint64) bool {
	st.readMu.Lock()
	defer st.readMu.Unlock()
	return st.readPending && st.readReqID == reqID
}

// completeRead replies to reqID only if it is still the live pending
// read, guarding against a concurrent handleAbort having already
// replied -EINTR for it.
func (st *ttyState) completeRead(ctx context.Context, reqID uint64, data []byte) {
	st.readMu.Lock()
	if !st.readPending || st.readReqID != reqID {
		st.readMu.Unlock()
		return
	}
	st.readPending = false
	st.readMu.Unlock()
	if err := st.port.Reply(ctx, reqID, 0, data); err != nil {
		logging.Default().Errorf("ttyd: reply for read request %d failed: %v", reqID, err)
	}
}

// writerTask is the Go port of writer_task: drain the pending write's
// payload into the TX ring in free-space-sized chunks, waking
// uart_tx_task as data becomes available, then replying directly to
// the write's own RequestID.
func (st *ttyState) writerTask(ctx context.Context, t *task.Task) {
	for {
		for !st.isWritePending() {
			if err := st.writeCmdRendez.Sleep(ctx); err != nil {
				return
			}
		}

		st.writeMu.Lock()
		reqID := st.writeReqID
		data := st.writeData
		st.writeMu.Unlock()

		written := 0
		for written < len(data) {
			if !st.writeStillPending(reqID) {
				break // handleAbort already replied -EINTR for this request
			}
			st.mu.Lock()
			free := st.tx.Free()
			st.mu.Unlock()
			for free == 0 {
				if err := st.txFreeRendez.Sleep(ctx); err != nil {
					return
				}
				if !st.writeStillPending(reqID) {
					break
				}
				st.mu.Lock()
				free = st.tx.Free()
				st.mu.Unlock()
			}
			if !st.writeStillPending(reqID) {
				break
			}

			st.mu.Lock()
			n := st.tx.Enqueue(data[written:])
			st.mu.Unlock()
			if n > 0 {
				written += n
				st.txRendez.WakeupAll()
			}
		}

		st.completeWrite(ctx, reqID, encodeCount(written))
	}
}

func (st *ttyState) isWritePending() bool {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return st.writePending
}

// writeStillPending reports whether reqID is still the live pending
// write.
func (st *ttyState) writeStillPending(reqID uint64) bool {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return st.writePending && st.writeReqID == reqID
}

func (st *ttyState) completeWrite(ctx context.Context, reqID uint64, data []byte) {
	st.writeMu.Lock()
	if !st.writePending || st.writeReqID != reqID {
		st.writeMu.Unlock()
		return
	}
	st.writePending = false
	st.writeMu.Unlock()
	if err := st.port.Reply(ctx, reqID, 0, data); err != nil {
		logging.Default().Errorf("ttyd: reply for write request %d failed: %v", reqID, err)
	}
}

// uartTXTask is the Go port of uart_tx_task: while the adapter is
// ready for another byte and the TX ring holds data, drain it one
// byte at a time. Polls WriteReady at constants.UARTPollInterval
// instead of blocking on a hardware interrupt (see package doc).
func (st *ttyState) uartTXTask(ctx context.Context, t *task.Task) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		st.mu.Lock()
		empty := st.tx.Len() == 0
		st.mu.Unlock()
		if empty {
			if err := st.txRendez.Sleep(ctx); err != nil {
				return
			}
			continue
		}
		if !st.uart.WriteReady() {
			if sleepOrDone(ctx, constants.UARTPollInterval) {
				return
			}
			continue
		}

		var b [1]byte
		st.mu.Lock()
		n := st.tx.Dequeue(b[:])
		freeAfter := st.tx.Free()
		st.mu.Unlock()
		if n == 0 {
			continue
		}
		st.uart.WriteByte(b[0])
		if freeAfter > 0 {
			st.txFreeRendez.WakeupAll()
		}
	}
}

// uartRXTask is the Go port of uart_rx_task: while the adapter has
// data ready, pull bytes through the line discipline one at a time.
func (st *ttyState) uartRXTask(ctx context.Context, t *task.Task) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !st.uart.ReadReady() {
			if sleepOrDone(ctx, constants.UARTPollInterval) {
				return
			}
			continue
		}

		b := st.uart.ReadByte()
		st.mu.Lock()
		st.ld.Input(ctx, b)
		st.mu.Unlock()
	}
}
