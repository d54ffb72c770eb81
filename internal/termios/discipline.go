package termios

import (
	"context"

	"github.com/coriolis-os/drivers/internal/ringbuf"
)

// Signal identifies which job-control signal a control character
// generated (spec.md §4.4's "signal generation" stage; not present in
// original_source/aux/main.c, which only handled VEOL/VEOL2/VERASE —
// supplemented per SPEC_FULL.md §11).
type Signal int

const (
	SigIntr Signal = iota
	SigQuit
	SigSusp
)

func (s Signal) String() string {
	switch s {
	case SigIntr:
		return "SIGINT"
	case SigQuit:
		return "SIGQUIT"
	case SigSusp:
		return "SIGTSTP"
	default:
		return "SIGUNKNOWN"
	}
}

// LineDiscipline implements the six-stage input pipeline (strip,
// NL/CR mapping, canonical editing, signal generation, echo, enqueue)
// that turns raw bytes off the wire into lines the reader task can
// consume. It owns no goroutine of its own; cmd/ttyd's uart_rx
// task calls Input for every byte the adapter hands it.
//
// Grounded line-by-line on original_source/aux/main.c's
// line_discipline()/echo()/add_to_rx_queue(), extended with KILL and
// signal-character handling the original did not implement.
type LineDiscipline struct {
	T Termios

	rx *ringbuf.Ring
	tx *ringbuf.Ring

	lineCount    int
	unterminated int

	onSignal    func(Signal)
	wakeRX      func()
	wakeTX      func()
	waitTXSpace func(context.Context) bool
}

// New builds a line discipline over the given RX/TX rings. onSignal,
// wakeRX and wakeTX may be nil. waitTXSpace, if non-nil, is called by
// echoRaw when the TX ring is full; it must block until space frees up
// (or ctx ends) and report whether the caller should retry. This is
// the only place within the line discipline where suspension is
// permitted (spec.md §4.4.1) — every other stage only ever enqueues or
// drops.
func New(t Termios, rx, tx *ringbuf.Ring, onSignal func(Signal), wakeRX, wakeTX func(), waitTXSpace func(context.Context) bool) *LineDiscipline {
	return &LineDiscipline{
		T:           t,
		rx:          rx,
		tx:          tx,
		onSignal:    onSignal,
		wakeRX:      wakeRX,
		wakeTX:      wakeTX,
		waitTXSpace: waitTXSpace,
	}
}

// LineCount reports how many complete canonical lines are currently
// queued in RX, mirroring the source driver's line_cnt.
func (ld *LineDiscipline) LineCount() int { return ld.lineCount }

// ConsumeLine decrements the completed-line counter; callers invoke it
// once per line handed back to a reader (spec.md §4.2 cmd_read).
func (ld *LineDiscipline) ConsumeLine() {
	if ld.lineCount > 0 {
		ld.lineCount--
	}
}

// Input feeds one raw byte from the adapter through the line
// discipline. It may block inside echoRaw if local echo is on and the
// TX ring is full; ctx bounds that wait exactly like every other
// task-level suspension in this driver.
func (ld *LineDiscipline) Input(ctx context.Context, b byte) {
	if ld.T.Iflag&ISTRIP != 0 {
		b &= 0x7f
	}

	switch {
	case b == '\r' && ld.T.Iflag&IGNCR != 0:
		return
	case b == '\r' && ld.T.Iflag&ICRNL != 0:
		b = '\n'
	case b == '\n' && ld.T.Iflag&INLCR != 0:
		b = '\r'
	}

	if ld.T.Lflag&ICANON != 0 {
		switch {
		case b == ld.T.Cc[VERASE]:
			ld.erase(ctx)
			return
		case b == ld.T.Cc[VKILL]:
			ld.kill(ctx)
			return
		}
	}

	if ld.T.Lflag&ISIG != 0 {
		if sig, ok := ld.signalFor(b); ok {
			// "^X" for a signal-raising character is echoed
			// unconditionally (spec.md §4.4 step 4, §8 scenario 3),
			// independent of ECHOCTL.
			ld.echoSignalChar(ctx, b)
			if ld.onSignal != nil {
				ld.onSignal(sig)
			}
			return
		}
	}

	if ld.T.Lflag&ICANON != 0 {
		switch b {
		case ld.T.Cc[VEOF]:
			ld.flushLine()
			return
		// A literal '\n' always terminates a line regardless of what
		// VEOL/VEOL2 currently hold; those only add configurable
		// extra terminators, they never replace the hardwired one.
		case '\n', ld.T.Cc[VEOL], ld.T.Cc[VEOL2]:
			if ld.T.Lflag&(ECHO|ECHONL) != 0 {
				ld.echo(ctx, b)
			}
			ld.enqueueRaw('\n')
			ld.unterminated = 0
			ld.lineCount++
			ld.wakeRXIfSet()
			return
		default:
			if ld.T.Lflag&ECHO != 0 {
				ld.echo(ctx, b)
			}
			if ld.rx.Free() > 2 { // leave room for the terminating '\n'
				ld.enqueueRaw(b)
				ld.unterminated++
			}
			return
		}
	}

	// Raw (non-canonical) mode: every byte is data, delivered immediately.
	if ld.T.Lflag&ECHO != 0 {
		ld.echo(ctx, b)
	}
	ld.enqueueRaw(b)
	ld.wakeRXIfSet()
}

// signalFor reports which signal, if any, b is bound to.
func (ld *LineDiscipline) signalFor(b byte) (Signal, bool) {
	switch b {
	case ld.T.Cc[VINTR]:
		return SigIntr, true
	case ld.T.Cc[VQUIT]:
		return SigQuit, true
	case ld.T.Cc[VSUSP]:
		return SigSusp, true
	default:
		return 0, false
	}
}

// erase removes the most recently queued, not-yet-terminated byte,
// echoing a backspace-space-backspace sequence when ECHOE is set.
func (ld *LineDiscipline) erase(ctx context.Context) {
	if ld.unterminated == 0 {
		return
	}
	if _, ok := ld.rx.RemoveLast(); ok {
		ld.unterminated--
		switch {
		case ld.T.Lflag&ECHOE != 0:
			ld.echoRaw(ctx, '\b')
			ld.echoRaw(ctx, ' ')
			ld.echoRaw(ctx, '\b')
		case ld.T.Lflag&ECHO != 0:
			ld.echo(ctx, ld.T.Cc[VERASE])
		}
	}
}

// kill erases every byte queued since the last terminator.
func (ld *LineDiscipline) kill(ctx context.Context) {
	for ld.unterminated > 0 {
		ld.erase(ctx)
	}
	if ld.T.Lflag&ECHOK != 0 && ld.T.Lflag&ECHOE == 0 {
		ld.echoRaw(ctx, '\n')
	}
}

// flushLine terminates the current line at EOF without appending a
// newline byte, POSIX's "EOF at start of line signals end-of-file,
// otherwise terminates the pending line" behavior.
func (ld *LineDiscipline) flushLine() {
	if ld.unterminated == 0 {
		return
	}
	ld.unterminated = 0
	ld.lineCount++
	ld.wakeRXIfSet()
}

func (ld *LineDiscipline) enqueueRaw(b byte) {
	p := [1]byte{b}
	ld.rx.Enqueue(p[:])
}

// echo writes b to TX, applying output-mode post-processing (OPOST |
// ONLCR): a bare '\n' becomes "\r\n" when ONLCR is set, mirroring
// original_source/aux/main.c's echo() plus Daedaluz/goserial's OFlag
// semantics.
func (ld *LineDiscipline) echo(ctx context.Context, b byte) {
	if b == '\n' && ld.T.Oflag&OPOST != 0 && ld.T.Oflag&ONLCR != 0 {
		ld.echoRaw(ctx, '\r')
	}
	ld.echoRaw(ctx, b)
}

// echoSignalChar always renders a signal-raising control character as
// "^X" on TX, independent of ECHOCTL: spec.md §4.4 step 4 requires
// VINTR's "^C" to reach the wire under the default configuration,
// which sets only ISIG and never touches ECHOCTL.
func (ld *LineDiscipline) echoSignalChar(ctx context.Context, b byte) {
	ld.echoRaw(ctx, '^')
	ld.echoRaw(ctx, b|0x40)
}

// echoRaw enqueues a single byte to TX, sleeping on waitTXSpace and
// retrying if the ring is full rather than dropping the byte (spec.md
// §4.4.1): this is the only place in the line discipline allowed to
// suspend.
func (ld *LineDiscipline) echoRaw(ctx context.Context, b byte) {
	if ld.tx == nil {
		return
	}
	p := [1]byte{b}
	for ld.tx.Enqueue(p[:]) == 0 {
		if ld.waitTXSpace == nil || !ld.waitTXSpace(ctx) {
			return
		}
	}
	ld.wakeTXIfSet()
}

func (ld *LineDiscipline) wakeRXIfSet() {
	if ld.wakeRX != nil {
		ld.wakeRX()
	}
}

func (ld *LineDiscipline) wakeTXIfSet() {
	if ld.wakeTX != nil {
		ld.wakeTX()
	}
}
