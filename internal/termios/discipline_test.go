package termios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-os/drivers/internal/ringbuf"
)

func newTestDiscipline(t Termios) (*LineDiscipline, *ringbuf.Ring, *ringbuf.Ring, *[]Signal) {
	rx := ringbuf.New(64)
	tx := ringbuf.New(64)
	var sigs []Signal
	ld := New(t, rx, tx, func(s Signal) { sigs = append(sigs, s) }, nil, nil, nil)
	return ld, rx, tx, &sigs
}

func input(ld *LineDiscipline, s string) {
	for _, b := range []byte(s) {
		ld.Input(context.Background(), b)
	}
}

func drain(r *ringbuf.Ring) string {
	buf := make([]byte, r.Len())
	r.Dequeue(buf)
	return string(buf)
}

func TestCanonicalEchoAndLineAssembly(t *testing.T) {
	ld, rx, tx, _ := newTestDiscipline(Default())
	input(ld, "hi\n")
	assert.Equal(t, 1, ld.LineCount())
	assert.Equal(t, "hi\n", drain(rx))
	assert.Equal(t, "hi\r\n", drain(tx))
}

func TestEraseRemovesLastByte(t *testing.T) {
	ld, rx, _, _ := newTestDiscipline(Default())
	input(ld, "hip")
	ld.Input(context.Background(), 0x7f) // ERASE
	ld.Input(context.Background(), '\n')
	assert.Equal(t, "hi\n", drain(rx))
}

func TestEraseAtLineStartIsNoop(t *testing.T) {
	ld, rx, _, _ := newTestDiscipline(Default())
	ld.Input(context.Background(), 0x7f)
	input(ld, "a\n")
	assert.Equal(t, "a\n", drain(rx))
}

func TestKillErasesEntireUnterminatedLine(t *testing.T) {
	ld, rx, _, _ := newTestDiscipline(Default())
	input(ld, "garbage")
	ld.Input(context.Background(), 0x15) // KILL
	input(ld, "ok\n")
	assert.Equal(t, "ok\n", drain(rx))
}

func TestIntrRaisesSignalAndIsNotEnqueued(t *testing.T) {
	ld, rx, tx, sigs := newTestDiscipline(Default())
	ld.Input(context.Background(), 'a')
	ld.Input(context.Background(), 0x03) // INTR
	ld.Input(context.Background(), '\n')
	assert.Equal(t, []Signal{SigIntr}, *sigs)
	assert.Equal(t, "a\n", drain(rx))
	// spec.md §8 scenario 3: ^C echoes to TX even though Default()
	// never sets ECHOCTL.
	assert.Contains(t, drain(tx), "^C")
}

func TestQuitEchoesCaretBackslashRegardlessOfEchoctl(t *testing.T) {
	ld, _, tx, sigs := newTestDiscipline(Default())
	ld.Input(context.Background(), 0x1c) // QUIT
	assert.Equal(t, []Signal{SigQuit}, *sigs)
	assert.Contains(t, drain(tx), "^\\")
}

func TestRawModeBypassesCanonicalEditing(t *testing.T) {
	tios := Default()
	tios.Lflag &^= ICANON
	ld, rx, _, _ := newTestDiscipline(tios)
	ld.Input(context.Background(), 0x7f) // would be ERASE in canonical mode; raw mode treats it as data
	assert.Equal(t, 1, rx.Len())
	assert.Equal(t, byte(0x7f), drain(rx)[0])
}

func TestICRNLMapsCRToNL(t *testing.T) {
	ld, rx, _, _ := newTestDiscipline(Default())
	ld.Input(context.Background(), '\r')
	assert.Equal(t, 1, ld.LineCount())
	assert.Equal(t, "\n", drain(rx))
}

func TestIgncrDropsCR(t *testing.T) {
	tios := Default()
	tios.Iflag |= IGNCR
	ld, rx, _, _ := newTestDiscipline(tios)
	ld.Input(context.Background(), '\r')
	assert.Equal(t, 0, rx.Len())
}

func TestEOFFlushesPendingLineWithoutNewline(t *testing.T) {
	ld, rx, _, _ := newTestDiscipline(Default())
	input(ld, "partial")
	ld.Input(context.Background(), 0x04) // EOF
	require.Equal(t, 1, ld.LineCount())
	assert.Equal(t, "partial", drain(rx))
}

func TestEOFOnEmptyLineIsNoop(t *testing.T) {
	ld, _, _, _ := newTestDiscipline(Default())
	ld.Input(context.Background(), 0x04)
	assert.Equal(t, 0, ld.LineCount())
}

func TestVEOLZeroStillTerminatesOnLiteralNewline(t *testing.T) {
	// A client that sets Cc[VEOL] to 0 (e.g. a partially populated
	// termios coming off the wire) must not lose canonical-mode line
	// termination: a literal '\n' always terminates.
	tios := Default()
	tios.Cc[VEOL] = 0
	tios.Cc[VEOL2] = 0
	ld, rx, _, _ := newTestDiscipline(tios)
	input(ld, "hi\n")
	assert.Equal(t, 1, ld.LineCount())
	assert.Equal(t, "hi\n", drain(rx))
}

func TestEchoSleepsOnFullTXInsteadOfDropping(t *testing.T) {
	rx := ringbuf.New(64)
	tx := ringbuf.New(1)
	require.Equal(t, 1, tx.Enqueue([]byte{'x'})) // fill the only slot

	waits := 0
	waitTXSpace := func(ctx context.Context) bool {
		waits++
		var discard [1]byte
		tx.Dequeue(discard[:]) // simulate uartTXTask draining a byte
		return true
	}
	ld := New(Default(), rx, tx, nil, nil, nil, waitTXSpace)

	ld.Input(context.Background(), 'a')

	assert.Equal(t, 1, waits)
	assert.Equal(t, "a", drain(tx))
}

func TestEchoGivesUpWhenWaitTXSpaceReturnsFalse(t *testing.T) {
	rx := ringbuf.New(64)
	tx := ringbuf.New(1)
	require.Equal(t, 1, tx.Enqueue([]byte{'x'}))

	ld := New(Default(), rx, tx, nil, nil, nil, func(ctx context.Context) bool { return false })
	ld.Input(context.Background(), 'a') // must not hang

	assert.Equal(t, "x", drain(tx))
}
