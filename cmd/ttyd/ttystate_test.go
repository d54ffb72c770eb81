package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	driver "github.com/coriolis-os/drivers"
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/task"
)

// TestHandleReadDefersAndReaderTaskRepliesDirectly exercises the fixed
// CmdRead path end to end: handleRead must return immediately with
// driver.Deferred, and readerTask must deliver the eventual result by
// calling Port.Reply itself.
func TestHandleReadDefersAndReaderTaskRepliesDirectly(t *testing.T) {
	port := hostkernel.NewMemPort()
	st := newTTYState(nil, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := task.New()
	sched.Spawn(ctx, "reader", 8192, st.readerTask)

	msg := hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdRead), RequestID: 42, PayloadLen: 8}}
	replyCh := port.Inject(msg)

	errno, payload := st.handleRead(ctx, msg)
	require.Equal(t, driver.Deferred, errno)
	require.Nil(t, payload)

	st.mu.Lock()
	for _, b := range []byte("hi\n") {
		st.ld.Input(ctx, b)
	}
	st.mu.Unlock()
	st.rxDataRendez.WakeupAll()

	select {
	case res := <-replyCh:
		assert.Equal(t, int32(0), res.Errno)
		assert.Equal(t, "hi\n", string(res.Payload))
	case <-time.After(time.Second):
		t.Fatal("readerTask never replied")
	}
}

// TestHandleAbortRepliesEINTRWithinSameCall guards against the
// deadlock a blocking handleRead used to cause: handleAbort must be
// able to resolve a pending read by itself, synchronously, without
// ever touching a result channel a blocked handler call might be
// waiting on, and the reader task must not reply a second time once
// the abort has already claimed the request.
func TestHandleAbortRepliesEINTRWithinSameCall(t *testing.T) {
	port := hostkernel.NewMemPort()
	st := newTTYState(nil, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := task.New()
	sched.Spawn(ctx, "reader", 8192, st.readerTask)

	msg := hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdRead), RequestID: 7, PayloadLen: 8}}
	replyCh := port.Inject(msg)

	errno, _ := st.handleRead(ctx, msg)
	require.Equal(t, driver.Deferred, errno)

	abortErrno, _ := st.handleAbort(ctx, hostkernel.Message{
		Header: hostkernel.Header{Cmd: uint32(proto.CmdAbort), RequestID: 8},
	})
	assert.Equal(t, int32(0), abortErrno)

	select {
	case res := <-replyCh:
		assert.Equal(t, int32(errEINTR), res.Errno)
	case <-time.After(time.Second):
		t.Fatal("handleAbort did not reply -EINTR to the pending read")
	}
	assert.False(t, st.isReadPending())

	// Data arriving after the abort must not produce a second reply,
	// and must not be consumed out from under whatever request comes
	// next.
	st.mu.Lock()
	for _, b := range []byte("late\n") {
		st.ld.Input(ctx, b)
	}
	st.mu.Unlock()
	st.rxDataRendez.WakeupAll()

	select {
	case <-replyCh:
		t.Fatal("readerTask replied a second time for an aborted request")
	case <-time.After(100 * time.Millisecond):
	}

	st.mu.Lock()
	n := st.rx.Len()
	st.mu.Unlock()
	assert.Equal(t, 5, n, "aborted read must leave unconsumed bytes in rx for the next reader")
}
