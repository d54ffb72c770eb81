package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-os/drivers/internal/adapter"
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/task"
)

func runLoopUntil(t *testing.T, l *Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	fn()
	l.Shutdown()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after Shutdown")
	}
}

func TestLoopDispatchesRegisteredHandler(t *testing.T) {
	port := hostkernel.NewMemPort()
	sched := task.New()
	handled := make(chan struct{}, 1)

	handlers := map[proto.Cmd]Handler{
		proto.CmdRead: func(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
			handled <- struct{}{}
			return 0, []byte("hello")
		},
	}
	l := New(port, sched, handlers, WithPollTimeout(10*time.Millisecond))

	runLoopUntil(t, l, func() {
		replyCh := port.Inject(hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdRead), RequestID: 1}})
		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("handler was never invoked")
		}
		select {
		case result := <-replyCh:
			assert.Equal(t, int32(0), result.Errno)
			assert.Equal(t, []byte("hello"), result.Payload)
		case <-time.After(time.Second):
			t.Fatal("reply was never sent")
		}
	})
}

func TestLoopSkipsReplyForDeferredHandler(t *testing.T) {
	port := hostkernel.NewMemPort()
	sched := task.New()
	handled := make(chan struct{}, 1)

	handlers := map[proto.Cmd]Handler{
		proto.CmdRead: func(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
			handled <- struct{}{}
			// Simulate a task completing the request later, well after
			// this handler (and dispatch) has returned.
			go func() {
				_ = port.Reply(ctx, msg.Header.RequestID, 0, []byte("deferred"))
			}()
			return Deferred, nil
		},
	}
	l := New(port, sched, handlers, WithPollTimeout(10*time.Millisecond))

	runLoopUntil(t, l, func() {
		replyCh := port.Inject(hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdRead), RequestID: 1}})
		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("handler was never invoked")
		}
		// dispatch must not have already consumed the reply slot by
		// replying on the handler's behalf.
		select {
		case result := <-replyCh:
			assert.Equal(t, int32(0), result.Errno)
			assert.Equal(t, []byte("deferred"), result.Payload)
		case <-time.After(time.Second):
			t.Fatal("deferred reply was never delivered")
		}
	})
}

func TestLoopRepliesNotSupportedForUnknownCommand(t *testing.T) {
	port := hostkernel.NewMemPort()
	sched := task.New()
	l := New(port, sched, map[proto.Cmd]Handler{}, WithPollTimeout(10*time.Millisecond))

	runLoopUntil(t, l, func() {
		replyCh := port.Inject(hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdWrite), RequestID: 7}})
		select {
		case result := <-replyCh:
			assert.Equal(t, int32(errnoNotSupported), result.Errno)
		case <-time.After(time.Second):
			t.Fatal("reply was never sent")
		}
	})
}

func TestLoopDrainsSpawnedTasksEachIteration(t *testing.T) {
	port := hostkernel.NewMemPort()
	sched := task.New()
	l := New(port, sched, map[proto.Cmd]Handler{}, WithPollTimeout(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	taskDone := make(chan struct{})
	sched.Spawn(ctx, "worker", 0, func(ctx context.Context, tk *task.Task) {
		close(taskDone)
	})

	select {
	case <-taskDone:
	case <-time.After(time.Second):
		t.Fatal("spawned task never ran")
	}

	l.Shutdown()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after Shutdown")
	}
}

func TestLoopServicesAdapterInterrupts(t *testing.T) {
	port := hostkernel.NewMemPort()
	sched := task.New()
	lb := adapter.NewLoopback()
	l := New(port, sched, map[proto.Cmd]Handler{}, WithAdapter(lb), WithPollTimeout(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !lb.Masked()
	}, time.Second, 5*time.Millisecond, "adapter interrupt should be unmasked after each drain")

	l.Shutdown()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after Shutdown")
	}
}
