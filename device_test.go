package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/proto"
)

func TestNewDeviceServesRegisteredHandler(t *testing.T) {
	port := NewMockPort()
	handled := make(chan struct{}, 1)

	handlers := map[Cmd]Handler{
		proto.CmdRead: func(ctx context.Context, msg hostkernel.Message) (int32, []byte) {
			handled <- struct{}{}
			return 0, []byte("ok")
		},
	}
	opts := DefaultOptions()
	opts.PollTimeout = 10 * time.Millisecond
	dev := NewDevice(port, handlers, nil, opts)

	assert.Equal(t, DeviceStateCreated, dev.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dev.Serve(ctx)
		close(done)
	}()

	// Give Serve a moment to flip to running before exercising it.
	require.Eventually(t, func() bool { return dev.State() == DeviceStateRunning }, time.Second, time.Millisecond)

	replyCh := port.Inject(hostkernel.Message{Header: hostkernel.Header{Cmd: uint32(proto.CmdRead), RequestID: 1}})
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	select {
	case result := <-replyCh:
		assert.Equal(t, int32(0), result.Errno)
		assert.Equal(t, []byte("ok"), result.Payload)
	case <-time.After(time.Second):
		t.Fatal("reply was never sent")
	}

	snap := dev.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(len("ok")), snap.ReadBytes)

	dev.Shutdown()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	assert.Equal(t, DeviceStateStopped, dev.State())
}

func TestMockBackendReadWriteRoundTrip(t *testing.T) {
	b := NewMockBackend(16)
	n, err := b.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = b.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, b.Close())
	assert.True(t, b.IsClosed())
	_, err = b.ReadAt(buf, 0)
	assert.Error(t, err)
}
