package hostkernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemPortInjectRecvReply(t *testing.T) {
	p := NewMemPort()
	msg := Message{Header: Header{Cmd: 1, RequestID: 42}, Payload: []byte("hi")}
	resultCh := p.Inject(msg)

	select {
	case ev := <-p.Events():
		assert.Equal(t, EventMessage, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	got, ok := p.Recv()
	require.True(t, ok)
	assert.Equal(t, msg, got)

	require.NoError(t, p.Reply(context.Background(), 42, 0, []byte("ok")))

	select {
	case res := <-resultCh:
		assert.Equal(t, int32(0), res.Errno)
		assert.Equal(t, "ok", string(res.Payload))
	case <-time.After(time.Second):
		t.Fatal("no reply result delivered")
	}
}

func TestMemPortRecvEmptyReturnsFalse(t *testing.T) {
	p := NewMemPort()
	_, ok := p.Recv()
	assert.False(t, ok)
}

func TestMemPortReplyUnknownRequestErrors(t *testing.T) {
	p := NewMemPort()
	err := p.Reply(context.Background(), 999, 0, nil)
	assert.Error(t, err)
}

func TestMemPortCloseIsIdempotent(t *testing.T) {
	p := NewMemPort()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
