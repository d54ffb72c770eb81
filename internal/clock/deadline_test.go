package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadlineExpired(t *testing.T) {
	d := NewDeadline(10 * time.Millisecond)
	assert.False(t, d.Expired())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, d.Expired())
}

func TestPollUntilSucceedsBeforeDeadline(t *testing.T) {
	d := NewDeadline(time.Second)
	n := 0
	ok := PollUntil(d, time.Millisecond, func() bool {
		n++
		return n >= 3
	})
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestPollUntilTimesOut(t *testing.T) {
	d := NewDeadline(5 * time.Millisecond)
	ok := PollUntil(d, time.Millisecond, func() bool { return false })
	assert.False(t, ok)
}
