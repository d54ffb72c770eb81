//go:build linux

package hostkernel

import (
	"time"

	"github.com/daedaluz/fdev/poll"
)

// waitReadable blocks until fd has data available to read or timeout
// elapses, used as the readiness-polling fallback for platforms where
// SOCK_SEQPACKET readiness doesn't reliably show up through the
// primary accept/read goroutines alone (e.g. a port opened before its
// peer connects). Grounded on Daedaluz/goserial's poll.WaitInput, used
// there to implement Port.Read's read-timeout option.
func waitReadable(fd int, timeout time.Duration) error {
	return poll.WaitInput(fd, timeout)
}
