// Package constants holds the tunable defaults and timing budgets shared
// by every driver process in this repository.
package constants

import "time"

// Default device configuration.
const (
	// DefaultBaud is the default TTY line speed.
	DefaultBaud = 115200

	// DefaultBlockSize is the default SD block size in bytes.
	DefaultBlockSize = 512

	// RingCapacity is the fixed capacity of each TTY TX/RX ring (spec.md §3).
	RingCapacity = 4096

	// MaxPartitions is the maximum number of primary partitions the MBR
	// layer will publish mounts for (spec.md §3, "up to four").
	MaxPartitions = 4

	// HostBufferSize is the size of the single aligned SD host-controller
	// cache buffer (spec.md §3).
	HostBufferSize = 4096

	// PendingRequestBacklog bounds the port backlog to "one read, one
	// write, one control command" in flight (spec.md §5).
	PendingRequestBacklog = 3
)

// Event-loop timing (spec.md §4.2, §5).
const (
	// TTYPollInterval is the event loop's idle timeout for TTY drivers.
	TTYPollInterval = 200 * time.Millisecond

	// BlockPollInterval is the unbounded wait (0) for loop.WithPollTimeout.
	// cmd/sdblockd does not use it: it builds its Devices through
	// driver.Options, where a PollTimeout of 0 selects the loop's 200ms
	// default, so the block driver's loop also wakes every 200ms.
	BlockPollInterval = 0

	// UARTPollInterval bounds how often cmd/ttyd's uart_rx/uart_tx
	// tasks re-check CharAdapter.ReadReady/WriteReady when idle, since
	// this repo has no real interrupt delivery path into a driver
	// process (spec.md §1, §6.1 put kevent/EVFILT_IRQ out of scope).
	UARTPollInterval = 2 * time.Millisecond
)

// SD host-controller timing budgets as time.Duration values, plus the
// identify/normal clock rates in Hz and the data-command retry count
// (spec.md §4.5.1, §4.5.2).
const (
	HostResetTimeout        = 1 * time.Second
	PowerStabilizeDelay     = 5 * time.Millisecond
	CardInsertedTimeout     = 500 * time.Millisecond
	ClockStabilizeTimeout   = 1 * time.Second
	IdentClockHz            = 400_000
	NormalClockHz           = 25_000_000
	PostIdentClockSettle    = 20 * time.Millisecond
	ClockSwitchSettle       = 2 * time.Millisecond
	ACMD41RetryInterval     = 500 * time.Millisecond
	GoIdleTimeout           = 1_500_000 * time.Microsecond
	DefaultCommandTimeout   = 500_000 * time.Microsecond
	AppCmdInquiryTimeout    = 10_000 * time.Microsecond
	MaxCommandRetries       = 3
)
