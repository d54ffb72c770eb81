package driver

import (
	"time"

	"github.com/coriolis-os/drivers/internal/cliflags"
)

// DriverConfig is the parsed command-line surface shared by every
// driver process (spec.md §6.3): mount-node attributes plus, for TTY
// drivers, line settings. It is exactly internal/cliflags.Config under
// this package's own name, the way Options below is this package's
// analogue of the teacher's DeviceParams/Options split between
// storage-shape parameters and runtime collaborators.
type DriverConfig = cliflags.Config

// ParseBlockConfig parses argv for the block driver's flag surface.
func ParseBlockConfig(progName string, argv []string) (DriverConfig, error) {
	return cliflags.ParseBlock(progName, argv)
}

// ParseTTYConfig parses argv for the TTY driver's flag surface.
func ParseTTYConfig(progName string, argv []string) (DriverConfig, error) {
	return cliflags.ParseTTY(progName, argv)
}

// Options contains the runtime collaborators a Device is built with,
// the Go analogue of the teacher's Options passed alongside
// DeviceParams to CreateAndServe: a Logger and Observer, plus the
// event loop's poll timeout and the OS thread CPU affinity the loop
// goroutine pins itself to (spec.md §5). Cancellation is carried by
// the context.Context passed directly to Device.Serve, not stored
// here.
type Options struct {
	// Logger receives driver lifecycle and error messages. Only a
	// *logging.Logger is used; nil or any other Logger implementation
	// falls back to the package default (internal/logging.Default()).
	Logger Logger

	// Observer receives per-request metrics; if nil, the Device feeds a
	// fresh *Metrics instead (see Device.Metrics).
	Observer Observer

	// PollTimeout bounds how long the event loop waits for a Port
	// event before re-checking shutdown (spec.md §4.2); 0 means "use
	// the loop's own default" (200ms).
	PollTimeout time.Duration

	// CPUAffinity pins the event-loop goroutine's OS thread to a
	// specific core (spec.md §5); -1 means "don't pin".
	CPUAffinity int
}

// DefaultOptions returns Options with no collaborators overridden and
// no CPU affinity requested.
func DefaultOptions() Options {
	return Options{CPUAffinity: -1}
}
