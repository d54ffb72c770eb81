package driver

import "github.com/coriolis-os/drivers/internal/constants"

// Re-exported defaults, so callers configuring a Device never need to
// reach into internal/constants directly.
const (
	DefaultBaud           = constants.DefaultBaud
	DefaultBlockSize      = constants.DefaultBlockSize
	RingCapacity          = constants.RingCapacity
	MaxPartitions         = constants.MaxPartitions
	HostBufferSize        = constants.HostBufferSize
	PendingRequestBacklog = constants.PendingRequestBacklog
)
