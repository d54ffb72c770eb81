//go:build !linux

package hostkernel

import "runtime"

// PinToCPU is a no-op outside Linux: there is no portable
// SchedSetaffinity equivalent this driver needs to target, and the
// only deployment target (spec.md: Raspberry Pi 4) always runs Linux.
func PinToCPU(cpu int) error {
	runtime.LockOSThread()
	return nil
}
