//go:build linux

package hostkernel

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToCPU locks the calling goroutine to its current OS thread and
// pins that thread to cpu. Driver event-loop goroutines call this once
// at startup so the host controller's interrupt latency doesn't suffer
// from the Go scheduler migrating them mid-poll.
//
// Grounded directly on the teacher's ioLoop: runtime.LockOSThread +
// unix.SchedSetaffinity with a round-robin CPU assignment.
func PinToCPU(cpu int) error {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("hostkernel: SchedSetaffinity(cpu=%d): %w", cpu, err)
	}
	return nil
}
