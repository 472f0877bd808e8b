//go:build linux

// affinity_linux.go
//
// Pins the calling OS thread to one logical CPU with sched_setaffinity(2).
// The caller must already hold runtime.LockOSThread, otherwise the goroutine
// may migrate to an unpinned thread on its next reschedule.

package hw

import "golang.org/x/sys/unix"

// Pin restricts the current thread to cpu. A negative cpu is a no-op.
func Pin(cpu int) error {
	if cpu < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
