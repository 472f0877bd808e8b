// consumer.go
//
// Drains a Ring on its own OS thread, optionally pinned to a core away from
// the leak thread.  Spins with cpuRelax while the ring is empty and yields
// the processor after spinBudget misses, since the producer only pushes
// once per offset.  Exits once *stop is set and the ring is empty, and
// closes done exactly once.

package ring

import (
	"runtime"
	"sync/atomic"

	"specleak/debug"
	"specleak/hw"
)

const spinBudget = 256 // polls before yielding

// Consume drains r into fn until *stop is set. core < 0 leaves the thread unpinned.
func Consume(core int, r *Ring, stop *uint32, fn func(*Record), done chan<- struct{}) {
	go func() {
		runtime.LockOSThread()
		if err := hw.Pin(core); err != nil {
			debug.DropError("ring consumer pin", err)
		}
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		var rec Record
		miss := 0
		for {
			if r.Pop(&rec) {
				fn(&rec)
				miss = 0
				continue
			}
			if atomic.LoadUint32(stop) != 0 {
				// Records published between the failed Pop and the stop load.
				for r.Pop(&rec) {
					fn(&rec)
				}
				return
			}
			if miss++; miss >= spinBudget {
				miss = 0
				runtime.Gosched()
			}
			cpuRelax()
		}
	}()
}
