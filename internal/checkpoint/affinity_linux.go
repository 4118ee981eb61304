//go:build linux

package checkpoint

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinWorker locks the calling goroutine to its OS thread and binds that
// thread to the slot-th CPU the process may run on. The returned func
// restores the previous mask and unlocks the thread.
func pinWorker(slot int) (func(), error) {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return func() {}, fmt.Errorf("sched_getaffinity: %w", err)
	}
	n := prev.Count()
	if n == 0 {
		runtime.UnlockOSThread()
		return func() {}, fmt.Errorf("empty cpu set")
	}

	want := slot % n
	cpu := -1
	for i, seen := 0, 0; i < len(prev)*64; i++ {
		if !prev.IsSet(i) {
			continue
		}
		if seen == want {
			cpu = i
			break
		}
		seen++
	}

	var one unix.CPUSet
	one.Set(cpu)
	if err := unix.SchedSetaffinity(0, &one); err != nil {
		runtime.UnlockOSThread()
		return func() {}, fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}
