// +build !windows

// Package procwatch answers one question: is this PID still alive? The
// authority uses it to evict clients whose process has exited without
// sending an UNREGISTER, the same signal-0 liveness probe the original
// authority ran before trusting a registry slot.
//
// It is intended for internal use by timeserver only.
package procwatch

import "syscall"

// Alive reports whether pid names a live process, using the "send signal 0"
// idiom: the kernel performs its permission and existence checks without
// actually delivering a signal. A pid of 0 or below is always reported
// alive: the authority records 0 to mean "no PID message received yet", and
// such a client is never evicted.
func Alive(pid int64) bool {
	if pid <= 0 {
		return true
	}
	err := syscall.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}
