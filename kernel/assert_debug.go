//go:build !distortos_release

package kernel

import "runtime/debug"

func captureStack() []byte { return debug.Stack() }

// assertLocked panics immediately (bypassing the fatal hook, since
// this indicates a bug in this package rather than caller misuse) if
// mu is not currently held. Compiled out under distortos_release.
func (s *Scheduler) assertLocked() {
	if s.mu.TryLock() {
		s.mu.Unlock()
		panic("kernel: scheduler method called without holding the critical section")
	}
}

