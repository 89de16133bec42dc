// Package signalset is a thin public wrapper over kernel.Scheduler's
// per-TCB pending-signal bitset: raising a signal against a thread
// blocked in a mutex, semaphore, queue, or sleep wakes that thread at
// once, and its blocking call returns EINTR when it next runs, the same
// way a POSIX signal interrupts a blocking syscall.
package signalset

import "distortos/kernel"

// Set is a 32-signal bitmask; signal numbers run 0-31 and map
// directly onto kernel.TCB.PendingSignals.
type Set uint32

// Mask builds a Set out of individual signal numbers.
func Mask(signals ...uint8) Set {
	var m Set
	for _, sig := range signals {
		m |= 1 << sig
	}
	return m
}

// Generate raises sig against target. If target is currently blocked
// in a primitive that admits signal interruption, or is suspended, it
// is made runnable at once and the blocked call returns EINTR when it
// next runs; the bit also stays in target's pending set until the next
// Accept.
func Generate(scheduler *kernel.Scheduler, target *kernel.TCB, sig uint8) {
	scheduler.GenerateSignal(target, sig)
}

// Accept clears and returns the subset of target's pending signals
// that intersect mask. A zero return means none of mask was pending.
func Accept(scheduler *kernel.Scheduler, target *kernel.TCB, mask Set) Set {
	return Set(scheduler.AcceptSignals(target, uint32(mask)))
}

// Pending reports target's full pending set without clearing it.
func Pending(scheduler *kernel.Scheduler, target *kernel.TCB) Set {
	return Set(scheduler.PendingSignalsOf(target))
}

// Has reports whether sig is set in s.
func (s Set) Has(sig uint8) bool { return s&(1<<sig) != 0 }

// Lowest returns the lowest-numbered signal set in s and reports
// whether s was nonempty.
func (s Set) Lowest() (uint8, bool) {
	if s == 0 {
		return 0, false
	}
	for sig := uint8(0); sig < 32; sig++ {
		if s.Has(sig) {
			return sig, true
		}
	}
	return 0, false
}

// Empty reports whether s has no signals set.
func (s Set) Empty() bool { return s == 0 }
