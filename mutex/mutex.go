// Package mutex implements the three mutex protocols built directly on
// top of kernel.Scheduler's blocking primitives: Normal (no priority
// adjustment), PriorityInheritance (the owner borrows the highest
// waiter's priority for as long as it holds the mutex), and
// PriorityProtect (the owner is raised to a fixed ceiling regardless of
// who, if anyone, is waiting).
package mutex

import (
	"distortos/kernel"
)

// Protocol selects how a Mutex affects its owner's effective priority.
type Protocol uint8

const (
	Normal Protocol = iota
	PriorityInheritance
	PriorityProtect
)

// Type selects whether the owning thread may lock a Mutex again without
// deadlocking itself.
type Type uint8

const (
	NonRecursive Type = iota
	Recursive
)

// Mutex is a lock with an owner, a recursion depth, and a
// priority-ordered wait list of blocked threads.
type Mutex struct {
	scheduler *kernel.Scheduler

	protocol Protocol
	kind     Type
	ceiling  kernel.Priority

	owner   *kernel.TCB
	depth   int
	waiters *kernel.WaitList
}

// New returns an unlocked Mutex. ceiling is only meaningful for
// PriorityProtect; it is ignored by the other two protocols.
func New(scheduler *kernel.Scheduler, protocol Protocol, kind Type, ceiling kernel.Priority) *Mutex {
	return &Mutex{
		scheduler: scheduler,
		protocol:  protocol,
		kind:      kind,
		ceiling:   ceiling,
		waiters:   kernel.NewWaitList(),
	}
}

// InheritedFloor implements kernel.InheritanceSource: the priority
// floor this mutex imposes on its current owner while locked.
func (m *Mutex) InheritedFloor() kernel.Priority {
	switch m.protocol {
	case PriorityProtect:
		return m.ceiling
	case PriorityInheritance:
		if h := kernel.WaitListHead(m.waiters); h != nil {
			return h.Priority()
		}
	}
	return 0
}

// unblockFunctor is the hook kernel.Scheduler.wakeLocked runs, with the
// scheduler lock already held, immediately before the head waiter goes
// back onto the runnable list: ownership changes hands here, and the
// outgoing and incoming owners' effective priorities are recomputed in
// the same critical section as the list surgery.
type unblockFunctor struct {
	m *Mutex
}

func (f *unblockFunctor) Unblocked(tcb *kernel.TCB, reason kernel.UnblockReason) {
	m := f.m
	if reason != kernel.UnblockMutexUnlock {
		// Timed out or signaled off the wait list without ever
		// acquiring the mutex. tcb is already unlinked from m.waiters
		// by the time this runs, so if it was the waiter holding the
		// owner's inherited priority up, the owner's floor must drop
		// back to whatever the new head (if any) still contributes.
		if m.protocol == PriorityInheritance && m.owner != nil {
			m.owner.RecomputeEffectivePriority()
		}
		return
	}
	m.owner = tcb
	m.depth = 1
	if m.protocol == PriorityInheritance || m.protocol == PriorityProtect {
		tcb.AddHeldMutex(m)
	}
}

func (f *unblockFunctor) InterruptibleBySignal() bool { return true }

// Lock blocks until the mutex is acquired. EDEADLK is returned instead
// of blocking if the calling thread already owns a NonRecursive mutex.
func (m *Mutex) Lock() error {
	s := m.scheduler
	s.Lock()
	cur := s.CurrentTCBLocked()
	if m.owner == nil {
		m.owner = cur
		m.depth = 1
		if m.protocol == PriorityInheritance || m.protocol == PriorityProtect {
			cur.AddHeldMutex(m)
		}
		s.Unlock()
		return nil
	}
	if m.owner == cur {
		if m.kind == Recursive {
			m.depth++
			s.Unlock()
			return nil
		}
		s.Unlock()
		return kernel.ErrDeadlock
	}
	s.Unlock()
	return s.BlockWithHook(m.waiters, kernel.StateBlockedOnMutex, &unblockFunctor{m: m}, func() {
		// Runs under the scheduler's critical section, right after cur
		// joins m.waiters: the owner's inherited floor must reflect the
		// new waiter immediately, not only once the mutex next changes
		// hands.
		if m.protocol == PriorityInheritance && m.owner != nil {
			m.owner.RecomputeEffectivePriority()
		}
	})
}

// TryLock is the non-blocking variant: EBUSY if another thread owns the
// mutex, EDEADLK if the calling NonRecursive owner tries to relock it.
func (m *Mutex) TryLock() error {
	s := m.scheduler
	s.Lock()
	defer s.Unlock()
	cur := s.CurrentTCBLocked()
	if m.owner == nil {
		m.owner = cur
		m.depth = 1
		if m.protocol == PriorityInheritance || m.protocol == PriorityProtect {
			cur.AddHeldMutex(m)
		}
		return nil
	}
	if m.owner == cur {
		if m.kind == Recursive {
			m.depth++
			return nil
		}
		return kernel.ErrDeadlock
	}
	return kernel.ErrBusy
}

// TryLockUntil blocks with a deadline; ETIMEDOUT is returned if it
// elapses before the mutex becomes available.
func (m *Mutex) TryLockUntil(deadline uint64) error {
	s := m.scheduler
	s.Lock()
	cur := s.CurrentTCBLocked()
	if m.owner == nil {
		m.owner = cur
		m.depth = 1
		if m.protocol == PriorityInheritance || m.protocol == PriorityProtect {
			cur.AddHeldMutex(m)
		}
		s.Unlock()
		return nil
	}
	if m.owner == cur {
		if m.kind == Recursive {
			m.depth++
			s.Unlock()
			return nil
		}
		s.Unlock()
		return kernel.ErrDeadlock
	}
	s.Unlock()
	return s.BlockUntilWithHook(m.waiters, kernel.StateBlockedOnMutex, deadline, &unblockFunctor{m: m}, func() {
		if m.protocol == PriorityInheritance && m.owner != nil {
			m.owner.RecomputeEffectivePriority()
		}
	})
}

// Unlock releases one level of ownership. Once depth reaches zero, the
// highest-priority waiter (if any) is handed the mutex directly; it
// never needs to re-check availability after waking.
func (m *Mutex) Unlock() error {
	s := m.scheduler
	s.Lock()
	cur := s.CurrentTCBLocked()
	if m.owner != cur {
		s.Unlock()
		return kernel.ErrPermission
	}
	m.depth--
	if m.depth > 0 {
		s.Unlock()
		return nil
	}
	outgoing := m.owner
	m.owner = nil
	if m.protocol == PriorityInheritance || m.protocol == PriorityProtect {
		outgoing.RemoveHeldMutex(m)
	}
	// head's handoff (UnblockLocked, which runs unblockFunctor.Unblocked
	// and sets m.owner) must happen before Unlock releases the critical
	// section — otherwise a third thread could see m.owner == nil and
	// acquire the mutex out from under the waiter already chosen to
	// receive it.
	head := kernel.WaitListHead(m.waiters)
	if head != nil {
		s.UnblockLocked(head, kernel.UnblockMutexUnlock)
	}
	s.Unlock()
	// Releasing a PriorityInheritance/PriorityProtect mutex can drop the
	// outgoing owner's effective priority back down even with no waiter
	// to hand off to (RemoveHeldMutex repositions it in whatever list
	// now holds it) — CheckPreempt must run unconditionally, not just on
	// the handoff path, or the outgoing owner keeps running past a
	// peer its drop should have let preempt it.
	s.CheckPreempt()
	return nil
}

// Owner returns the mutex's current owner, or nil if unlocked.
func (m *Mutex) Owner() *kernel.TCB {
	s := m.scheduler
	s.Lock()
	defer s.Unlock()
	return m.owner
}
