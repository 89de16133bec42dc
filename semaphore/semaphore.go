// Package semaphore implements a counting semaphore directly on top of
// kernel.Scheduler: wait decrements a non-negative count or blocks;
// post increments it or, if threads are already waiting, hands off one
// unit straight to the highest-priority waiter without ever touching
// the count.
package semaphore

import (
	"distortos/kernel"
)

// Semaphore is a bounded counter with a priority-ordered wait list.
type Semaphore struct {
	scheduler *kernel.Scheduler

	value    int
	maxValue int

	waiters *kernel.WaitList
}

// New returns a Semaphore initialized to value, capped at maxValue.
// Post beyond maxValue returns EOVERFLOW-equivalent EAGAIN rather than
// silently wrapping.
func New(scheduler *kernel.Scheduler, value, maxValue int) *Semaphore {
	return &Semaphore{
		scheduler: scheduler,
		value:     value,
		maxValue:  maxValue,
		waiters:   kernel.NewWaitList(),
	}
}

type unblockFunctor struct{}

func (unblockFunctor) Unblocked(*kernel.TCB, kernel.UnblockReason) {}
func (unblockFunctor) InterruptibleBySignal() bool                 { return true }

// Wait decrements value if positive, else blocks until Post hands this
// thread a unit directly.
func (sem *Semaphore) Wait() error {
	s := sem.scheduler
	s.Lock()
	if sem.value > 0 {
		sem.value--
		s.Unlock()
		return nil
	}
	s.Unlock()
	return s.Block(sem.waiters, kernel.StateBlockedOnSemaphore, unblockFunctor{})
}

// TryWait is the non-blocking variant: EAGAIN if value is currently
// zero and no direct handoff is possible.
func (sem *Semaphore) TryWait() error {
	s := sem.scheduler
	s.Lock()
	defer s.Unlock()
	if sem.value > 0 {
		sem.value--
		return nil
	}
	return kernel.ErrAgain
}

// TryWaitUntil blocks with a deadline; ETIMEDOUT if it elapses first.
func (sem *Semaphore) TryWaitUntil(deadline uint64) error {
	s := sem.scheduler
	s.Lock()
	if sem.value > 0 {
		sem.value--
		s.Unlock()
		return nil
	}
	s.Unlock()
	return s.BlockUntil(sem.waiters, kernel.StateBlockedOnSemaphore, deadline, unblockFunctor{})
}

// Post increments the semaphore, or, if a thread is already waiting,
// wakes the highest-priority one directly without incrementing value —
// the waiter proceeds exactly as if it had just decremented a unit that
// was never visible as a change to value. Thread-context only: after a
// handoff it runs CheckPreempt, which parks the caller if the woken
// waiter now outranks it; use PostFromInterrupt from interrupt context.
func (sem *Semaphore) Post() error {
	s := sem.scheduler
	s.Lock()
	if head := kernel.WaitListHead(sem.waiters); head != nil {
		s.UnblockLocked(head, kernel.UnblockRequest)
		s.Unlock()
		s.CheckPreempt()
		return nil
	}
	if sem.value >= sem.maxValue {
		s.Unlock()
		return kernel.ErrAgain
	}
	sem.value++
	s.Unlock()
	return nil
}

// PostFromInterrupt is Post's ISR-safe form: the handoff path already
// never parks, but this skips the thread-context CheckPreempt (there is
// no "current" thread's own goroutine to re-park from a simulated
// interrupt).
func (sem *Semaphore) PostFromInterrupt() error {
	s := sem.scheduler
	s.Lock()
	defer s.Unlock()
	if head := kernel.WaitListHead(sem.waiters); head != nil {
		s.UnblockLocked(head, kernel.UnblockRequest)
		return nil
	}
	if sem.value >= sem.maxValue {
		return kernel.ErrAgain
	}
	sem.value++
	return nil
}

// Value returns the current count (not including threads already
// queued to receive a direct handoff).
func (sem *Semaphore) Value() int {
	s := sem.scheduler
	s.Lock()
	defer s.Unlock()
	return sem.value
}
