package kernel

// GenerateSignal sets sig (0-31) in tcb's pending bitset. If tcb is
// currently blocked behind a primitive whose UnblockFunctor admits
// signal interruption, the blocked call is woken immediately with
// UnblockSignal so it returns EINTR. A suspended tcb is always
// interruptible this way, since Suspend installs no functor of its
// own for wakeLocked to consult. Unlike Unblock, this is a
// thread-context call: it runs CheckPreempt itself, and so may park
// the caller if waking tcb makes it the new highest-priority runnable
// TCB. A caller raising a signal from a software timer's callback
// (which runs without the critical section held, but is not a real
// thread) should use GenerateSignalFromInterrupt instead.
func (s *Scheduler) GenerateSignal(tcb *TCB, sig uint8) {
	woken := s.generateSignalLocked(tcb, sig)
	if woken {
		s.CheckPreempt()
	}
}

// GenerateSignalFromInterrupt is GenerateSignal's interrupt-safe twin:
// it never parks the caller, only flags a switch as due (via
// wakeLocked's own RequestContextSwitch) for the next thread-context
// checkpoint to pick up — the same split semaphore.Post/PostFromInterrupt
// already draws (queue's TryPush/TryPop post through PostFromInterrupt).
func (s *Scheduler) GenerateSignalFromInterrupt(tcb *TCB, sig uint8) {
	s.generateSignalLocked(tcb, sig)
}

func (s *Scheduler) generateSignalLocked(tcb *TCB, sig uint8) bool {
	s.enterCritical()
	defer s.exitCritical()
	tcb.PendingSignals |= 1 << sig
	switch {
	case tcb.State == StateSuspended:
		s.wakeLocked(tcb, UnblockSignal)
	case tcb.list != nil && tcb.unblockFunctor != nil && tcb.unblockFunctor.InterruptibleBySignal():
		s.wakeLocked(tcb, UnblockSignal)
	default:
		return false
	}
	return true
}

// AcceptSignals clears and returns the subset of tcb's pending signals
// that intersect mask. Signals are edge-triggered: a bit accepted here
// is not reported again until GenerateSignal sets it anew.
func (s *Scheduler) AcceptSignals(tcb *TCB, mask uint32) uint32 {
	s.enterCritical()
	defer s.exitCritical()
	accepted := tcb.PendingSignals & mask
	tcb.PendingSignals &^= accepted
	return accepted
}

// PendingSignalsOf peeks tcb's full pending set without clearing it.
func (s *Scheduler) PendingSignalsOf(tcb *TCB) uint32 {
	s.enterCritical()
	defer s.exitCritical()
	return tcb.PendingSignals
}
