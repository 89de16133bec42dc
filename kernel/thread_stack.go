package kernel

// InitializeThreadStack asks the Port to prepare tcb's stack (using the
// stackBase/stackSize NewTCB already recorded on it) so that tcb's
// first turn as current begins executing entry(arg). Callers use this
// once, right after NewTCB and before Add; tcb is not yet visible to
// any other goroutine at that point, so no lock is needed.
func (s *Scheduler) InitializeThreadStack(tcb *TCB, entry func(arg any), arg any) {
	tcb.StackPointer = s.port.InitializeStack(tcb.StackBase, tcb.StackSize, entry, arg)
}
