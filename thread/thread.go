// Package thread ties a kernel.TCB to a real goroutine: New prepares
// the TCB and its backing goroutine, Start makes it runnable, Join
// blocks the caller until it terminates, and Detach releases the
// caller's obligation (and ability) to ever Join it.
package thread

import "distortos/kernel"

// Thread is a user thread: kernel-scheduled TCB plus the goroutine
// that actually executes its body.
type Thread struct {
	scheduler *kernel.Scheduler
	tcb       kernel.TCB
	fn        func()

	joiners    *kernel.WaitList
	terminated bool
	detached   bool
}

// New allocates a Thread that will run fn on its own goroutine, at
// priority with the given scheduling policy, once Start is called.
// stackSize is advisory on this host port (no real stack is carved
// out) but is still recorded on the TCB for parity with a real
// architecture build.
func New(scheduler *kernel.Scheduler, stackSize uintptr, priority kernel.Priority, policy kernel.SchedulingPolicy, fn func()) (*Thread, error) {
	th := &Thread{
		scheduler: scheduler,
		fn:        fn,
		joiners:   kernel.NewWaitList(),
	}
	if err := kernel.NewTCB(&th.tcb, 0, stackSize, priority, policy); err != nil {
		return nil, err
	}
	scheduler.InitializeThreadStack(&th.tcb, th.bodyEntry, nil)
	return th, nil
}

// bodyEntry is what the Port's spawned goroutine actually runs: wait
// for this TCB's first turn, run the user's function, then terminate
// and wake anyone joined on it.
func (th *Thread) bodyEntry(any) {
	th.scheduler.AwaitCurrent(&th.tcb)
	th.fn()
	th.scheduler.Remove(func(*kernel.TCB) {
		th.terminated = true
		for {
			head := kernel.WaitListHead(th.joiners)
			if head == nil {
				break
			}
			th.scheduler.UnblockLocked(head, kernel.UnblockRequest)
		}
	})
}

// Start makes the thread Runnable. It is an error to Start a thread
// more than once.
func (th *Thread) Start() error {
	return th.scheduler.Add(&th.tcb)
}

// Priority returns the thread's current effective priority.
func (th *Thread) Priority() kernel.Priority { return th.tcb.Priority() }

// TCB exposes the thread's underlying kernel.TCB, e.g. for
// signalset.Generate to target it.
func (th *Thread) TCB() *kernel.TCB { return &th.tcb }

type joinFunctor struct{}

func (joinFunctor) Unblocked(*kernel.TCB, kernel.UnblockReason) {}
func (joinFunctor) InterruptibleBySignal() bool                 { return true }

// Join blocks the caller until th terminates. Joining an already
// detached thread, or a thread already joined by someone else, returns
// ErrInvalid; joining a thread that has already terminated returns
// immediately. Only one joiner is ever recorded at a time (th.tcb.
// JoinedBy), matching a real architecture's single weak-reference
// joined_by slot — the check and the claim must happen under the same
// lock acquisition, or two Join calls racing in concurrently could both
// pass the check before either records itself.
func (th *Thread) Join() error {
	s := th.scheduler
	caller := s.CurrentTCB()
	s.Lock()
	if th.detached {
		s.Unlock()
		return kernel.ErrInvalid
	}
	if th.terminated {
		s.Unlock()
		return nil
	}
	if th.tcb.JoinedBy != nil {
		s.Unlock()
		return kernel.ErrInvalid
	}
	th.tcb.JoinedBy = caller
	s.Unlock()
	return s.Block(th.joiners, kernel.StateBlockedOnJoin, joinFunctor{})
}

// Detach releases the obligation to Join th; its resources (here, just
// the goroutine and TCB) are reclaimed on termination without anyone
// waiting on it. Detaching a thread that already has a joiner waiting,
// or that is itself already detached, returns ErrInvalid.
func (th *Thread) Detach() error {
	s := th.scheduler
	s.Lock()
	defer s.Unlock()
	if th.detached || th.tcb.JoinedBy != nil || kernel.WaitListHead(th.joiners) != nil {
		return kernel.ErrInvalid
	}
	th.detached = true
	return nil
}
