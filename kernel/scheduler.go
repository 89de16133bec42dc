package kernel

import "sync"

// Port is the architecture seam the kernel core depends on exclusively
// through this interface; nothing in this package imports a concrete
// implementation. A real Port is a small set of architecture-specific
// function pointers, not a virtual base class.
type Port interface {
	// InterruptMaskSet nestably masks interrupts up to the kernel
	// ceiling; InterruptMaskRestore undoes exactly one level of
	// nesting. The Scheduler's own mutex is what actually enforces
	// exclusion in this Go port (Go has no interrupt-masking primitive
	// of its own); these two are called in lockstep around it so a real
	// architecture Port still sees the same critical-section boundaries
	// a hardware build would need.
	InterruptMaskSet()
	InterruptMaskRestore()

	// RequestContextSwitch notifies the Port that a switch is needed.
	// On real hardware this triggers the lowest-priority architected
	// exception that will invoke Scheduler.SwitchContext asynchronously;
	// our host Port (port.Host) performs the switch synchronously
	// instead (see Scheduler.CheckPreempt) and uses this purely for
	// instrumentation.
	RequestContextSwitch()

	// InitializeStack prepares a new stack so that the first switch
	// into it begins executing entry(arg).
	InitializeStack(stackBase, stackSize uintptr, entry func(arg any), arg any) StackPointer

	// IdleHook is the processor-specific low-power wait. Nothing in
	// this package calls it: the idle thread's entry is empty, and no
	// goroutine runs while idle is current.
	IdleHook()

	// TickNow reads the monotonic tick count directly from the
	// hardware timer, independent of Scheduler.GetTickCount's own
	// software-maintained counter (used by Ports that drive the tick
	// ISR off a free-running timer rather than a fixed-period one).
	TickNow() uint64
}

// Scheduler is the process-wide scheduler instance, initialized once at
// boot. All mutation happens while mu is held — the Go stand-in for
// masking interrupts up to the kernel ceiling, since Go has no
// interrupt-masking primitive of its own.
//
// A real architecture Port suspends the outgoing thread's call stack
// asynchronously (an exception freezes it mid-instruction). Go offers
// no such primitive, so this Scheduler's thread-context operations
// (Block, Yield, Suspend of self, CheckPreempt) simulate the same
// effect cooperatively: the calling goroutine parks on cond until it
// is selected as current again. This means a thread body that never
// calls back into the kernel cannot be forcibly preempted mid-flight —
// an explicit, documented simplification of the excluded
// architecture-specific trampoline, not a bug.
type Scheduler struct {
	mu   sync.Mutex
	cond sync.Cond

	port Port

	current *TCB

	runnable  WaitList
	suspended WaitList

	timers softwareTimerSupervisor

	tickCount          uint64
	contextSwitchCount uint64

	needsSwitch bool

	idle TCB
}

// New returns an uninitialized Scheduler bound to port. Initialize
// must be called with a main thread before Add, Tick, or any blocking
// primitive is used.
func New(port Port) *Scheduler {
	s := &Scheduler{port: port}
	s.cond.L = &s.mu
	newIdle(&s.idle, 0, IdleStackSize)
	s.idle.StackPointer = port.InitializeStack(0, IdleStackSize, idleEntry, nil)
	return s
}

func idleEntry(any) {}

// enterCritical/exitCritical pair the Port's interrupt-masking hooks
// around the scheduler's own mutex, so a real architecture Port
// observes the same critical-section boundaries it would need on
// hardware even though the mutex is what actually provides exclusion
// here.
func (s *Scheduler) enterCritical() {
	s.mu.Lock()
	s.port.InterruptMaskSet()
}

func (s *Scheduler) exitCritical() {
	s.port.InterruptMaskRestore()
	s.mu.Unlock()
}

// Initialize registers main as the first current TCB. It must run
// exactly once, before any other Scheduler method.
func (s *Scheduler) Initialize(main *TCB) error {
	s.enterCritical()
	defer s.exitCritical()
	if s.current != nil {
		return ErrInvalid
	}
	if main.BasePriority == 0 {
		return ErrInvalid
	}
	main.State = StateRunnable
	s.runnable.insertByPriority(main)
	s.idle.State = StateRunnable
	s.runnable.insertByPriority(&s.idle)
	s.current = main
	return nil
}

// GetTickCount returns the monotonic tick counter.
func (s *Scheduler) GetTickCount() uint64 {
	s.enterCritical()
	defer s.exitCritical()
	return s.tickCount
}

// GetContextSwitchCount returns the number of completed switches.
func (s *Scheduler) GetContextSwitchCount() uint64 {
	s.enterCritical()
	defer s.exitCritical()
	return s.contextSwitchCount
}

// CurrentTCB returns the currently executing TCB.
func (s *Scheduler) CurrentTCB() *TCB {
	s.enterCritical()
	defer s.exitCritical()
	return s.current
}

// CurrentTCBLocked returns the currently executing TCB without taking
// the critical section itself; callers (mutex/semaphore/queue) that
// already hold it via Lock must use this instead of CurrentTCB, whose
// own enterCritical would deadlock against the non-reentrant mutex.
func (s *Scheduler) CurrentTCBLocked() *TCB { return s.current }

// IdleTCB returns the scheduler's one permanent idle TCB.
func (s *Scheduler) IdleTCB() *TCB { return &s.idle }

// Add registers tcb (which must be Created), making it Runnable, and
// preempts the caller if tcb now outranks it.
func (s *Scheduler) Add(tcb *TCB) error {
	s.enterCritical()
	if tcb.State != StateCreated {
		s.exitCritical()
		return ErrInvalid
	}
	tcb.State = StateRunnable
	s.runnable.insertByPriority(tcb)
	s.exitCritical()
	s.CheckPreempt()
	return nil
}

// Block unlinks the current TCB from the runnable list, sets its
// state, inserts it into container, stores functor, and parks the
// calling goroutine until the TCB is unblocked. Returns the translated
// outcome (ETIMEDOUT/EINTR) once resumed.
func (s *Scheduler) Block(container *WaitList, state State, functor UnblockFunctor) error {
	s.enterCritical()
	cur := s.current
	s.blockLocked(container, cur, state, functor)
	s.switchAndParkLocked(cur)
	s.exitCritical()
	return reasonToError(cur.UnblockReason)
}

// BlockWithHook is Block's variant for primitives that need a side
// effect to happen atomically with the caller joining container: hook
// runs with the critical section still held, immediately after
// insertion and before the caller parks (PriorityInheritance mutexes
// use this to bump the current owner's effective priority in the same
// critical section the new waiter becomes visible in).
func (s *Scheduler) BlockWithHook(container *WaitList, state State, functor UnblockFunctor, hook func()) error {
	s.enterCritical()
	cur := s.current
	s.blockLocked(container, cur, state, functor)
	if hook != nil {
		hook()
	}
	s.switchAndParkLocked(cur)
	s.exitCritical()
	return reasonToError(cur.UnblockReason)
}

// BlockOther is the "different TCB" variant of Block; target must be
// Runnable. It never parks the caller, because the caller isn't the
// thread being blocked.
func (s *Scheduler) BlockOther(container *WaitList, target *TCB, state State, functor UnblockFunctor) error {
	s.enterCritical()
	defer s.exitCritical()
	if target.State != StateRunnable {
		return ErrInvalid
	}
	s.blockLocked(container, target, state, functor)
	return nil
}

func (s *Scheduler) blockLocked(container *WaitList, tcb *TCB, state State, functor UnblockFunctor) {
	s.assertLocked()
	if tcb.list != nil {
		tcb.list.remove(tcb)
	}
	tcb.State = state
	tcb.unblockFunctor = functor
	tcb.UnblockReason = UnblockRequest
	container.insertByPriority(tcb)
}

// BlockUntil arms a one-shot timeout alongside Block; firing unblocks
// with UnblockTimeout.
func (s *Scheduler) BlockUntil(container *WaitList, state State, deadline uint64, functor UnblockFunctor) error {
	s.enterCritical()
	cur := s.current
	s.blockLocked(container, cur, state, functor)
	node := &timerNode{internal: true, callback: func() { s.wakeLocked(cur, UnblockTimeout) }}
	cur.timerLink = node
	s.timers.arm(node, deadline, 0)
	s.switchAndParkLocked(cur)
	// wakeLocked always disarms and clears timerLink before cur becomes
	// current again, regardless of which reason won the race.
	s.exitCritical()
	return reasonToError(cur.UnblockReason)
}

// BlockUntilWithHook composes BlockUntil's deadline arming with
// BlockWithHook's post-insertion hook.
func (s *Scheduler) BlockUntilWithHook(container *WaitList, state State, deadline uint64, functor UnblockFunctor, hook func()) error {
	s.enterCritical()
	cur := s.current
	s.blockLocked(container, cur, state, functor)
	node := &timerNode{internal: true, callback: func() { s.wakeLocked(cur, UnblockTimeout) }}
	cur.timerLink = node
	s.timers.arm(node, deadline, 0)
	if hook != nil {
		hook()
	}
	s.switchAndParkLocked(cur)
	s.exitCritical()
	return reasonToError(cur.UnblockReason)
}

func reasonToError(r UnblockReason) error {
	switch r {
	case UnblockTimeout:
		return ErrTimedOut
	case UnblockSignal:
		return ErrInterrupt
	default:
		return nil
	}
}

// Unblock locates tcb's current list via its back-reference, removes
// it, runs and clears its functor, and moves it to the tail of its
// runnable priority band. Interrupt-safe: it never parks the caller,
// so it is legal to call from a simulated ISR context (software timer
// callbacks, try_push/try_pop) as well as from a thread.
func (s *Scheduler) Unblock(tcb *TCB, reason UnblockReason) {
	s.enterCritical()
	s.wakeLocked(tcb, reason)
	s.exitCritical()
}

// UnblockLocked is Unblock's variant for callers that already hold the
// critical section via Lock — mutex/semaphore/queue handoffs need the
// ownership bookkeeping that precedes the wake to stay atomic with the
// wake itself, so a third thread can never observe the resource as
// simultaneously free and about to be handed to a waiter.
func (s *Scheduler) UnblockLocked(tcb *TCB, reason UnblockReason) {
	s.wakeLocked(tcb, reason)
}

// wakeLocked is the shared bookkeeping behind Unblock and Resume: move
// tcb off whatever list holds it (a primitive's wait list, or the
// suspended list) onto the tail of its runnable priority band.
func (s *Scheduler) wakeLocked(tcb *TCB, reason UnblockReason) {
	s.assertLocked()
	if tcb.State != StateBlockedOnMutex && tcb.State != StateBlockedOnSemaphore &&
		tcb.State != StateBlockedOnCondition && tcb.State != StateBlockedOnJoin &&
		tcb.State != StateBlockedOnSleep && tcb.State != StateSuspended {
		return
	}
	// Whichever unblock reason is set first wins; a
	// second call racing in from a timer or a signal finds tcb.list
	// already nil and is a no-op.
	if tcb.list == nil {
		return
	}
	tcb.list.remove(tcb)
	tcb.UnblockReason = reason
	if tcb.timerLink != nil {
		s.timers.disarm(tcb.timerLink)
		tcb.timerLink = nil
	}
	if f := tcb.unblockFunctor; f != nil {
		tcb.unblockFunctor = nil
		f.Unblocked(tcb, reason)
	}
	tcb.State = StateRunnable
	tcb.resetQuantum()
	s.runnable.insertByPriority(tcb)
	if s.runnable.head != s.current {
		s.needsSwitch = true
		s.port.RequestContextSwitch()
	}
}

// Suspend moves tcb (or the current TCB if tcb is nil) from Runnable to
// Suspended. Suspending the current thread parks the caller; it may
// return EINTR if a signal interrupts the suspension via Unblock.
func (s *Scheduler) Suspend(tcb *TCB) error {
	s.enterCritical()
	if tcb == nil {
		tcb = s.current
	}
	if tcb.State != StateRunnable {
		s.exitCritical()
		return ErrInvalid
	}
	isCurrent := tcb == s.current
	s.runnable.remove(tcb)
	tcb.State = StateSuspended
	tcb.UnblockReason = UnblockRequest
	s.suspended.insertByPriority(tcb)
	if !isCurrent {
		s.exitCritical()
		return nil
	}
	s.switchAndParkLocked(tcb)
	s.exitCritical()
	return reasonToError(tcb.UnblockReason)
}

// Resume moves tcb from Suspended back to Runnable without yielding
// the caller's own turn first, but does preempt the caller if tcb now
// outranks it.
func (s *Scheduler) Resume(tcb *TCB) error {
	s.enterCritical()
	if tcb.State != StateSuspended {
		s.exitCritical()
		return ErrInvalid
	}
	s.wakeLocked(tcb, UnblockRequest)
	s.exitCritical()
	s.CheckPreempt()
	return nil
}

// Yield rotates the current TCB to the tail of its priority band and,
// if that changes who should run, parks the caller until its turn
// comes back around.
func (s *Scheduler) Yield() {
	s.enterCritical()
	s.runnable.rotateFront()
	cur := s.current
	s.switchAndParkLocked(cur)
	s.exitCritical()
}

// Remove moves the current TCB to Terminated, running onTerminate
// inside the critical section before a forced switch away from it. It
// must be called by a thread on itself, after its entry function has
// returned; the calling goroutine is expected to exit immediately
// afterward and never parks.
func (s *Scheduler) Remove(onTerminate func(*TCB)) error {
	s.enterCritical()
	cur := s.current
	if cur.list != &s.runnable {
		s.exitCritical()
		return ErrInvalid
	}
	s.runnable.remove(cur)
	cur.State = StateTerminated
	if onTerminate != nil {
		onTerminate(cur)
	}
	s.yieldLocked()
	s.exitCritical()
	return nil
}

// TickInterruptHandler advances the tick count by one, fires expired
// software timers, and rotates the current TCB if its round-robin
// quantum has expired and a peer of equal priority is runnable. It is
// interrupt-safe and performs the switch itself (there being no
// thread-context caller to park); it returns true if a switch just
// happened or is still pending.
//
// Due software timers run with the critical section released: a
// timer's callback is documented as free to call back into the
// scheduler (ArmTimer/DisarmTimer, Unblock, a semaphore Post, a queue
// TryPush/TryPop), and every one of those re-enters the critical
// section itself — calling them while still holding it here would
// deadlock re-locking the same non-reentrant mutex on the same
// goroutine. Scheduler-internal blocking timeouts (BlockUntil's own
// deadline node, whose callback calls wakeLocked directly) are exempt
// and still fire inline, under the lock, in popExpired.
func (s *Scheduler) TickInterruptHandler() bool {
	s.enterCritical()
	s.tickCount++
	now := s.tickCount
	due := s.timers.popExpired(now)
	s.exitCritical()

	for _, n := range due {
		if n.callback != nil {
			n.callback()
		}
	}

	s.enterCritical()
	defer s.exitCritical()
	s.timers.rearmExpired(due, now)

	cur := s.current
	if cur != nil && cur != &s.idle && cur.Policy == SchedulingRoundRobin && cur.RoundRobinQuantum > 0 {
		cur.RoundRobinQuantum--
		if cur.RoundRobinQuantum == 0 {
			if cur.next != nil && cur.next.priority == cur.priority {
				s.runnable.rotateFront()
			}
			cur.resetQuantum()
		}
	}
	if s.runnable.head != s.current {
		s.needsSwitch = true
		s.yieldLocked()
		return true
	}
	return s.needsSwitch
}

// CheckPreempt is the thread-context checkpoint: if the calling
// thread (assumed to be the current TCB) is no longer the
// runnable-list head, it performs the switch and parks until its turn
// comes back around. Mutex/Semaphore/Queue call this after any
// thread-context operation that might have unblocked a higher-priority
// waiter (their interrupt-safe variants call Unblock directly instead,
// skipping this).
func (s *Scheduler) CheckPreempt() {
	s.enterCritical()
	cur := s.current
	s.switchAndParkLocked(cur)
	s.exitCritical()
}

// switchAndParkLocked must be called with mu held. If cur is still the
// runnable-list head, nothing needs to change. Otherwise it performs
// the handoff and parks cur's goroutine until it is current again.
func (s *Scheduler) switchAndParkLocked(cur *TCB) {
	if cur == nil || s.runnable.head == cur {
		return
	}
	s.port.RequestContextSwitch()
	s.yieldLocked()
	for s.current != cur {
		s.cond.Wait()
	}
}

// yieldLocked must be called with mu held: it performs the actual
// handoff (pick the runnable-list head as current) and wakes every
// goroutine parked in switchAndParkLocked/awaitCurrent so they can
// recheck whether it's now their turn.
func (s *Scheduler) yieldLocked() {
	next := s.runnable.head
	if next == nil {
		next = &s.idle
	}
	s.current = next
	s.contextSwitchCount++
	next.resetQuantum()
	s.needsSwitch = false
	s.cond.Broadcast()
}

// AwaitCurrent parks the calling goroutine until tcb is selected as
// current. Used once, by a freshly started thread, to wait for its
// first turn (thread.Thread's goroutine calls this first, before
// running the thread's function).
func (s *Scheduler) AwaitCurrent(tcb *TCB) {
	s.enterCritical()
	for s.current != tcb {
		s.cond.Wait()
	}
	s.exitCritical()
}

// SwitchContext is the Port-facing primitive a real architecture uses:
// it saves savedSP into the outgoing TCB, selects the runnable-list head
// as the new current TCB, and returns its stored stack pointer. A real
// architecture Port calls this from its asynchronous exception
// trampoline; port.Host does not need to, since its thread-context
// operations already perform the handoff via yieldLocked.
func (s *Scheduler) SwitchContext(savedSP StackPointer) StackPointer {
	s.enterCritical()
	defer s.exitCritical()
	if s.current != nil {
		s.current.StackPointer = savedSP
	}
	s.yieldLocked()
	return s.current.StackPointer
}

// RunnableHead exposes the head of the runnable list for primitives
// (mutex/semaphore/queue) that need to peek the highest-priority
// waiter without a full Scheduler surface.
func (s *Scheduler) RunnableHead() *TCB {
	s.enterCritical()
	defer s.exitCritical()
	return s.runnable.head
}

// Lock/Unlock expose the scheduler's critical section to primitives
// built directly on top of it (mutex/semaphore/queue all need to
// perform several list operations atomically with respect to other
// goroutines calling into the scheduler).
func (s *Scheduler) Lock()   { s.enterCritical() }
func (s *Scheduler) Unlock() { s.exitCritical() }

// NewWaitList returns an empty priority-ordered wait list a primitive
// can pass to Block/BlockUntil/BlockOther.
func NewWaitList() *WaitList { return &WaitList{} }

// WaitListLen reports how many TCBs are currently queued.
func WaitListLen(l *WaitList) int { return l.len }

// WaitListHead peeks the highest-priority waiter without removing it.
func WaitListHead(l *WaitList) *TCB { return l.head }
