package kernel

// Priority is an unsigned scheduling priority; larger runs first. 0 is
// reserved for the idle thread.
type Priority uint8

// SchedulingPolicy selects how same-priority TCBs share the CPU.
type SchedulingPolicy uint8

const (
	SchedulingFIFO SchedulingPolicy = iota
	SchedulingRoundRobin
)

// State is a TCB's position in the thread state machine.
type State uint8

const (
	StateCreated State = iota
	StateRunnable
	StateBlockedOnMutex
	StateBlockedOnSemaphore
	StateBlockedOnCondition
	StateBlockedOnJoin
	StateBlockedOnSleep
	StateSuspended
	StateTerminated
)

// UnblockReason tags why a TCB left a wait list, consumed exactly once
// by the primitive that blocked it.
type UnblockReason uint8

const (
	UnblockRequest UnblockReason = iota
	UnblockTimeout
	UnblockSignal
	UnblockMutexUnlock
	UnblockReset
)

// UnblockFunctor runs once, inside the critical section, immediately
// before a TCB is re-inserted into the runnable list. A small closure
// carried directly on the TCB stands in for virtual dispatch here — at
// most one is ever pending.
type UnblockFunctor interface {
	// Unblocked is invoked with the scheduler lock held, right before
	// the TCB goes back on the runnable list.
	Unblocked(tcb *TCB, reason UnblockReason)

	// InterruptibleBySignal reports whether a pending signal may
	// interrupt this particular block (mutex handoff in the middle of
	// a ceiling recompute, for instance, may refuse).
	InterruptibleBySignal() bool
}

// StackPointer is an opaque handle a Port implementation uses however
// its architecture requires; the kernel core never interprets it.
type StackPointer any

// TCB is a Thread Control Block. Storage is always provided by the
// user; the kernel never allocates a TCB itself, NewTCB only
// initializes fields in caller-owned memory.
type TCB struct {
	StackPointer StackPointer
	StackBase    uintptr
	StackSize    uintptr

	BasePriority Priority
	priority     Priority // effective priority, may be inherited/boosted

	Policy            SchedulingPolicy
	RoundRobinQuantum uint16
	roundRobinInitial uint16

	State State

	list *WaitList
	prev *TCB
	next *TCB

	UnblockReason  UnblockReason
	unblockFunctor UnblockFunctor

	PendingSignals uint32

	JoinedBy *TCB

	timerLink *timerNode

	// heldMutexes links the mutexes this TCB currently owns, used to
	// recompute effective priority as PriorityInheritance mutexes are
	// acquired and released. Only this TCB's own priority is recomputed:
	// if it is itself waiting on another mutex, that mutex's owner is not
	// re-evaluated, so inheritance does not carry along a chain of owners.
	heldMutexes []InheritanceSource
}

// InheritanceSource is a priority floor contributed by something this
// TCB holds (currently only PriorityInheritance/PriorityProtect mutexes
// register one via AddHeldMutex).
type InheritanceSource interface {
	InheritedFloor() Priority
}

// NewTCB initializes a TCB in caller-provided storage. stackBase/
// stackSize describe the stack the Port will run the thread on;
// priority 0 is reserved for the idle thread and rejected here.
func NewTCB(tcb *TCB, stackBase uintptr, stackSize uintptr, priority Priority, policy SchedulingPolicy) error {
	if priority == 0 {
		return ErrInvalid
	}
	*tcb = TCB{
		StackBase:         stackBase,
		StackSize:         stackSize,
		BasePriority:      priority,
		priority:          priority,
		Policy:            policy,
		RoundRobinQuantum: roundRobinQuantumTicks,
		roundRobinInitial: roundRobinQuantumTicks,
		State:             StateCreated,
	}
	return nil
}

// newIdle builds the one priority-0 idle TCB directly, bypassing
// NewTCB's priority>0 check.
func newIdle(tcb *TCB, stackBase uintptr, stackSize uintptr) {
	*tcb = TCB{
		StackBase:         stackBase,
		StackSize:         stackSize,
		BasePriority:      0,
		priority:          0,
		Policy:            SchedulingFIFO,
		RoundRobinQuantum: roundRobinQuantumTicks,
		roundRobinInitial: roundRobinQuantumTicks,
		State:             StateCreated,
	}
}

// roundRobinQuantumTicks is the default time slice, in ticks, rotated
// threads receive before yielding within their priority band.
const roundRobinQuantumTicks = 10

// IdleStackSize is the fixed stack size given to the idle thread.
const IdleStackSize = 128

// Priority returns the TCB's current effective priority (base priority
// plus whatever it has inherited from mutexes it holds).
func (t *TCB) Priority() Priority { return t.priority }

// RecomputeEffectivePriority re-scans heldMutexes for the current
// priority floor they impose. Callers (PriorityInheritance mutexes)
// invoke this with the scheduler lock held whenever a waiter joins or
// leaves one of t's held mutexes without t itself gaining or losing the
// mutex, since InheritanceSource.InheritedFloor reads the waiter list
// live and nothing else would otherwise trigger the rescan.
func (t *TCB) RecomputeEffectivePriority() { t.recomputeEffectivePriority() }

// resetQuantum restores the round-robin quantum to its initial value;
// called by the scheduler whenever a TCB becomes current (yieldLocked)
// or is made runnable again (wakeLocked).
func (t *TCB) resetQuantum() { t.RoundRobinQuantum = t.roundRobinInitial }

// recomputeEffectivePriority must reposition t within whatever list
// currently holds it (the runnable list, or another mutex's wait list)
// whenever its effective priority actually changes — otherwise a
// boosted TCB's structural position stays wherever it was inserted at
// its old priority, breaking the invariant that a list's head is
// always its highest-priority member. t.list
// is nil-safe here: a TCB recomputing its own priority is always
// either runnable or queued on some wait list (never both), matching
// the same remove-then-insertByPriority idiom rotateFront uses to
// reposition the runnable list's own head.
func (t *TCB) recomputeEffectivePriority() {
	eff := t.BasePriority
	for _, src := range t.heldMutexes {
		if f := src.InheritedFloor(); f > eff {
			eff = f
		}
	}
	if eff == t.priority {
		return
	}
	t.priority = eff
	if l := t.list; l != nil {
		l.remove(t)
		l.insertByPriority(t)
	}
}

// AddHeldMutex registers src (a locked PriorityInheritance or
// PriorityProtect mutex) as a priority floor on t and recomputes t's
// effective priority. Called with the scheduler lock held.
func (t *TCB) AddHeldMutex(src InheritanceSource) {
	t.heldMutexes = append(t.heldMutexes, src)
	t.recomputeEffectivePriority()
}

// RemoveHeldMutex undoes AddHeldMutex when the mutex is unlocked.
func (t *TCB) RemoveHeldMutex(src InheritanceSource) {
	for i, m := range t.heldMutexes {
		if m == src {
			t.heldMutexes = append(t.heldMutexes[:i], t.heldMutexes[i+1:]...)
			break
		}
	}
	t.recomputeEffectivePriority()
}
