// Package timer is a thin public wrapper over kernel.Scheduler's
// internal software-timer supervisor: one-shot or periodic callbacks
// driven entirely off the scheduler's own tick count, armed and
// disarmed without ever touching the runnable/blocked machinery a
// thread would.
package timer

import "distortos/kernel"

// SoftwareTimer runs fn, without the scheduler's critical section held,
// once its deadline is reached.
type SoftwareTimer struct {
	scheduler *kernel.Scheduler
	handle    *kernel.TimerHandle
}

// New returns a disarmed SoftwareTimer that will call fn when armed
// and subsequently fired. fn runs with no lock held, the same
// interrupt-context constraint a real software-timer callback runs
// under: it must not block, but it may call back into the scheduler
// (ArmTimer/DisarmTimer, Unblock, a semaphore Post, a queue
// TryPush/TryPop) without deadlocking against its own tick.
func New(scheduler *kernel.Scheduler, fn func()) *SoftwareTimer {
	return &SoftwareTimer{
		scheduler: scheduler,
		handle:    kernel.NewTimerHandle(fn),
	}
}

// Start arms the timer for deadline (an absolute tick count). If
// period is nonzero, the timer re-arms itself at now+period each time
// it fires rather than drifting deadline-by-deadline, and never
// backlogs after a long pause — see kernel.softwareTimerSupervisor.tick.
func (st *SoftwareTimer) Start(deadline, period uint64) {
	st.scheduler.ArmTimer(st.handle, deadline, period)
}

// StartFor arms the timer to fire after durationTicks ticks from now.
func (st *SoftwareTimer) StartFor(durationTicks, period uint64) {
	st.Start(st.scheduler.GetTickCount()+durationTicks, period)
}

// Stop disarms the timer; legal whether or not it is currently armed.
func (st *SoftwareTimer) Stop() {
	st.scheduler.DisarmTimer(st.handle)
}

// IsRunning reports whether the timer is still waiting to fire.
func (st *SoftwareTimer) IsRunning() bool {
	return st.scheduler.TimerArmed(st.handle)
}
