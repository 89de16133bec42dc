package kernel

// TimerHandle is the public handle the timer package uses to arm,
// disarm, and query a software timer without reaching into the
// scheduler's internal timerNode/softwareTimerSupervisor directly.
type TimerHandle struct {
	node *timerNode
}

// NewTimerHandle returns an unarmed handle whose callback runs,
// without the scheduler's critical section held, whenever the timer
// fires — it is free to call back into the scheduler itself (ArmTimer,
// DisarmTimer, Unblock, a semaphore Post, a queue TryPush/TryPop).
func NewTimerHandle(callback func()) *TimerHandle {
	return &TimerHandle{node: &timerNode{callback: callback}}
}

// ArmTimer schedules (or reschedules) h for deadline, repeating every
// period ticks thereafter if period > 0.
func (s *Scheduler) ArmTimer(h *TimerHandle, deadline, period uint64) {
	s.enterCritical()
	s.timers.arm(h.node, deadline, period)
	s.exitCritical()
}

// DisarmTimer cancels h; legal whether or not it is currently armed.
func (s *Scheduler) DisarmTimer(h *TimerHandle) {
	s.enterCritical()
	s.timers.disarm(h.node)
	s.exitCritical()
}

// TimerArmed reports whether h is still waiting to fire.
func (s *Scheduler) TimerArmed(h *TimerHandle) bool {
	s.enterCritical()
	defer s.exitCritical()
	return s.timers.armed(h.node)
}
