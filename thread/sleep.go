package thread

import "distortos/kernel"

type sleepFunctor struct{}

func (sleepFunctor) Unblocked(*kernel.TCB, kernel.UnblockReason) {}
func (sleepFunctor) InterruptibleBySignal() bool                 { return true }

// Sleep blocks the calling thread for durationTicks ticks. A zero
// duration is a no-op. A signal generated against the caller while
// asleep returns ErrInterrupt early instead of the usual nil.
func Sleep(scheduler *kernel.Scheduler, durationTicks uint64) error {
	if durationTicks == 0 {
		return nil
	}
	return SleepUntil(scheduler, scheduler.GetTickCount()+durationTicks)
}

// SleepUntil blocks the calling thread until the absolute tick count
// deadline is reached, or a signal interrupts it first.
func SleepUntil(scheduler *kernel.Scheduler, deadline uint64) error {
	// Each sleeper gets its own throwaway wait list: nothing else ever
	// joins it, since no other thread can "wake" a sleeper except by
	// generating a signal, which wakeLocked handles without needing the
	// sleeper's own list beyond this one throwaway insertion point.
	err := scheduler.BlockUntil(kernel.NewWaitList(), kernel.StateBlockedOnSleep, deadline, sleepFunctor{})
	if err == kernel.ErrTimedOut {
		return nil
	}
	return err
}
