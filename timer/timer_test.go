package timer

import (
	"testing"

	"distortos/kernel"
)

type fakePort struct{}

func (fakePort) InterruptMaskSet()     {}
func (fakePort) InterruptMaskRestore() {}
func (fakePort) RequestContextSwitch() {}
func (fakePort) InitializeStack(stackBase, stackSize uintptr, entry func(arg any), arg any) kernel.StackPointer {
	return nil
}
func (fakePort) IdleHook()       {}
func (fakePort) TickNow() uint64 { return 0 }

func newSchedulerT(t *testing.T) *kernel.Scheduler {
	t.Helper()
	s := kernel.New(fakePort{})
	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatalf("NewTCB: %v", err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func TestOneShotFiresAtDeadline(t *testing.T) {
	s := newSchedulerT(t)
	fired := 0
	st := New(s, func() { fired++ })

	st.StartFor(5, 0)
	for i := 0; i < 4; i++ {
		s.TickInterruptHandler()
	}
	if fired != 0 {
		t.Fatalf("fired early, fired = %d", fired)
	}
	s.TickInterruptHandler()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if st.IsRunning() {
		t.Fatalf("one-shot timer should not be running after firing")
	}
}

func TestStopBeforeDeadlinePreventsFire(t *testing.T) {
	s := newSchedulerT(t)
	fired := 0
	st := New(s, func() { fired++ })

	st.StartFor(5, 0)
	st.Stop()
	for i := 0; i < 10; i++ {
		s.TickInterruptHandler()
	}
	if fired != 0 {
		t.Fatalf("stopped timer fired, fired = %d", fired)
	}
}

func TestPeriodicTimerKeepsFiring(t *testing.T) {
	s := newSchedulerT(t)
	fired := 0
	st := New(s, func() { fired++ })

	st.StartFor(5, 5)
	for i := 0; i < 15; i++ {
		s.TickInterruptHandler()
	}
	if fired != 3 {
		t.Fatalf("fired = %d, want 3 over 15 ticks at period 5", fired)
	}
	if !st.IsRunning() {
		t.Fatalf("periodic timer should still be armed")
	}
}
