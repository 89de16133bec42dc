package semaphore

import (
	"testing"
	"time"

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

func newSchedulerT(t *testing.T, mainPriority kernel.Priority) *kernel.Scheduler {
	t.Helper()
	s := kernel.New(fakePort{})
	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, mainPriority, kernel.SchedulingFIFO); err != nil {
		t.Fatalf("NewTCB: %v", err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func waitOrTimeout(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestWaitDecrementsPositiveValue(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 2, 4)

	if err := sem.Wait(); err != nil {
		t.Fatal(err)
	}
	if sem.Value() != 1 {
		t.Fatalf("value = %d, want 1", sem.Value())
	}
}

func TestTryWaitAgainWhenZero(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 0, 4)

	if err := sem.TryWait(); err != kernel.ErrAgain {
		t.Fatalf("TryWait = %v, want ErrAgain", err)
	}
}

func TestPostIncrementsWhenNoWaiters(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 0, 4)

	if err := sem.Post(); err != nil {
		t.Fatal(err)
	}
	if sem.Value() != 1 {
		t.Fatalf("value = %d, want 1", sem.Value())
	}
}

func TestPostAgainWhenAtMaxValue(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 4, 4)

	if err := sem.Post(); err != kernel.ErrAgain {
		t.Fatalf("Post at max = %v, want ErrAgain", err)
	}
}

func TestPostHandsOffDirectlyWithoutTouchingValue(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 0, 4)

	worker := &kernel.TCB{}
	if err := kernel.NewTCB(worker, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(worker); err != nil {
		t.Fatal(err)
	}

	woken := make(chan struct{})
	go func() {
		s.AwaitCurrent(worker)
		if err := sem.Wait(); err != nil {
			t.Errorf("worker Wait: %v", err)
		}
		close(woken)
		s.Remove(nil)
	}()

	s.Yield() // worker blocks
	if kernel.WaitListLen(sem.waiters) != 1 {
		t.Fatalf("worker should be queued on the semaphore")
	}

	if err := sem.Post(); err != nil {
		t.Fatal(err)
	}
	if sem.Value() != 0 {
		t.Fatalf("direct handoff must not touch value, got %d", sem.Value())
	}
	s.Yield() // hand the CPU to worker so Wait() can return
	waitOrTimeout(t, woken, "worker to be handed the unit")
}

func TestTryWaitUntilTimesOut(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 0, 4)

	worker := &kernel.TCB{}
	if err := kernel.NewTCB(worker, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(worker); err != nil {
		t.Fatal(err)
	}

	result := make(chan error, 1)
	go func() {
		s.AwaitCurrent(worker)
		result <- sem.TryWaitUntil(10)
		s.Remove(nil)
	}()
	s.Yield()

	for i := 0; i < 10; i++ {
		s.TickInterruptHandler()
	}
	s.Yield()

	select {
	case err := <-result:
		if err != kernel.ErrTimedOut {
			t.Fatalf("TryWaitUntil = %v, want ErrTimedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TryWaitUntil to return")
	}
}

func TestPostFromInterruptWakesWithoutPreemptingISRCaller(t *testing.T) {
	s := newSchedulerT(t, 5)
	sem := New(s, 0, 4)

	highPrio := &kernel.TCB{}
	if err := kernel.NewTCB(highPrio, 0, 1024, 9, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}

	woken := make(chan struct{})
	go func() {
		s.AwaitCurrent(highPrio)
		if err := sem.Wait(); err != nil {
			t.Errorf("highPrio Wait: %v", err)
		}
		close(woken)
		s.Remove(nil)
	}()

	// s.Add's own CheckPreempt runs highPrio, which immediately blocks
	// on sem and hands control back to main, since highPrio outranks it.
	if err := s.Add(highPrio); err != nil {
		t.Fatal(err)
	}

	if err := sem.PostFromInterrupt(); err != nil {
		t.Fatal(err)
	}
	// The ISR post only flags the switch; main takes it at its next
	// thread-context checkpoint, as on return from a real interrupt.
	s.CheckPreempt()
	waitOrTimeout(t, woken, "highPrio to be woken by a simulated ISR post")
}
