package thread

import (
	"testing"
	"time"

	"distortos/kernel"
	"distortos/signalset"
)

type fakePort struct{}

func (fakePort) InterruptMaskSet()     {}
func (fakePort) InterruptMaskRestore() {}
func (fakePort) RequestContextSwitch() {}

// InitializeStack spawns the goroutine that will run a thread's body;
// unlike the other packages' fakePort stand-ins, this package's
// threads actually rely on the Port to start them (see
// kernel.Scheduler.InitializeThreadStack), so this one must do it for
// real instead of returning a dead StackPointer.
func (fakePort) InitializeStack(stackBase, stackSize uintptr, entry func(arg any), arg any) kernel.StackPointer {
	go entry(arg)
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

func TestStartRunsBodyAndJoinWaitsForTermination(t *testing.T) {
	s := newSchedulerT(t)
	ran := false
	th, err := New(s, 1024, 5, kernel.SchedulingFIFO, func() { ran = true })
	if err != nil {
		t.Fatal(err)
	}
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	if err := th.Join(); err != nil {
		t.Fatalf("Join = %v, want nil", err)
	}
	if !ran {
		t.Fatal("thread body never ran before Join returned")
	}
}

func TestJoinAfterTerminationReturnsImmediately(t *testing.T) {
	s := newSchedulerT(t)
	th, err := New(s, 1024, 5, kernel.SchedulingFIFO, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	if err := th.Join(); err != nil {
		t.Fatalf("first Join = %v, want nil", err)
	}
	if err := th.Join(); err != nil {
		t.Fatalf("second Join (after termination) = %v, want nil", err)
	}
}

func TestDetachThenJoinFails(t *testing.T) {
	s := newSchedulerT(t)
	th, err := New(s, 1024, 5, kernel.SchedulingFIFO, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	if err := th.Detach(); err != nil {
		t.Fatalf("Detach = %v, want nil", err)
	}
	if err := th.Join(); err != kernel.ErrInvalid {
		t.Fatalf("Join after Detach = %v, want ErrInvalid", err)
	}
	s.Yield() // let the detached thread's goroutine run to completion
}

func TestSleepBlocksUntilDeadline(t *testing.T) {
	s := newSchedulerT(t)
	woke := make(chan error, 1)
	th, err := New(s, 1024, 5, kernel.SchedulingFIFO, func() { woke <- Sleep(s, 5) })
	if err != nil {
		t.Fatal(err)
	}
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	s.Yield() // hand control to th so it actually parks in Sleep

	for i := 0; i < 4; i++ {
		s.TickInterruptHandler()
	}
	select {
	case <-woke:
		t.Fatal("thread woke before its deadline")
	default:
	}

	s.TickInterruptHandler()
	// The timeout only makes th runnable again at the tail of main's
	// band; main must still give up its turn for Sleep to return.
	s.Yield()
	select {
	case err := <-woke:
		if err != nil {
			t.Fatalf("Sleep = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("thread never woke from Sleep")
	}
}

func TestSignalInterruptsSleep(t *testing.T) {
	s := newSchedulerT(t)
	woke := make(chan error, 1)
	th, err := New(s, 1024, 5, kernel.SchedulingFIFO, func() { woke <- SleepUntil(s, 1_000_000) })
	if err != nil {
		t.Fatal(err)
	}
	if err := th.Start(); err != nil {
		t.Fatal(err)
	}
	s.Yield() // hand control to th so it actually parks in SleepUntil

	select {
	case <-woke:
		t.Fatal("thread returned before being signaled")
	default:
	}

	signalset.Generate(s, th.TCB(), 3)

	select {
	case err := <-woke:
		if err != kernel.ErrInterrupt {
			t.Fatalf("SleepUntil = %v, want ErrInterrupt", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal never interrupted the sleeping thread")
	}
}
