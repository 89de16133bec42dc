package port

import (
	"testing"
	"time"

	"distortos/kernel"
)

func TestInitializeStackBeforeBindIsANoOp(t *testing.T) {
	h := NewHost(time.Millisecond)
	// kernel.New calls InitializeStack once for the idle thread before
	// anyone has a chance to Bind; it must not panic or spawn anything.
	s := kernel.New(h)
	h.Bind(s)

	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeStackAfterBindRunsEntry(t *testing.T) {
	h := NewHost(time.Millisecond)
	s := kernel.New(h)
	h.Bind(s)

	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatal(err)
	}

	ran := make(chan struct{})
	h.InitializeStack(0, 0, func(any) { close(ran) }, nil)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("entry never ran after Bind")
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown = %v, want nil", err)
	}
}

func TestPanickingEntryReachesFatalHook(t *testing.T) {
	h := NewHost(time.Millisecond)
	s := kernel.New(h)
	h.Bind(s)

	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatal(err)
	}

	caught := make(chan kernel.FatalErrorInfo, 1)
	kernel.SetFatalErrorHook(func(info kernel.FatalErrorInfo) { caught <- info })

	func() {
		defer func() { recover() }() // fatal() panics after invoking the hook
		h.InitializeStack(0, 0, func(any) { panic("boom") }, nil)
		h.Shutdown()
	}()

	select {
	case info := <-caught:
		if info.Message == "" {
			t.Fatal("FatalErrorInfo.Message was empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panicking thread body never reached the fatal hook")
	}
}

func TestRunFeedsTicksFromWallClock(t *testing.T) {
	h := NewHost(2 * time.Millisecond)
	s := kernel.New(h)
	h.Bind(s)

	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 1024, 5, kernel.SchedulingFIFO); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(main); err != nil {
		t.Fatal(err)
	}

	h.Run(s)
	defer h.Stop()

	deadline := time.After(2 * time.Second)
	for s.GetTickCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no ticks observed from Run")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
