package port

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"distortos/kernel"
)

// Host is a goroutine-backed Port. There is no real stack or
// hardware tick timer to program: InitializeStack spawns the goroutine
// that runs a thread's entry function directly, under an errgroup that
// recovers a panicking body into kernel.Fatalf instead of silently
// taking down the process, and Run derives ticks from wall-clock time
// the way a free-running hardware timer would, accumulating any
// fractional remainder across calls so ticks never drift.
type Host struct {
	mu        sync.Mutex
	scheduler *kernel.Scheduler
	bound     bool
	group     errgroup.Group

	switches uint64

	tickDuration time.Duration
	last         time.Time
	acc          time.Duration

	stop    chan struct{}
	stopped chan struct{}
}

// NewHost returns an unbound Host; Bind must run before any thread is
// started on it. tickDuration of zero defaults to one millisecond per
// tick.
func NewHost(tickDuration time.Duration) *Host {
	if tickDuration <= 0 {
		tickDuration = time.Millisecond
	}
	return &Host{tickDuration: tickDuration}
}

// Bind wires h to scheduler. kernel.New(h) must run first — it calls
// h.InitializeStack once, for the idle thread, before h has anywhere
// to send a real goroutine; that bootstrap call is a deliberate no-op
// since h.bound is still false at that point, matching idleEntry's own
// triviality (nothing productive happens while idle is current).
func (h *Host) Bind(scheduler *kernel.Scheduler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduler = scheduler
	h.bound = true
}

func (h *Host) InterruptMaskSet()     {}
func (h *Host) InterruptMaskRestore() {}

// RequestContextSwitch has no asynchronous exception to raise on a
// goroutine-backed port; Scheduler.CheckPreempt already performs the
// switch synchronously, so this purely counts for instrumentation.
func (h *Host) RequestContextSwitch() {
	atomic.AddUint64(&h.switches, 1)
}

// InitializeStack spawns entry(arg) on its own goroutine, supervised by
// h's errgroup. Called once for the idle thread before h is bound (a
// no-op then) and once per real thread afterward.
func (h *Host) InitializeStack(stackBase, stackSize uintptr, entry func(arg any), arg any) kernel.StackPointer {
	h.mu.Lock()
	bound := h.bound
	h.mu.Unlock()
	if !bound {
		return nil
	}
	h.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("port: thread body panicked: %v", r)
				// kernel.Fatalf panics again once the hook has run; stop
				// that panic here so it ends this goroutine only.
				defer func() { recover() }()
				kernel.Fatalf("port: thread body panicked: %v", r)
			}
		}()
		entry(arg)
		return nil
	})
	return nil
}

// IdleHook sleeps briefly instead of busy-spinning while nothing is
// runnable.
func (h *Host) IdleHook() {
	time.Sleep(time.Millisecond)
}

// TickNow derives a tick count from the wall clock (whole tick
// durations since the Unix epoch), independent of the Scheduler's own
// software tick counter.
func (h *Host) TickNow() uint64 {
	return uint64(time.Now().UnixNano() / int64(h.tickDuration))
}

// ContextSwitchCount reports how many times RequestContextSwitch has
// fired, for instrumentation and tests.
func (h *Host) ContextSwitchCount() uint64 {
	return atomic.LoadUint64(&h.switches)
}

// Run starts a background goroutine that derives ticks from wall-clock
// time and feeds them to scheduler.TickInterruptHandler until Stop is
// called.
func (h *Host) Run(scheduler *kernel.Scheduler) {
	h.stop = make(chan struct{})
	h.stopped = make(chan struct{})
	go h.run(scheduler)
}

func (h *Host) run(scheduler *kernel.Scheduler) {
	defer close(h.stopped)
	h.last = time.Now()
	ticker := time.NewTicker(h.tickDuration)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.acc += now.Sub(h.last)
			h.last = now
			for h.acc >= h.tickDuration {
				h.acc -= h.tickDuration
				scheduler.TickInterruptHandler()
			}
		}
	}
}

// Stop halts the tick-feeding goroutine started by Run and waits for
// it to exit.
func (h *Host) Stop() {
	if h.stop == nil {
		return
	}
	close(h.stop)
	<-h.stopped
}

// Shutdown blocks until every thread body spawned through
// InitializeStack has returned, and reports the first body that
// panicked, if any. Intended for orderly shutdown once no further
// thread will be started.
func (h *Host) Shutdown() error {
	return h.group.Wait()
}
