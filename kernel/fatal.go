package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// FatalErrorInfo describes an unrecoverable kernel invariant violation:
// blocking from interrupt context, a TCB found on two lists, a
// corrupted priority band, and similar conditions that mean the
// scheduler's own bookkeeping can no longer be trusted.
type FatalErrorInfo struct {
	Message string
	Stack   []byte
}

var (
	fatalActive atomic.Bool
	fatalOnce   sync.Once
	fatalHook   atomic.Value // func(FatalErrorInfo)
)

// InFatalErrorState reports whether a fatal error has already been
// raised; once true it never clears.
func InFatalErrorState() bool { return fatalActive.Load() }

// SetFatalErrorHook installs the process-wide fatal-error hook. It
// runs at most once, on the first fatal error, and must not itself
// panic or call back into the scheduler.
func SetFatalErrorHook(fn func(FatalErrorInfo)) {
	fatalHook.Store(fn)
}

// Fatalf raises a fatal error exactly once, the same way an internal
// invariant violation does. Port implementations use this to route a
// panicking thread body into the installed fatal-error hook instead of
// letting it take down the whole process silently.
func Fatalf(format string, args ...any) { fatal(format, args...) }

// fatal raises a fatal error exactly once: it stores the details,
// invokes the installed hook, and then panics so that a caller with no
// hook installed still halts instead of continuing on corrupted state.
func fatal(format string, args ...any) {
	fatalOnce.Do(func() {
		fatalActive.Store(true)
		info := FatalErrorInfo{Message: fmt.Sprintf(format, args...), Stack: captureStack()}
		if v := fatalHook.Load(); v != nil {
			if fn, ok := v.(func(FatalErrorInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	panic(fmt.Sprintf(format, args...))
}
