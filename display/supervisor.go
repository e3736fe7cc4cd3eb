package neurales

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// SessionSupervisor tracks every session goroutine so shutdown can wait for them
type SessionSupervisor struct {
	View    *View
	WG      sync.WaitGroup
	MU      sync.Mutex
	stopped bool
}

// NewSessionSupervisor is a wrapper around the View that manages session goroutines
// They are strongly coupled, one knows about the other
func (v *View) NewSessionSupervisor() *SessionSupervisor {
	ss := &SessionSupervisor{
		View: v,
	}
	v.Supervisor = ss
	return ss
}

// Go runs fn as a supervised goroutine.
// It returns false, without running fn, once the supervisor is stopped.
func (ss *SessionSupervisor) Go(name string, fn func()) bool {
	ss.MU.Lock()
	defer ss.MU.Unlock()
	if ss.stopped {
		return false
	}

	ss.WG.Add(1)
	go func() {
		defer ss.WG.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in session goroutine",
					slog.String("name", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		fn()
	}()
	return true
}

// Stop refuses new work, aborts every session and waits for them to exit.
// Calling it more than once is safe.
func (ss *SessionSupervisor) Stop() {
	ss.MU.Lock()
	ss.stopped = true
	ss.MU.Unlock()

	if ss.View != nil && ss.View.Sessions != nil {
		ss.View.Sessions.AbortAll()
	}
	ss.WG.Wait()
}

// Stopped reports whether Stop has been called
func (ss *SessionSupervisor) Stopped() bool {
	ss.MU.Lock()
	defer ss.MU.Unlock()
	return ss.stopped
}
