package asyncobj

// AsyncShutdowner is implemented by objects that support asynchronous
// shutdown. Shutdown differs from Close in that:
//
//	a) it is safe to invoke multiple times or concurrently; only the first
//	   call takes effect
//	b) the caller may provide an error as the reason for shutdown, which
//	   becomes available to anyone waiting on completion
//	c) it is asynchronous, exposing a chan that is closed once shutdown is
//	   complete so callers can wait for clean teardown
//
// An implementation that also provides Close should be fully closed by the
// time shutdown completes. Helper provides a reusable implementation.
type AsyncShutdowner interface {
	// StartShutdown schedules asynchronous shutdown of the object. It
	// returns true if this call scheduled shutdown, false if shutdown had
	// already been scheduled. completionErr is an advisory completion
	// status; the implementation may replace it with a different final
	// status.
	StartShutdown(completionErr error) bool

	// ShutdownDoneChan returns a chan that is closed after shutdown is
	// complete, including shutdown of dependents. Once closed, WaitShutdown
	// will not block.
	ShutdownDoneChan() <-chan struct{}

	// WaitShutdown blocks until the object is completely shut down and
	// returns the final completion status.
	WaitShutdown() error
}
