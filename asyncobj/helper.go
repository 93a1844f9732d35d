package asyncobj

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sammck-go/asynctools/log"
)

// ErrShuttingDown is wrapped by errors returned from operations that are
// not permitted once shutdown has been scheduled or started.
var ErrShuttingDown = errors.New("shutdown already started")

// Logger is the logging surface used by Helper. It is a convenient alias
// for log.Logger so that embedders do not need to import the log package.
type Logger = log.Logger

// HandleOnceActivator may be implemented by the object managed by a Helper
// if the object provides its own activation method. Alternatively a
// OnceActivateCallback can be passed directly to DoOnceActivate.
type HandleOnceActivator interface {
	// HandleOnceActivate is invoked exactly once, in StateActivating, with
	// shutdown deferred. A nil return activates the object; an error return
	// schedules immediate shutdown with that error. It is never invoked if
	// shutdown started before DoOnceActivate.
	HandleOnceActivate() error
}

// OnceActivateCallback is invoked exactly once, in StateActivating, with
// shutdown deferred. A nil return activates the object; an error return
// schedules immediate shutdown with that error.
type OnceActivateCallback func() error

// OnceShutdownHandler is invoked exactly once, in StateShuttingDown, in its
// own goroutine. It receives an advisory completion status, performs the
// actual teardown, and returns the real completion status. It is never
// invoked while shutdown is deferred, and hence never during activation.
type OnceShutdownHandler func(completionErr error) error

// HandleOnceShutdowner may be implemented by the object managed by a Helper
// if the object provides its own shutdown method. Alternatively a
// OnceShutdownHandler can be passed to NewHelperWithShutdownHandler.
type HandleOnceShutdowner interface {
	// HandleOnceShutdown is invoked exactly once, in StateShuttingDown, in
	// its own goroutine, with the advisory completion status. Its return
	// value becomes the final completion status.
	HandleOnceShutdown(completionErr error) error
}

// WrapHandleOnceShutdowner adapts a HandleOnceShutdowner into a
// OnceShutdownHandler function.
func WrapHandleOnceShutdowner(o HandleOnceShutdowner) OnceShutdownHandler {
	return func(completionErr error) error {
		return o.HandleOnceShutdown(completionErr)
	}
}

// Helper is a state machine that manages clean asynchronous activation and
// shutdown of an object. It is typically embedded anonymously in the object
// being managed, but also works as a free-standing manager.
type Helper struct {
	// Logger receives trace and error output from the helper. Embedding
	// makes the logging methods available on the managed object as well.
	Logger

	// Lock is a fine-grained mutex for this helper. Embedders may use it
	// as a general-purpose lock for their own short critical sections.
	Lock sync.Mutex

	// obj is the object being managed.
	obj interface{}

	// state tracks lifecycle progress; it only ever increases.
	state State

	// shutdownHandler performs the actual one-time local teardown. Never
	// invoked during activation or while shutdown is deferred.
	shutdownHandler OnceShutdownHandler

	// deferCount is the number of UndeferShutdown calls required before
	// shutdown may commence. It cannot be incremented once shutdown has
	// started. When it reaches 0 and a shutdown is scheduled, shutdown
	// begins.
	deferCount int

	// activated becomes true on successful activation and is never reset,
	// even after shutdown.
	activated bool

	// scheduled becomes true when StartShutdown is called. If shutdown is
	// not deferred, shutdown commences immediately; otherwise it commences
	// when deferCount reaches 0.
	scheduled bool

	// finalErr holds the final completion status once state reaches
	// StateLocalShutdown. Before that it holds the advisory status.
	finalErr error

	// activatingDone is closed when the state advances beyond
	// StateActivating, whether or not activation succeeded.
	activatingDone chan struct{}

	// shutdownStarted is closed when shutdown actually begins. Never closed
	// while shutdown is deferred.
	shutdownStarted chan struct{}

	// localDone is closed on entry to StateLocalShutdown, after the
	// shutdown handler returns and before dependents are waited on. The
	// final completion status is available once it is closed.
	localDone chan struct{}

	// allDone is closed when shutdown is completely finished, dependents
	// included.
	allDone chan struct{}

	// wg holds one count per registered dependent; final shutdown waits on
	// it. It must not be incremented after StateShutDown is entered.
	wg sync.WaitGroup
}

// InitHelperWithShutdownHandler initializes a Helper in place with an
// independent shutdown handler function. Useful for embedded helpers.
func (h *Helper) InitHelperWithShutdownHandler(
	obj interface{},
	logger Logger,
	shutdownHandler OnceShutdownHandler,
) {
	if logger == nil {
		logger = log.Nop()
	}
	h.Logger = logger
	h.obj = obj
	h.state = StateUnactivated
	h.shutdownHandler = shutdownHandler
	h.activatingDone = make(chan struct{})
	h.shutdownStarted = make(chan struct{})
	h.localDone = make(chan struct{})
	h.allDone = make(chan struct{})
}

// InitHelper initializes a Helper in place for an object that implements
// HandleOnceShutdowner. Useful for embedded helpers.
func (h *Helper) InitHelper(logger Logger, obj HandleOnceShutdowner) {
	h.InitHelperWithShutdownHandler(obj, logger, WrapHandleOnceShutdowner(obj))
}

// NewHelperWithShutdownHandler creates a free-standing Helper with an
// independent shutdown handler function.
func NewHelperWithShutdownHandler(
	obj interface{},
	logger Logger,
	shutdownHandler OnceShutdownHandler,
) *Helper {
	h := &Helper{}
	h.InitHelperWithShutdownHandler(obj, logger, shutdownHandler)
	return h
}

// NewHelper creates a free-standing Helper for an object that implements
// HandleOnceShutdowner.
func NewHelper(logger Logger, obj HandleOnceShutdowner) *Helper {
	return NewHelperWithShutdownHandler(obj, logger, WrapHandleOnceShutdowner(obj))
}

// AsyncObjState returns the current lifecycle state.
func (h *Helper) AsyncObjState() State {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.state
}

// IsActivated returns true if the helper has ever been successfully
// activated. Once true it never resets, even after shutdown.
func (h *Helper) IsActivated() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.activated
}

// IsScheduledShutdown returns true once StartShutdown has been called. It
// remains true thereafter.
func (h *Helper) IsScheduledShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.scheduled
}

// IsStartedShutdown returns true once shutdown has begun. It remains true
// after shutdown completes.
func (h *Helper) IsStartedShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.state >= StateShuttingDown
}

// IsDoneLocalShutdown returns true once local shutdown is complete, not
// counting dependents. The final completion status is then available.
func (h *Helper) IsDoneLocalShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.state >= StateLocalShutdown
}

// IsDoneShutdown returns true once shutdown is fully complete, dependents
// included.
func (h *Helper) IsDoneShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.state >= StateShutDown
}

// SetIsActivated marks the helper activated if shutdown has not yet
// started. It is a no-op when already activated and fails once shutdown has
// been started.
//
// Applications that activate asynchronously should call DoOnceActivate
// instead, which calls this on success. SetIsActivated is public mainly for
// objects with trivial construct-time activation that completes before the
// object is exposed; such objects must either call it at construction or
// take responsibility for driving the state to StateShutDown themselves.
func (h *Helper) SetIsActivated() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()

	if !h.activated {
		if h.state >= StateShuttingDown {
			return h.Errorf("cannot activate: %w", ErrShuttingDown)
		}
		h.activated = true
		h.state = StateActivated
		close(h.activatingDone)
	}

	return nil
}

// DoOnceActivate performs exactly-once activation of the object. On nil
// return the object is fully activated (though it may already be shutting
// down). On error return, shutdown has been scheduled with that error, and
// if waitOnFail is true it has fully completed.
//
// Only the first caller runs the activation callback; concurrent and later
// callers block until that first activation settles and observe the same
// result. While the callback runs, shutdown is deferred; the callback must
// not wait for shutdown or call Close, or it will deadlock. If shutdown was
// started before activation, the callback is never invoked and an error is
// returned.
//
// If onceActivateCallback is nil, the managed object must implement
// HandleOnceActivator, which is used instead.
//
// The caller must not pass waitOnFail=true while holding shutdown deferrals
// that cannot be released before this method returns.
func (h *Helper) DoOnceActivate(onceActivateCallback OnceActivateCallback, waitOnFail bool) error {
	var err error
	h.Lock.Lock()
	if h.activated {
		h.Lock.Unlock()
		return nil
	}
	if h.state == StateActivating {
		// Someone else is already activating; wait for them to settle.
		h.Lock.Unlock()
		<-h.activatingDone
		h.Lock.Lock()
	}

	if h.activated {
		h.Lock.Unlock()
		return nil
	}

	if h.state >= StateShuttingDown {
		h.Lock.Unlock()
		if waitOnFail {
			err = h.WaitShutdown()
		}
		if err == nil {
			err = h.Errorf("cannot activate: %w", ErrShuttingDown)
		}
		return err
	}

	// Defer shutdown for the duration of the activation callback.
	h.deferCount++
	h.state = StateActivating
	h.Lock.Unlock()

	if onceActivateCallback != nil {
		err = onceActivateCallback()
	} else if activator, ok := h.obj.(HandleOnceActivator); ok {
		err = activator.HandleOnceActivate()
	} else {
		err = fmt.Errorf("asyncobj: no activation callback and managed object does not implement HandleOnceActivator")
	}

	if err == nil {
		err = h.SetIsActivated()
	}

	if err != nil {
		h.StartShutdown(err)
	}

	// Whether activation succeeded or shutdown is now scheduled, release
	// the deferral so shutdown can proceed at the right time.
	h.UndeferShutdown()

	if err != nil && waitOnFail {
		_ = h.WaitShutdown()
	}

	return err
}

// lockedEnterShuttingDown transitions to StateShuttingDown. The caller must
// hold h.Lock.
func (h *Helper) lockedEnterShuttingDown() {
	oldState := h.state
	h.state = StateShuttingDown
	if oldState < StateActivated {
		close(h.activatingDone)
	}
	h.DLogf("asyncobj: shutdown started (from %s)", oldState)
	close(h.shutdownStarted)
}

// runStartedShutdown drives the remaining transitions after
// StateShuttingDown has been entered: it invokes the shutdown handler,
// publishes the final status, then waits for dependents.
func (h *Helper) runStartedShutdown() {
	go func() {
		finalErr := h.shutdownHandler(h.finalErr)
		h.DLogf("asyncobj: local shutdown complete")
		h.Lock.Lock()
		h.finalErr = finalErr
		h.state = StateLocalShutdown
		close(h.localDone)
		h.Lock.Unlock()
		h.wg.Wait()
		h.Lock.Lock()
		h.state = StateShutDown
		h.DLogf("asyncobj: shutdown complete")
		close(h.allDone)
		h.Lock.Unlock()
	}()
}

// StartShutdown schedules asynchronous shutdown. Only the first call takes
// effect; it returns true if this call scheduled shutdown. If shutdown is
// deferred, the actual start is postponed until the last deferral is
// released.
//
// completionErr is an advisory completion status (or nil); the shutdown
// handler may replace it with the real final status.
//
// The first call kicks off, asynchronously:
//
//   - waiting for the shutdown defer count to reach 0
//   - signalling that shutdown has started
//   - invoking the shutdown handler with the advisory status; its return
//     value becomes the final completion status
//   - signalling that local shutdown is done
//   - shutting down and waiting for each registered dependent
//   - signalling complete shutdown with the final status
func (h *Helper) StartShutdown(completionErr error) bool {
	doNow := false
	scheduledByUs := false
	h.Lock.Lock()
	if !h.scheduled {
		if h.state >= StateShuttingDown {
			h.Panic("asyncobj: shutdown started before scheduled")
		}
		h.finalErr = completionErr
		h.scheduled = true
		scheduledByUs = true
		doNow = h.deferCount == 0
		if doNow {
			h.lockedEnterShuttingDown()
		}
	}
	h.Lock.Unlock()

	if doNow {
		h.runStartedShutdown()
	}
	return scheduledByUs
}

// ShutdownOnContext constrains the lifetime of the helper to a context: a
// background goroutine starts shutdown with the context's error once the
// context completes. It does not block.
func (h *Helper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.shutdownStarted:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// ShutdownStartedChan returns a chan that is closed as soon as shutdown
// begins.
func (h *Helper) ShutdownStartedChan() <-chan struct{} {
	return h.shutdownStarted
}

// LocalShutdownDoneChan returns a chan that is closed when
// StateLocalShutdown is reached: the shutdown handler has returned and the
// final completion status is available, but dependents have not yet been
// waited on.
func (h *Helper) LocalShutdownDoneChan() <-chan struct{} {
	return h.localDone
}

// ShutdownDoneChan returns a chan that is closed when shutdown is fully
// complete, dependents included.
func (h *Helper) ShutdownDoneChan() <-chan struct{} {
	return h.allDone
}

// WaitLocalShutdown blocks until local shutdown completes, without waiting
// for dependents, and returns the final completion status. It does not
// initiate shutdown. The caller must not hold unreleasable shutdown
// deferrals, or a deadlock results.
func (h *Helper) WaitLocalShutdown() error {
	<-h.localDone
	return h.finalErr
}

// WaitShutdown blocks until shutdown completes, dependents included, and
// returns the final completion status. It does not initiate shutdown. The
// caller must not hold unreleasable shutdown deferrals, or a deadlock
// results.
func (h *Helper) WaitShutdown() error {
	<-h.allDone
	return h.finalErr
}

// WaitShutdownContext is like WaitShutdown but gives up when ctx completes,
// returning ctx's error in that case. The object's shutdown continues in
// the background.
func (h *Helper) WaitShutdownContext(ctx context.Context) error {
	select {
	case <-h.allDone:
		return h.finalErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalShutdown initiates shutdown if not already started, waits for local
// shutdown only, and returns the final completion status.
func (h *Helper) LocalShutdown(completionErr error) error {
	h.StartShutdown(completionErr)
	return h.WaitLocalShutdown()
}

// Shutdown initiates shutdown if not already started, waits for it to
// complete, and returns the final completion status.
func (h *Helper) Shutdown(completionErr error) error {
	h.StartShutdown(completionErr)
	return h.WaitShutdown()
}

// Close shuts down with a nil advisory status and returns the final
// completion status. It is safe to call multiple times; every caller
// receives the same result.
func (h *Helper) Close() error {
	h.DLogf("asyncobj: Close()")
	return h.Shutdown(nil)
}
